// Package main is the entry point for the cross-venue arbitrage detector.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/arbitrage-detector/business/arbitrage"
	arbitrageApp "github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	"github.com/fd1az/arbitrage-detector/business/blockchain"
	"github.com/fd1az/arbitrage-detector/business/pricing"
	"github.com/fd1az/arbitrage-detector/internal/apm"
	"github.com/fd1az/arbitrage-detector/internal/config"
	"github.com/fd1az/arbitrage-detector/internal/health"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/metrics"
	"github.com/fd1az/arbitrage-detector/internal/monolith"
	"github.com/fd1az/arbitrage-detector/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Run the terminal dashboard instead of console output")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arbitrage %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
		if ui.Program != nil {
			ui.Program.Quit()
		}
	}()

	if err := run(ctx, cancel, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = tuiMode

	log := newLogger(cfg, tuiMode)
	log.Info(ctx, "starting arbitrage detector",
		"version", version,
		"environment", cfg.App.Environment,
		"subscriptions", cfg.Subscriptions,
	)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	mono := monolith.New(cfg, log)
	arbModule := &arbitrage.Module{}
	modules := []monolith.Module{
		&blockchain.Module{}, // block heads and contract calls for on-chain venues
		&pricing.Module{},    // one price feed source per venue
		arbModule,            // engine and sinks
	}

	if cfg.Health.Enabled {
		hs := health.NewServer(cfg.Health.Port, version, log)
		hs.RegisterCheck("feeds", feedsCheck(arbModule))
		if err := hs.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.Health.Port)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer stopCancel()
			_ = hs.Stop(stopCtx)
		}()
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	stop := func() error {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer stopCancel()
		if err := mono.StopModules(stopCtx); err != nil {
			log.Error(stopCtx, "shutdown incomplete", "error", err)
			return err
		}
		log.Info(stopCtx, "shutdown complete")
		return nil
	}

	if tuiMode {
		return runTUI(ctx, cancel, func() error {
			return mono.StartModules(ctx, modules...)
		}, stop)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		_ = stop()
		return fmt.Errorf("failed to start modules: %w", err)
	}
	log.Info(ctx, "all modules started, detecting")

	<-ctx.Done()
	log.Info(context.Background(), "shutting down", "timeout", cfg.App.ShutdownTimeout)
	return stop()
}

func newLogger(cfg *config.Config, tuiMode bool) *logger.Logger {
	level := logger.ParseLevel(cfg.App.LogLevel)

	// The dashboard owns the terminal.
	var w io.Writer = os.Stderr
	if tuiMode {
		w = io.Discard
	}
	if cfg.App.LogJSON {
		return logger.NewJSON(w, level, cfg.App.Name, nil)
	}
	return logger.New(w, level, cfg.App.Name, nil)
}

func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	headers := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)

	tp, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	mcfg := metrics.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Prometheus:  cfg.Telemetry.PrometheusPort > 0,
	}
	if p := apm.Provider(cfg.Telemetry.TraceProvider); p == apm.OTLPGRPCProvider {
		mcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		mcfg.OTLPHeaders = headers
	}
	mp, err := metrics.NewProvider(ctx, mcfg)
	if err != nil {
		_ = tp.Stop()
		return nil, fmt.Errorf("failed to start metrics: %w", err)
	}

	if mcfg.Prometheus {
		go func() {
			if err := metrics.Serve(ctx, cfg.Telemetry.PrometheusPort, mp.Handler(), log); err != nil {
				log.Error(ctx, "metrics server stopped", "error", err)
			}
		}()
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = mp.Shutdown(shutdownCtx)
		_ = tp.Stop()
	}, nil
}

// feedsCheck is healthy while at least one feed is active.
func feedsCheck(m *arbitrage.Module) health.CheckFunc {
	return func(ctx context.Context) (bool, string) {
		statuses := m.Status()
		if len(statuses) == 0 {
			return false, "engine not started"
		}
		active := 0
		for _, s := range statuses {
			if s.State == arbitrageApp.FeedActive {
				active++
			}
		}
		return active > 0, fmt.Sprintf("%d/%d feeds active", active, len(statuses))
	}
}

func runTUI(ctx context.Context, cancel context.CancelFunc, start func() error, stop func() error) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	started := make(chan bool, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			started <- false
			return
		}
		if err := start(); err != nil {
			ui.Send(ui.ErrorMsg{Error: fmt.Errorf("failed to start modules: %w", err)})
		}
		started <- true
	}()

	_, err := p.Run()
	cancel()

	if <-started {
		if stopErr := stop(); err == nil && stopErr != nil {
			err = stopErr
		}
	}
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
