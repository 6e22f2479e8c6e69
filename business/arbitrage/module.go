// Package arbitrage implements the arbitrage bounded context: the engine
// consuming every configured feed and the sinks opportunities go to.
package arbitrage

import (
	"context"
	"errors"
	"sync"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	arbDI "github.com/fd1az/arbitrage-detector/business/arbitrage/di"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/infra"
	pricingDI "github.com/fd1az/arbitrage-detector/business/pricing/di"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/config"
	"github.com/fd1az/arbitrage-detector/internal/di"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/monolith"
)

// Module implements the arbitrage bounded context. The engine and the
// outbound sinks are built in Startup so connection errors reach the caller.
type Module struct {
	mu      sync.Mutex
	engine  *app.Engine
	async   *infra.AsyncSink
	closers []func()
	done    chan struct{}
}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Detector (private)
	di.RegisterToken(c, arbDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)

		pct, abs, err := cfg.Detection.Thresholds()
		if err != nil {
			panic("invalid detection thresholds: " + err.Error())
		}
		th, err := domain.NewThresholds(pct, abs)
		if err != nil {
			panic("invalid detection thresholds: " + err.Error())
		}
		return app.NewDetector(th)
	})

	// Register Reporter (private) - TUI or console, both off the engine loop
	di.RegisterToken(c, arbDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.App.TUIMode {
			return infra.NewTUIReporter(cfg.Sinks.ReporterQueueSize, log)
		}
		return infra.NewBufferedReporter(infra.NewConsoleReporter(nil), cfg.Sinks.ReporterQueueSize, log)
	})

	return nil
}

// Startup connects the sinks, subscribes every configured feed and runs the
// engine until ctx is cancelled.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()
	sr := mono.Services()

	reporter := arbDI.GetReporter(sr)

	var sinks []app.OpportunitySink
	if cfg.App.TUIMode || cfg.Sinks.Console.Enabled {
		sinks = append(sinks, reporter)
	}

	outbound, err := m.openSinks(ctx, cfg.Sinks, log)
	if err != nil {
		m.closeSinks()
		return err
	}
	if len(outbound) > 0 {
		m.async = infra.NewAsyncSink(infra.NewMultiSink(outbound...), cfg.Sinks.QueueSize, cfg.Sinks.DeliveryTimeout, log)
		sinks = append(sinks, m.async)
	}

	engine, err := app.NewEngine(
		app.EngineConfig(cfg.Engine),
		arbDI.GetDetector(sr),
		infra.NewMultiSink(sinks...),
		log,
		app.WithObserver(reporter),
	)
	if err != nil {
		return err
	}

	pricing := pricingDI.GetPricingService(sr)
	for _, sub := range cfg.Subscriptions {
		venue, inst, err := config.ParseSubscription(sub)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeConfigurationError, "subscriptions")
		}
		source, err := pricing.Source(pricingDomain.Venue(venue))
		if err != nil {
			return err
		}
		instrument, err := pricingDomain.ParseInstrument(inst)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeConfigurationError, "subscriptions")
		}
		if err := engine.AddFeed(source, instrument); err != nil {
			return err
		}
	}

	if err := reporter.Start(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.engine = engine
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error(ctx, "engine stopped", "error", err)
		}
	}()

	log.Info(ctx, "arbitrage module started",
		"feeds", len(cfg.Subscriptions),
		"sinks", len(outbound),
		"min_profit_pct", cfg.Detection.MinProfitPct,
		"min_profit_abs", cfg.Detection.MinProfitAbs,
	)
	return nil
}

func (m *Module) openSinks(ctx context.Context, cfg config.SinksConfig, log logger.LoggerInterface) ([]app.OpportunitySink, error) {
	var sinks []app.OpportunitySink

	if cfg.Redis.Enabled {
		s, err := infra.NewRedisSink(ctx, infra.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Channel:      cfg.Redis.Channel,
			Stream:       cfg.Redis.Stream,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		}, log)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, func() { _ = s.Close() })
		sinks = append(sinks, s)
	}

	if cfg.Postgres.Enabled {
		s, err := infra.NewPostgresSink(ctx, infra.PostgresConfig{
			DSN:     cfg.Postgres.DSN,
			Migrate: cfg.Postgres.Migrate,
		}, log)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, s.Close)
		sinks = append(sinks, s)
	}

	if cfg.Webhook.Enabled {
		s, err := infra.NewWebhookSink(infra.WebhookConfig{
			URL:               cfg.Webhook.URL,
			Headers:           cfg.Webhook.Headers,
			RequestsPerMinute: cfg.Webhook.RequestsPerMinute,
			Timeout:           cfg.Webhook.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

func (m *Module) closeSinks() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		m.closers[i]()
	}
	m.closers = nil
}

// Status returns the engine's per-feed status, or nil before Startup.
func (m *Module) Status() []app.FeedStatus {
	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Status()
}

// Shutdown waits for the engine, drains the outbound queue and closes the sinks.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	var errs []error
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if m.async != nil {
		if err := m.async.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		mono.Logger().Info(ctx, "outbound sinks drained",
			"delivered", m.async.Delivered(),
			"failed", m.async.Failed(),
			"dropped", m.async.Dropped(),
		)
	}
	m.closeSinks()

	if err := arbDI.GetReporter(mono.Services()).Stop(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Name identifies the module in lifecycle logs.
func (m *Module) Name() string { return "arbitrage" }
