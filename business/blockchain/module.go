// Package blockchain implements the blockchain bounded context: the block
// heads and contract calls the on-chain venue reads through.
package blockchain

import (
	"context"
	"sync"

	"github.com/fd1az/arbitrage-detector/business/blockchain/app"
	blockchainDI "github.com/fd1az/arbitrage-detector/business/blockchain/di"
	"github.com/fd1az/arbitrage-detector/business/blockchain/infra/ethereum"
	"github.com/fd1az/arbitrage-detector/internal/config"
	"github.com/fd1az/arbitrage-detector/internal/di"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct {
	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register BlockSubscriber (private - internal dependency)
	di.RegisterToken(c, blockchainDI.BlockSubscriber, func(sr di.ServiceRegistry) app.BlockSubscriber {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		subCfg := ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		if cfg.Ethereum.PollInterval > 0 {
			subCfg.PollInterval = cfg.Ethereum.PollInterval
		}
		if cfg.Ethereum.BackoffBase > 0 {
			subCfg.Backoff.Base = cfg.Ethereum.BackoffBase
		}
		if cfg.Ethereum.BackoffCap > 0 {
			subCfg.Backoff.Cap = cfg.Ethereum.BackoffCap
		}

		sub, err := ethereum.NewSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create subscriber: " + err.Error())
		}
		return sub
	})

	// Register ContractCaller (private - internal dependency)
	di.RegisterToken(c, blockchainDI.ContractCaller, func(sr di.ServiceRegistry) app.ContractCaller {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		url := cfg.Ethereum.HTTPURL
		if url == "" {
			url = cfg.Ethereum.WebSocketURL
		}
		caller, err := ethereum.NewCaller(url, log)
		if err != nil {
			panic("failed to create contract caller: " + err.Error())
		}
		return caller
	})

	// Register BlockchainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		log := sr.Get("logger").(logger.LoggerInterface)
		sub := blockchainDI.GetBlockSubscriber(sr)
		caller := blockchainDI.GetContractCaller(sr)
		return app.NewBlockchainService(sub, caller, log)
	})

	return nil
}

// Startup starts the block fan-out when an on-chain venue is enabled.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	if !mono.Config().Venues.Uniswap.Enabled {
		log.Info(ctx, "blockchain module idle: no on-chain venue enabled")
		return nil
	}

	svc := blockchainDI.GetBlockchainService(mono.Services())

	m.mu.Lock()
	m.started = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		if err := svc.Run(ctx); err != nil {
			log.Error(ctx, "block fan-out stopped", "error", err)
		}
	}()

	log.Info(ctx, "blockchain module started")
	return nil
}

// Shutdown releases the node connections and waits for the fan-out to end.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	m.mu.Lock()
	started, done := m.started, m.done
	m.mu.Unlock()
	if !started {
		return nil
	}

	err := blockchainDI.GetBlockchainService(mono.Services()).Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Name identifies the module in lifecycle logs.
func (m *Module) Name() string { return "blockchain" }
