// Package pricing implements the pricing bounded context: one price feed
// source per configured venue.
package pricing

import (
	"context"
	"strings"

	blockchainDI "github.com/fd1az/arbitrage-detector/business/blockchain/di"
	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	pricingDI "github.com/fd1az/arbitrage-detector/business/pricing/di"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/binance"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/coinbase"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/uniswap"
	"github.com/fd1az/arbitrage-detector/internal/asset"
	"github.com/fd1az/arbitrage-detector/internal/config"
	"github.com/fd1az/arbitrage-detector/internal/di"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/monolith"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Binance source - private dependency
	di.RegisterToken(c, pricingDI.BinanceSource, func(sr di.ServiceRegistry) *binance.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		srcCfg := binance.DefaultConfig()
		srcCfg.URL = cfg.Venues.Binance.WebSocketURL
		srcCfg.Symbols = cfg.Venues.Binance.Symbols
		if cfg.Venues.Binance.BufferSize > 0 {
			srcCfg.BufferSize = cfg.Venues.Binance.BufferSize
		}
		srcCfg.Stream = cfg.Stream.WSConn(srcCfg.URL, "binance")

		return binance.NewSource(srcCfg, log)
	})

	// Register Coinbase source - private dependency
	di.RegisterToken(c, pricingDI.CoinbaseSource, func(sr di.ServiceRegistry) *coinbase.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		srcCfg := coinbase.DefaultConfig()
		srcCfg.URL = cfg.Venues.Coinbase.WebSocketURL
		srcCfg.Products = cfg.Venues.Coinbase.Products
		if cfg.Venues.Coinbase.BufferSize > 0 {
			srcCfg.BufferSize = cfg.Venues.Coinbase.BufferSize
		}
		srcCfg.Stream = cfg.Stream.WSConn(srcCfg.URL, "coinbase")

		return coinbase.NewSource(srcCfg, log)
	})

	// Register Uniswap source - reads through the blockchain module
	di.RegisterToken(c, pricingDI.UniswapSource, func(sr di.ServiceRegistry) *uniswap.Source {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("assetRegistry").(*asset.Registry)
		chain := blockchainDI.GetBlockchainService(sr)

		src, err := uniswap.NewSource(uniswapConfig(cfg.Venues.Uniswap), chain.Caller(), chain, registry, log)
		if err != nil {
			panic("failed to create uniswap source: " + err.Error())
		}
		return src
	})

	// Register PricingService (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.PricingService, func(sr di.ServiceRegistry) *app.PricingService {
		cfg := sr.Get("config").(*config.Config)

		var sources []app.PriceFeedSource
		if cfg.Venues.Binance.Enabled {
			sources = append(sources, pricingDI.GetBinanceSource(sr))
		}
		if cfg.Venues.Coinbase.Enabled {
			sources = append(sources, pricingDI.GetCoinbaseSource(sr))
		}
		if cfg.Venues.Uniswap.Enabled {
			sources = append(sources, pricingDI.GetUniswapSource(sr))
		}
		return app.NewPricingService(sources...)
	})

	return nil
}

func uniswapConfig(c config.UniswapConfig) uniswap.Config {
	out := uniswap.DefaultConfig()
	out.StateView = c.StateView
	if c.ChainID != 0 {
		out.ChainID = c.ChainID
	}
	if c.RequestsPerSecond > 0 {
		out.RequestsPerSecond = c.RequestsPerSecond
	}
	if c.Burst > 0 {
		out.Burst = c.Burst
	}
	if c.CallTimeout > 0 {
		out.CallTimeout = c.CallTimeout
	}
	if c.BufferSize > 0 {
		out.BufferSize = c.BufferSize
	}
	out.Pools = make([]uniswap.PoolConfig, 0, len(c.Pools))
	for _, p := range c.Pools {
		out.Pools = append(out.Pools, uniswap.PoolConfig(p))
	}
	return out
}

// Startup resolves the configured sources so wiring errors surface before
// the engine subscribes.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := pricingDI.GetPricingService(mono.Services())
	venues := make([]string, 0, len(svc.Venues()))
	for _, v := range svc.Venues() {
		venues = append(venues, v.String())
	}

	log.Info(ctx, "pricing module started", "venues", strings.Join(venues, ","))
	return nil
}

// Shutdown releases every source.
func (m *Module) Shutdown(ctx context.Context, mono monolith.Monolith) error {
	return pricingDI.GetPricingService(mono.Services()).Shutdown()
}

// Name identifies the module in lifecycle logs.
func (m *Module) Name() string { return "pricing" }
