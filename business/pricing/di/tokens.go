// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/binance"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/coinbase"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/uniswap"
	"github.com/fd1az/arbitrage-detector/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PricingService = di.NewToken[*app.PricingService]("pricing.PricingService")
)

// Private dependency tokens - internal to pricing module
var (
	BinanceSource  = di.NewToken[*binance.Source]("pricing:binanceSource")
	CoinbaseSource = di.NewToken[*coinbase.Source]("pricing:coinbaseSource")
	UniswapSource  = di.NewToken[*uniswap.Source]("pricing:uniswapSource")
)

// Helper functions for type-safe access
func GetPricingService(c di.ServiceRegistry) *app.PricingService {
	return di.GetToken(c, PricingService)
}

func GetBinanceSource(c di.ServiceRegistry) *binance.Source {
	return di.GetToken(c, BinanceSource)
}

func GetCoinbaseSource(c di.ServiceRegistry) *coinbase.Source {
	return di.GetToken(c, CoinbaseSource)
}

func GetUniswapSource(c di.ServiceRegistry) *uniswap.Source {
	return di.GetToken(c, UniswapSource)
}
