package domain

import (
	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/internal/asset"
)

// Spread is the result of buying at one venue's ask and selling at another venue's bid.
type Spread struct {
	BuyAsk   decimal.Decimal
	SellBid  decimal.Decimal
	Absolute decimal.Decimal // SellBid - BuyAsk, exact
	Percent  decimal.Decimal // Absolute / BuyAsk * 100, truncated toward zero
}

// CalculateSpread computes the directional spread. A non-positive buy price
// has no meaningful percentage and is rejected.
func CalculateSpread(buyAsk, sellBid decimal.Decimal) (Spread, error) {
	if err := asset.ValidatePrice(buyAsk); err != nil {
		return Spread{}, err
	}

	absolute := sellBid.Sub(buyAsk)
	pct, err := asset.Percent(absolute, buyAsk)
	if err != nil {
		return Spread{}, err
	}

	return Spread{
		BuyAsk:   buyAsk,
		SellBid:  sellBid,
		Absolute: absolute,
		Percent:  pct,
	}, nil
}

// IsProfitable reports a strictly positive spread.
func (s Spread) IsProfitable() bool {
	return s.Absolute.IsPositive()
}
