package domain

import (
	"fmt"
	"strings"
)

// Venue identifies a source of prices.
type Venue string

const (
	VenueBinance   Venue = "binance"
	VenueCoinbase  Venue = "coinbase"
	VenueUniswapV4 Venue = "uniswap-v4"
)

func (v Venue) String() string { return string(v) }

// Instrument is a base/quote trading pair.
type Instrument struct {
	Base  string
	Quote string
}

// ParseInstrument parses "ETH-USDC", "ETH/USDC" or "eth_usdc".
func ParseInstrument(s string) (Instrument, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '_'
	})
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Instrument{}, fmt.Errorf("pricing: invalid instrument %q", s)
	}
	return Instrument{Base: parts[0], Quote: parts[1]}, nil
}

// MustParseInstrument is ParseInstrument for constants and tests.
func MustParseInstrument(s string) Instrument {
	inst, err := ParseInstrument(s)
	if err != nil {
		panic(err)
	}
	return inst
}

// String returns the canonical BASE-QUOTE form.
func (i Instrument) String() string {
	return i.Base + "-" + i.Quote
}

// IsZero reports an unset instrument.
func (i Instrument) IsZero() bool {
	return i.Base == "" && i.Quote == ""
}

// MarketKey addresses one venue's book for one instrument.
type MarketKey struct {
	Venue      Venue
	Instrument Instrument
}

func (k MarketKey) String() string {
	return k.Venue.String() + ":" + k.Instrument.String()
}
