// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
)

// opportunityRecord is the wire form shared by the redis and webhook sinks.
// Decimals marshal as strings so no precision is lost.
type opportunityRecord struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"`
	BuyVenue   string          `json:"buy_venue"`
	SellVenue  string          `json:"sell_venue"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	SpreadAbs  decimal.Decimal `json:"spread_abs"`
	SpreadPct  decimal.Decimal `json:"spread_pct"`
	DetectedAt time.Time       `json:"detected_at"`
	BuyRef     string          `json:"buy_ref"`
	SellRef    string          `json:"sell_ref"`
}

func newRecord(o domain.Opportunity) opportunityRecord {
	return opportunityRecord{
		ID:         o.ID.String(),
		Instrument: o.Instrument.String(),
		BuyVenue:   o.BuyVenue.String(),
		SellVenue:  o.SellVenue.String(),
		BuyPrice:   o.BuyPrice,
		SellPrice:  o.SellPrice,
		SpreadAbs:  o.SpreadAbs,
		SpreadPct:  o.SpreadPct,
		DetectedAt: o.DetectedAt.UTC(),
		BuyRef:     o.BuyRef,
		SellRef:    o.SellRef,
	}
}

func encodeOpportunity(o domain.Opportunity) ([]byte, error) {
	return json.Marshal(newRecord(o))
}
