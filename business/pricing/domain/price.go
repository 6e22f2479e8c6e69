// Package domain contains the canonical price types shared by every venue.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
)

// PriceUpdate is one top-of-book observation from a venue. Values are
// immutable once built by NewPriceUpdate.
type PriceUpdate struct {
	Venue      Venue
	Instrument Instrument
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	ObservedAt time.Time
	// Sequence is the venue's own ordering reference: an update id, a feed
	// sequence number or a block number. Zero means the venue has none.
	Sequence uint64
}

// NewPriceUpdate validates and builds an update. Non-positive or crossed
// prices are malformed.
func NewPriceUpdate(venue Venue, inst Instrument, bid, ask decimal.Decimal, observedAt time.Time, seq uint64) (PriceUpdate, error) {
	if venue == "" || inst.IsZero() {
		return PriceUpdate{}, apperror.Validation(apperror.CodeRequiredField, "price update: venue and instrument")
	}
	if err := asset.ValidatePrice(bid); err != nil {
		return PriceUpdate{}, apperror.New(apperror.CodeInvalidPrice,
			apperror.WithContext(fmt.Sprintf("%s %s bid", venue, inst)), apperror.WithCause(err))
	}
	if err := asset.ValidatePrice(ask); err != nil {
		return PriceUpdate{}, apperror.New(apperror.CodeInvalidPrice,
			apperror.WithContext(fmt.Sprintf("%s %s ask", venue, inst)), apperror.WithCause(err))
	}
	if bid.GreaterThan(ask) {
		return PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext(fmt.Sprintf("%s %s crossed book: bid %s > ask %s", venue, inst, bid, ask)))
	}
	if observedAt.IsZero() {
		return PriceUpdate{}, apperror.Validation(apperror.CodeRequiredField, "price update: observed_at")
	}

	return PriceUpdate{
		Venue:      venue,
		Instrument: inst,
		Bid:        bid,
		Ask:        ask,
		ObservedAt: observedAt,
		Sequence:   seq,
	}, nil
}

// Key returns the market this update belongs to.
func (u PriceUpdate) Key() MarketKey {
	return MarketKey{Venue: u.Venue, Instrument: u.Instrument}
}

// Mid returns (bid+ask)/2. Halving is exact in decimal.
func (u PriceUpdate) Mid() decimal.Decimal {
	return u.Bid.Add(u.Ask).Mul(decimal.New(5, -1))
}

// Supersedes reports whether u is strictly newer than prev. Sequences decide
// when both sides carry one; otherwise the observation time does.
func (u PriceUpdate) Supersedes(prev PriceUpdate) bool {
	if u.Sequence != 0 && prev.Sequence != 0 {
		return u.Sequence > prev.Sequence
	}
	return u.ObservedAt.After(prev.ObservedAt)
}

// Age returns how old the observation is at now.
func (u PriceUpdate) Age(now time.Time) time.Duration {
	return now.Sub(u.ObservedAt)
}

// IsStale reports whether the observation is older than maxAge at now.
func (u PriceUpdate) IsStale(now time.Time, maxAge time.Duration) bool {
	return u.Age(now) > maxAge
}
