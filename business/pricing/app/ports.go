// Package app defines the price feed capability every venue adapter implements.
package app

import (
	"context"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// PriceFeedSource produces canonical price updates for one venue regardless
// of its transport (streaming or polling).
type PriceFeedSource interface {
	Venue() domain.Venue

	// Subscribe starts a lazy, non-restartable sequence of updates for
	// instrument. Transient transport failures are hidden by the source.
	Subscribe(ctx context.Context, instrument domain.Instrument) (Feed, error)

	// Shutdown releases every subscription. Open feeds end without error.
	Shutdown() error
}

// Feed is one subscription's update sequence.
type Feed interface {
	// Updates yields updates in non-decreasing venue order with no repeated
	// sequence. It is closed on shutdown or unrecoverable failure.
	Updates() <-chan domain.PriceUpdate

	// Err returns the unrecoverable error once Updates is closed, or nil after
	// a clean shutdown.
	Err() error
}
