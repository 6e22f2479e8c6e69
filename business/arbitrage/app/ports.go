// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// OpportunitySink receives detected opportunities. Publish is called from the
// detection path and must return promptly; slow sinks sit behind an async wrapper.
type OpportunitySink interface {
	Publish(ctx context.Context, opp domain.Opportunity) error
}

// PriceObserver is told about every applied price and feed status change.
type PriceObserver interface {
	UpdatePrice(u pricingDomain.PriceUpdate)
	UpdateFeedStatus(s FeedStatus)
}

// Reporter displays opportunities, prices and feed health.
type Reporter interface {
	OpportunitySink
	PriceObserver

	// Start initializes the reporter.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the reporter.
	Stop() error
}
