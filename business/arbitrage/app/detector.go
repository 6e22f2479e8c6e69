package app

import (
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// Detector evaluates one instrument's prices for cross-venue opportunities.
// It holds no state besides its thresholds.
type Detector struct {
	thresholds domain.Thresholds
}

// NewDetector creates a Detector.
func NewDetector(th domain.Thresholds) *Detector {
	return &Detector{thresholds: th}
}

// Thresholds returns the configured thresholds.
func (d *Detector) Thresholds() domain.Thresholds {
	return d.thresholds
}

// Evaluate checks every ordered venue pair in view, buying at the first
// venue's ask and selling at the second's bid. All qualifying directions are
// returned, ordered by buy venue then sell venue.
func (d *Detector) Evaluate(view domain.InstrumentView) []domain.Opportunity {
	var out []domain.Opportunity
	for i, buy := range view.Prices {
		for j, sell := range view.Prices {
			if i == j || buy.Venue == sell.Venue {
				continue
			}
			spread, err := pricingDomain.CalculateSpread(buy.Ask, sell.Bid)
			if err != nil {
				// Only a non-positive ask fails here.
				continue
			}
			if !d.thresholds.Qualifies(spread.Absolute, spread.Percent) {
				continue
			}
			out = append(out, domain.NewOpportunity(buy, sell, spread, view.At))
		}
	}
	return out
}
