package app

import (
	"errors"
	"sort"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

// PricingService is the catalogue of configured venue sources.
type PricingService struct {
	sources map[domain.Venue]PriceFeedSource
}

// NewPricingService indexes sources by venue. Later sources for the same venue win.
func NewPricingService(sources ...PriceFeedSource) *PricingService {
	s := &PricingService{sources: make(map[domain.Venue]PriceFeedSource, len(sources))}
	for _, src := range sources {
		if src != nil {
			s.sources[src.Venue()] = src
		}
	}
	return s
}

// Source returns the source for venue.
func (s *PricingService) Source(venue domain.Venue) (PriceFeedSource, error) {
	src, ok := s.sources[venue]
	if !ok {
		return nil, apperror.Validation(apperror.CodeUnknownVenue, venue.String())
	}
	return src, nil
}

// Venues lists the configured venues in a stable order.
func (s *PricingService) Venues() []domain.Venue {
	out := make([]domain.Venue, 0, len(s.sources))
	for v := range s.sources {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shutdown shuts every source down and joins their errors.
func (s *PricingService) Shutdown() error {
	var errs []error
	for _, v := range s.Venues() {
		if err := s.sources[v].Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
