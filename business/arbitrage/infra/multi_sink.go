package infra

import (
	"context"
	"errors"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
)

// MultiSink fans an opportunity out to every sink.
type MultiSink struct {
	sinks []app.OpportunitySink
}

// NewMultiSink creates a MultiSink. Nil sinks are skipped.
func NewMultiSink(sinks ...app.OpportunitySink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish delivers to every sink and joins their errors.
func (m *MultiSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, opp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }
