package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func sampleOpportunity(t *testing.T) domain.Opportunity {
	t.Helper()
	inst := pricingDomain.MustParseInstrument("ETH-USDC")
	buy, err := pricingDomain.NewPriceUpdate(pricingDomain.VenueBinance, inst,
		decimal.RequireFromString("1999.5"), decimal.RequireFromString("2000"), t0, 7)
	if err != nil {
		t.Fatal(err)
	}
	sell, err := pricingDomain.NewPriceUpdate(pricingDomain.VenueCoinbase, inst,
		decimal.RequireFromString("2010"), decimal.RequireFromString("2010.5"), t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	spread, err := pricingDomain.CalculateSpread(buy.Ask, sell.Bid)
	if err != nil {
		t.Fatal(err)
	}
	return domain.NewOpportunity(buy, sell, spread, t0.Add(time.Second))
}

type recordingSink struct {
	mu   sync.Mutex
	got  []domain.Opportunity
	fail error
}

func (s *recordingSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, opp)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

// gatedSink blocks every delivery until the gate is closed.
type gatedSink struct {
	recordingSink
	started chan struct{}
	gate    chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{started: make(chan struct{}, 16), gate: make(chan struct{})}
}

func (s *gatedSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	s.started <- struct{}{}
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.recordingSink.Publish(ctx, opp)
}

var errBoom = errors.New("boom")
