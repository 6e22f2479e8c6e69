package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingApp "github.com/fd1az/arbitrage-detector/business/pricing/app"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

var (
	ethUSDC = pricingDomain.MustParseInstrument("ETH-USDC")
	t0      = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
)

// fakeSource hands out UpdateStreams the test publishes into.
type fakeSource struct {
	venue pricingDomain.Venue
	err   error

	mu        sync.Mutex
	streams   map[pricingDomain.Instrument]*pricingApp.UpdateStream
	shutdowns int
}

func newFakeSource(venue pricingDomain.Venue) *fakeSource {
	return &fakeSource{venue: venue, streams: make(map[pricingDomain.Instrument]*pricingApp.UpdateStream)}
}

func (s *fakeSource) Venue() pricingDomain.Venue { return s.venue }

func (s *fakeSource) Subscribe(ctx context.Context, inst pricingDomain.Instrument) (pricingApp.Feed, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := pricingApp.NewUpdateStream(pricingDomain.MarketKey{Venue: s.venue, Instrument: inst}, 16)
	s.streams[inst] = st
	return st, nil
}

func (s *fakeSource) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
	for _, st := range s.streams {
		st.Close()
	}
	return nil
}

func (s *fakeSource) stream(t *testing.T, inst pricingDomain.Instrument) *pricingApp.UpdateStream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		st, ok := s.streams[inst]
		s.mu.Unlock()
		if ok {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never subscribed to %s", s.venue, inst)
	return nil
}

func (s *fakeSource) shutdownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

// recordingSink collects published opportunities. While failures is
// positive, Publish rejects the opportunity instead.
type recordingSink struct {
	ch       chan domain.Opportunity
	failures atomic.Int32
	rejected atomic.Int32
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan domain.Opportunity, 64)}
}

func (s *recordingSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	if s.failures.Add(-1) >= 0 {
		s.rejected.Add(1)
		return apperror.New(apperror.CodeSinkPublishFailed)
	}
	s.failures.Store(0)
	s.ch <- opp
	return nil
}

func (s *recordingSink) next(t *testing.T) domain.Opportunity {
	t.Helper()
	select {
	case opp := <-s.ch:
		return opp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an opportunity")
		return domain.Opportunity{}
	}
}

func (s *recordingSink) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case opp := <-s.ch:
		t.Fatalf("unexpected opportunity %s %s", opp.Route(), opp.SpreadAbs)
	case <-time.After(wait):
	}
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func priceUpdate(t *testing.T, venue pricingDomain.Venue, bid, ask string, seq uint64) pricingDomain.PriceUpdate {
	t.Helper()
	u, err := pricingDomain.NewPriceUpdate(venue, ethUSDC,
		decimal.RequireFromString(bid), decimal.RequireFromString(ask), t0, seq)
	if err != nil {
		t.Fatalf("NewPriceUpdate: %v", err)
	}
	return u
}

func thresholds(t *testing.T, pct, abs string) domain.Thresholds {
	t.Helper()
	th, err := domain.NewThresholds(decimal.RequireFromString(pct), decimal.RequireFromString(abs))
	if err != nil {
		t.Fatalf("NewThresholds: %v", err)
	}
	return th
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
