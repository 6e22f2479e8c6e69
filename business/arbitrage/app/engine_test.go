package app

import (
	"context"
	"errors"
	"testing"
	"time"

	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

type engineFixture struct {
	engine   *Engine
	binance  *fakeSource
	coinbase *fakeSource
	sink     *recordingSink
	clock    *manualClock
	cancel   context.CancelFunc
	done     chan error
}

func startEngine(t *testing.T, cfg EngineConfig, sources ...*fakeSource) *engineFixture {
	t.Helper()

	f := &engineFixture{
		sink:  newRecordingSink(),
		clock: &manualClock{now: t0},
		done:  make(chan error, 1),
	}
	e, err := NewEngine(cfg, NewDetector(thresholds(t, "0.1", "1.00")), f.sink, logger.Nop(), WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, src := range sources {
		if err := e.AddFeed(src, ethUSDC); err != nil {
			t.Fatalf("AddFeed: %v", err)
		}
		switch src.venue {
		case pricingDomain.VenueBinance:
			f.binance = src
		case pricingDomain.VenueCoinbase:
			f.coinbase = src
		}
	}
	f.engine = e

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return f
}

func (f *engineFixture) status(key pricingDomain.MarketKey) FeedStatus {
	for _, s := range f.engine.Status() {
		if s.Key() == key {
			return s
		}
	}
	return FeedStatus{}
}

func TestEngine_DetectsAcrossVenues(t *testing.T) {
	f := startEngine(t, DefaultEngineConfig(),
		newFakeSource(pricingDomain.VenueBinance), newFakeSource(pricingDomain.VenueCoinbase))

	f.binance.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueBinance, "1999.00", "2000.00", 1))
	f.coinbase.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueCoinbase, "2010.00", "2011.00", 1))

	opp := f.sink.next(t)
	if opp.Route() != "binance->coinbase" {
		t.Errorf("route = %s", opp.Route())
	}
	if opp.SpreadAbs.String() != "10" {
		t.Errorf("spread_abs = %s, want 10", opp.SpreadAbs)
	}
	if !opp.DetectedAt.Equal(t0) {
		t.Errorf("detected_at = %v, want engine clock", opp.DetectedAt)
	}
}

func TestEngine_SinkFailureDoesNotStopDetection(t *testing.T) {
	f := startEngine(t, DefaultEngineConfig(),
		newFakeSource(pricingDomain.VenueBinance), newFakeSource(pricingDomain.VenueCoinbase))
	f.sink.failures.Store(1)

	binanceKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueBinance, Instrument: ethUSDC}
	coinbaseKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueCoinbase, Instrument: ethUSDC}

	f.binance.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueBinance, "1999.00", "2000.00", 1))
	f.coinbase.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueCoinbase, "2010.00", "2011.00", 1))
	waitFor(t, 2*time.Second, func() bool { return f.sink.rejected.Load() == 1 }, "first opportunity rejected")

	f.coinbase.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueCoinbase, "2012.00", "2013.00", 2))

	opp := f.sink.next(t)
	if opp.SpreadAbs.String() != "12" {
		t.Errorf("spread_abs = %s, want 12", opp.SpreadAbs)
	}
	for _, key := range []pricingDomain.MarketKey{binanceKey, coinbaseKey} {
		if st := f.status(key); st.State != FeedActive {
			t.Errorf("%s state = %s, want active", key, st.State)
		}
	}
	if got := f.status(coinbaseKey).Applied; got != 2 {
		t.Errorf("coinbase applied = %d, want 2", got)
	}
}

func TestEngine_StaleLegProducesNothing(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxAge = 5 * time.Second
	f := startEngine(t, cfg,
		newFakeSource(pricingDomain.VenueBinance), newFakeSource(pricingDomain.VenueCoinbase))

	binanceKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueBinance, Instrument: ethUSDC}
	f.binance.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueBinance, "1999.00", "2000.00", 1))
	waitFor(t, 2*time.Second, func() bool { return f.status(binanceKey).Applied == 1 }, "binance update applied")

	f.clock.Advance(6 * time.Second)
	coinbaseKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueCoinbase, Instrument: ethUSDC}
	f.coinbase.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueCoinbase, "2500.00", "2501.00", 1))
	waitFor(t, 2*time.Second, func() bool { return f.status(coinbaseKey).Applied == 1 }, "coinbase update applied")

	f.sink.expectNone(t, 50*time.Millisecond)
}

func TestEngine_FailedFeedDoesNotStopOthers(t *testing.T) {
	errRejected := apperror.New(apperror.CodeSubscriptionRejected)
	broken := newFakeSource(pricingDomain.VenueUniswapV4)
	broken.err = errRejected

	f := startEngine(t, DefaultEngineConfig(),
		newFakeSource(pricingDomain.VenueBinance), newFakeSource(pricingDomain.VenueCoinbase), broken)

	uniKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueUniswapV4, Instrument: ethUSDC}
	waitFor(t, 2*time.Second, func() bool { return f.status(uniKey).State == FeedFailed }, "subscription failure")
	if err := f.status(uniKey).Err; !errors.Is(err, errRejected) {
		t.Errorf("failed feed error = %v", err)
	}

	// A feed that ends with an error mid-stream is marked failed too.
	errLost := errors.New("venue rejected instrument")
	f.binance.stream(t, ethUSDC).Fail(errLost)
	binanceKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueBinance, Instrument: ethUSDC}
	waitFor(t, 2*time.Second, func() bool { return f.status(binanceKey).State == FeedFailed }, "feed failure")

	coinbaseKey := pricingDomain.MarketKey{Venue: pricingDomain.VenueCoinbase, Instrument: ethUSDC}
	f.coinbase.stream(t, ethUSDC).Publish(priceUpdate(t, pricingDomain.VenueCoinbase, "2010.00", "2011.00", 1))
	waitFor(t, 2*time.Second, func() bool { return f.status(coinbaseKey).Applied == 1 }, "healthy feed still applied")
	if s := f.status(coinbaseKey).State; s != FeedActive {
		t.Errorf("healthy feed state = %s", s)
	}
}

func TestEngine_ShutdownReleasesSources(t *testing.T) {
	binance := newFakeSource(pricingDomain.VenueBinance)
	coinbase := newFakeSource(pricingDomain.VenueCoinbase)
	f := startEngine(t, DefaultEngineConfig(), binance, coinbase)

	binance.stream(t, ethUSDC)
	coinbase.stream(t, ethUSDC)
	f.cancel()

	select {
	case err := <-f.done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
		f.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if binance.shutdownCount() != 1 || coinbase.shutdownCount() != 1 {
		t.Errorf("shutdowns = %d/%d, want 1/1", binance.shutdownCount(), coinbase.shutdownCount())
	}
	for _, s := range f.engine.Status() {
		if s.State != FeedStopped {
			t.Errorf("%s state = %s, want stopped", s.Key(), s.State)
		}
	}

	if err := f.engine.AddFeed(newFakeSource(pricingDomain.VenueUniswapV4), ethUSDC); !apperror.HasCode(err, apperror.CodeEngineRunning) {
		t.Errorf("AddFeed after Run = %v", err)
	}
	if err := f.engine.Run(context.Background()); !apperror.HasCode(err, apperror.CodeEngineRunning) {
		t.Errorf("second Run = %v", err)
	}
}

func TestEngine_DiscardsOutOfOrderUpdates(t *testing.T) {
	f := startEngine(t, DefaultEngineConfig(), newFakeSource(pricingDomain.VenueBinance))
	st := f.binance.stream(t, ethUSDC)

	st.Publish(priceUpdate(t, pricingDomain.VenueBinance, "1999", "2000", 5))
	st.Publish(priceUpdate(t, pricingDomain.VenueBinance, "1990", "1991", 4))
	st.Publish(priceUpdate(t, pricingDomain.VenueBinance, "2001", "2002", 6))

	key := pricingDomain.MarketKey{Venue: pricingDomain.VenueBinance, Instrument: ethUSDC}
	waitFor(t, 2*time.Second, func() bool { return f.status(key).Applied == 2 }, "in-order updates applied")
}

func TestNewEngine_Validation(t *testing.T) {
	d := NewDetector(thresholds(t, "0", "0"))
	sink := newRecordingSink()

	bad := []EngineConfig{
		{MaxAge: 0, BufferSize: 1, InboxSize: 1},
		{MaxAge: time.Second, BufferSize: 0, InboxSize: 1},
		{MaxAge: time.Second, BufferSize: 1, InboxSize: 0},
	}
	for _, cfg := range bad {
		if _, err := NewEngine(cfg, d, sink, nil); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
	if _, err := NewEngine(DefaultEngineConfig(), d, nil, nil); err == nil {
		t.Error("expected error without sink")
	}

	e, err := NewEngine(DefaultEngineConfig(), d, sink, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	src := newFakeSource(pricingDomain.VenueBinance)
	if err := e.AddFeed(src, ethUSDC); err != nil {
		t.Fatalf("AddFeed: %v", err)
	}
	if err := e.AddFeed(src, ethUSDC); err == nil {
		t.Error("expected duplicate feed error")
	}
}
