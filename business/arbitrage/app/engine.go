package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	pricingApp "github.com/fd1az/arbitrage-detector/business/pricing/app"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

const meterName = "github.com/fd1az/arbitrage-detector/business/arbitrage/app"

// EngineConfig holds engine configuration.
type EngineConfig struct {
	// MaxAge excludes entries received longer ago from detection.
	MaxAge time.Duration
	// BufferSize of each feed's pump. When full the oldest update is dropped.
	BufferSize int
	// InboxSize of the fan-in channel feeding the detection loop.
	InboxSize int
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAge:     15 * time.Second,
		BufferSize: 64,
		InboxSize:  256,
	}
}

// FeedState is the lifecycle of one engine feed.
type FeedState string

const (
	FeedPending FeedState = "pending"
	FeedActive  FeedState = "active"
	FeedFailed  FeedState = "failed"
	FeedStopped FeedState = "stopped"
)

// FeedStatus is a snapshot of one feed's health and counters.
type FeedStatus struct {
	Venue      pricingDomain.Venue
	Instrument pricingDomain.Instrument
	State      FeedState
	Err        error
	LastUpdate time.Time
	Applied    int64
	Discarded  int64
	Dropped    int64
}

// Key returns the market the feed serves.
func (s FeedStatus) Key() pricingDomain.MarketKey {
	return pricingDomain.MarketKey{Venue: s.Venue, Instrument: s.Instrument}
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver receives applied prices and feed status changes.
func WithObserver(o PriceObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type engineMetrics struct {
	applied       metric.Int64Counter
	discarded     metric.Int64Counter
	opportunities metric.Int64Counter
	sinkErrors    metric.Int64Counter
	detectLatency metric.Float64Histogram
}

// feed is one (source, instrument) subscription and its status.
type feed struct {
	source     pricingApp.PriceFeedSource
	instrument pricingDomain.Instrument

	mu     sync.Mutex
	status FeedStatus
	buffer *pricingApp.UpdateStream
}

func (f *feed) snapshot() FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.status
	if f.buffer != nil {
		s.Dropped = f.buffer.Stats().Dropped
	}
	return s
}

func (f *feed) update(fn func(*FeedStatus)) FeedStatus {
	f.mu.Lock()
	fn(&f.status)
	f.mu.Unlock()
	return f.snapshot()
}

// envelope carries an update into the detection loop.
type envelope struct {
	feed   *feed
	update pricingDomain.PriceUpdate
}

// Engine is the single consumer of every configured feed. It owns the
// market state; updates are applied and evaluated one at a time.
type Engine struct {
	cfg      EngineConfig
	detector *Detector
	sink     OpportunitySink
	observer PriceObserver
	logger   logger.LoggerInterface
	now      func() time.Time

	mu      sync.Mutex
	feeds   []*feed
	running bool

	state   *domain.MarketState
	inbox   chan envelope
	metrics *engineMetrics
}

// NewEngine creates an Engine. Run starts it.
func NewEngine(cfg EngineConfig, detector *Detector, sink OpportunitySink, log logger.LoggerInterface, opts ...Option) (*Engine, error) {
	if cfg.MaxAge <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "engine: max age must be positive")
	}
	if cfg.BufferSize <= 0 || cfg.InboxSize <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "engine: buffer sizes must be positive")
	}
	if detector == nil || sink == nil {
		return nil, apperror.Validation(apperror.CodeRequiredField, "engine: detector and sink")
	}
	if log == nil {
		log = logger.Nop()
	}

	e := &Engine{
		cfg:      cfg,
		detector: detector,
		sink:     sink,
		logger:   log,
		now:      time.Now,
		state:    domain.NewMarketState(),
		inbox:    make(chan envelope, cfg.InboxSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.applied, err = meter.Int64Counter(
		"engine_updates_applied_total",
		metric.WithDescription("Price updates applied to the market state"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	e.metrics.discarded, err = meter.Int64Counter(
		"engine_updates_discarded_total",
		metric.WithDescription("Stale or duplicate updates discarded by the market state"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	e.metrics.opportunities, err = meter.Int64Counter(
		"arbitrage_opportunities_total",
		metric.WithDescription("Opportunities detected"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	e.metrics.sinkErrors, err = meter.Int64Counter(
		"arbitrage_sink_errors_total",
		metric.WithDescription("Opportunities the sink refused"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	e.metrics.detectLatency, err = meter.Float64Histogram(
		"arbitrage_detection_latency_ms",
		metric.WithDescription("Time to apply an update and evaluate its instrument"),
		metric.WithUnit("ms"),
	)
	return err
}

// AddFeed registers a subscription. It must be called before Run.
func (e *Engine) AddFeed(source pricingApp.PriceFeedSource, instrument pricingDomain.Instrument) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return apperror.New(apperror.CodeEngineRunning, apperror.WithContext("add feed"))
	}
	key := pricingDomain.MarketKey{Venue: source.Venue(), Instrument: instrument}
	for _, f := range e.feeds {
		if f.status.Key() == key {
			return apperror.Validation(apperror.CodeInvalidInput, "engine: duplicate feed "+key.String())
		}
	}
	e.feeds = append(e.feeds, &feed{
		source:     source,
		instrument: instrument,
		status: FeedStatus{
			Venue:      key.Venue,
			Instrument: instrument,
			State:      FeedPending,
		},
	})
	return nil
}

// Status returns every feed's status in registration order.
func (e *Engine) Status() []FeedStatus {
	e.mu.Lock()
	feeds := e.feeds
	e.mu.Unlock()

	out := make([]FeedStatus, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, f.snapshot())
	}
	return out
}

// Run subscribes every feed and processes updates until ctx is cancelled.
// A feed that fails is marked failed; the others keep running. On return
// every source has been shut down and every pump has exited.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return apperror.New(apperror.CodeEngineRunning)
	}
	e.running = true
	feeds := e.feeds
	e.mu.Unlock()

	var g errgroup.Group
	for _, f := range feeds {
		sub, err := f.source.Subscribe(ctx, f.instrument)
		if err != nil {
			e.setFailed(ctx, f, err)
			continue
		}
		buf := pricingApp.NewUpdateStream(f.status.Key(), e.cfg.BufferSize)
		e.notify(f.update(func(s *FeedStatus) { s.State = FeedActive }))
		f.mu.Lock()
		f.buffer = buf
		f.mu.Unlock()

		g.Go(func() error {
			e.read(ctx, f, sub, buf)
			return nil
		})
		g.Go(func() error {
			e.forward(ctx, f, buf)
			return nil
		})
	}

	e.logger.Info(ctx, "engine started", "feeds", len(feeds))
	e.loop(ctx)

	e.shutdownSources(ctx, feeds)
	err := g.Wait()
	e.logger.Info(ctx, "engine stopped")
	return err
}

// read moves updates from the source feed into the feed's drop-oldest
// buffer. It never blocks on the detection loop.
func (e *Engine) read(ctx context.Context, f *feed, sub pricingApp.Feed, buf *pricingApp.UpdateStream) {
	for {
		select {
		case <-ctx.Done():
			buf.Close()
			return
		case u, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					buf.Fail(err)
				} else {
					buf.Close()
				}
				return
			}
			if !buf.Publish(u) {
				f.update(func(s *FeedStatus) { s.Discarded++ })
			}
		}
	}
}

// forward hands buffered updates to the detection loop and records how the
// feed ended.
func (e *Engine) forward(ctx context.Context, f *feed, buf *pricingApp.UpdateStream) {
	for u := range buf.Updates() {
		select {
		case e.inbox <- envelope{feed: f, update: u}:
		case <-ctx.Done():
		}
	}

	if err := buf.Err(); err != nil {
		e.setFailed(context.WithoutCancel(ctx), f, err)
		return
	}
	e.notify(f.update(func(s *FeedStatus) { s.State = FeedStopped }))
}

func (e *Engine) setFailed(ctx context.Context, f *feed, err error) {
	st := f.update(func(s *FeedStatus) {
		s.State = FeedFailed
		s.Err = err
	})
	e.logger.Error(ctx, "feed failed", "market", st.Key().String(), "error", err)
	e.notify(st)
}

func (e *Engine) notify(s FeedStatus) {
	if e.observer != nil {
		e.observer.UpdateFeedStatus(s)
	}
}

// loop is the only writer of the market state.
func (e *Engine) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-e.inbox:
			if ctx.Err() != nil {
				return
			}
			e.handle(ctx, env)
		}
	}
}

// handle applies one update and evaluates its instrument.
func (e *Engine) handle(ctx context.Context, env envelope) {
	start := time.Now()
	now := e.now()
	u := env.update
	attrs := metric.WithAttributes(attribute.String("venue", u.Venue.String()))

	if !e.state.Apply(u, now) {
		env.feed.update(func(s *FeedStatus) { s.Discarded++ })
		e.metrics.discarded.Add(ctx, 1, attrs)
		return
	}
	env.feed.update(func(s *FeedStatus) {
		s.Applied++
		s.LastUpdate = now
	})
	e.metrics.applied.Add(ctx, 1, attrs)
	if e.observer != nil {
		e.observer.UpdatePrice(u)
	}

	view := e.state.View(u.Instrument, now, e.cfg.MaxAge)
	for _, opp := range e.detector.Evaluate(view) {
		e.metrics.opportunities.Add(ctx, 1, metric.WithAttributes(
			attribute.String("instrument", opp.Instrument.String()),
			attribute.String("route", opp.Route()),
		))
		if err := e.sink.Publish(ctx, opp); err != nil {
			e.metrics.sinkErrors.Add(ctx, 1)
			e.logger.Warn(ctx, "opportunity not delivered", "id", opp.ID.String(), "error", err)
		}
	}
	e.metrics.detectLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
}

func (e *Engine) shutdownSources(ctx context.Context, feeds []*feed) {
	done := make(map[pricingDomain.Venue]bool)
	for _, f := range feeds {
		v := f.source.Venue()
		if done[v] {
			continue
		}
		done[v] = true
		if err := f.source.Shutdown(); err != nil {
			e.logger.Warn(context.WithoutCancel(ctx), "source shutdown failed", "venue", v.String(), "error", err)
		}
	}
}
