package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-detector/business/blockchain/app"
	"github.com/fd1az/arbitrage-detector/business/blockchain/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/retry"
)

var _ app.BlockSubscriber = (*Subscriber)(nil)

// SubscriberConfig configures head delivery: WS subscription first, HTTP polling while it is down.
type SubscriberConfig struct {
	WSURL        string        // WebSocket endpoint (primary)
	HTTPURL      string        // HTTP endpoint (fallback)
	PollInterval time.Duration // Polling interval for HTTP fallback
	Backoff      retry.Config  // Delay between WS resubscribe attempts
	BufferSize   int           // Block channel buffer size
}

// DefaultSubscriberConfig returns a config for the given endpoints. Either may be empty, not both.
func DefaultSubscriberConfig(wsURL, httpURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:        wsURL,
		HTTPURL:      httpURL,
		PollInterval: 12 * time.Second, // ~1 block time
		Backoff:      retry.Config{Base: time.Second, Cap: 30 * time.Second, Jitter: 0.2},
		BufferSize:   16,
	}
}

// Validate checks the configuration.
func (c SubscriberConfig) Validate() error {
	if c.WSURL == "" && c.HTTPURL == "" {
		return apperror.Validation(apperror.CodeRequiredField, "ethereum: ws_url or http_url")
	}
	if c.HTTPURL != "" && c.PollInterval <= 0 {
		return apperror.Validation(apperror.CodeInvalidInput, "ethereum: poll interval must be positive")
	}
	if c.BufferSize <= 0 {
		return apperror.Validation(apperror.CodeInvalidInput, "ethereum: buffer size must be positive")
	}
	return c.Backoff.Validate()
}

// headMetrics are the subscriber's otel instruments.
type headMetrics struct {
	blocksReceived   metric.Int64Counter
	blocksDropped    metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Subscriber implements BlockSubscriber. Heads come from a WebSocket
// subscription; while it is down they are polled over HTTP, and the
// WebSocket is retried with exponential backoff.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface
	dial   DialFunc

	state      domain.ConnectionState
	stateMu    sync.RWMutex
	usingHTTP  atomic.Bool
	lastBlock  atomic.Uint64
	lastUpdate atomic.Int64
	reconnects atomic.Int32

	httpMu     sync.Mutex
	httpClient RPCClient

	blocks  chan *domain.Block
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *headMetrics
}

// NewSubscriber validates cfg and prepares the subscriber. Nothing is dialed until Subscribe.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface, opts ...Option) (*Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Subscriber{
		config: cfg,
		logger: log,
		dial:   newOptions(opts).dial,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	httpCfg := circuitbreaker.DefaultConfig("eth-http-heads")
	httpCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "head breaker changed state",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.httpCB = circuitbreaker.New[*types.Header](httpCfg)

	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &headMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Block heads delivered downstream"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blocksDropped, err = meter.Int64Counter(
		"eth_blocks_dropped_total",
		metric.WithDescription("Blocks evicted because the consumer fell behind"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Head subscription and polling failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Head source state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blockLatency, err = meter.Float64Histogram(
		"eth_block_latency_ms",
		metric.WithDescription("Seconds between block timestamp and local receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Switches from WS heads to HTTP polling"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// Subscribe starts the head loop and returns the block channel. It may be
// called once.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return nil, apperror.New(apperror.CodeEthereumSubscribeFailed, apperror.WithContext("subscriber is closed"))
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, apperror.New(apperror.CodeInvalidState, apperror.WithContext("already subscribed"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)

	return s.blocks, nil
}

func (s *Subscriber) run(ctx context.Context) {
	defer s.finish()

	if s.config.WSURL == "" {
		s.usingHTTP.Store(true)
		s.setState(domain.StateConnected)
		s.poll(ctx, nil)
		return
	}

	bo := retry.New(s.config.Backoff)
	for {
		s.setState(domain.StateConnecting)
		subscribed, err := s.streamHeads(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			bo.Reset()
		}

		s.metrics.subscribeErrors.Add(ctx, 1)
		s.reconnects.Add(1)
		delay := bo.Next()
		s.logger.Warn(ctx, "head subscription lost", "error", err, "retry_in", delay)

		if s.config.HTTPURL == "" {
			s.setState(domain.StateReconnecting)
			if !retry.Sleep(ctx.Done(), delay) {
				return
			}
			continue
		}

		s.usingHTTP.Store(true)
		s.metrics.httpFallbackUsed.Add(ctx, 1)
		s.setState(domain.StateConnected)
		deadline := time.NewTimer(delay)
		s.poll(ctx, deadline.C)
		deadline.Stop()
		if ctx.Err() != nil {
			return
		}
		s.usingHTTP.Store(false)
	}
}

// streamHeads dials the WS endpoint and forwards heads until the
// subscription fails. subscribed reports whether it got that far.
func (s *Subscriber) streamHeads(ctx context.Context) (subscribed bool, err error) {
	client, err := s.dial(ctx, s.config.WSURL)
	if err != nil {
		return false, apperror.External(apperror.CodeEthereumConnectionFailed, "dial ws", err)
	}
	defer client.Close()

	headers := make(chan *types.Header, s.config.BufferSize)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return false, apperror.External(apperror.CodeEthereumSubscribeFailed, "subscribe new heads", err)
	}
	defer sub.Unsubscribe()

	s.usingHTTP.Store(false)
	s.setState(domain.StateConnected)
	s.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return true, apperror.External(apperror.CodeEthereumSubscribeFailed, "head subscription", err)
		case header := <-headers:
			if header != nil {
				s.processHeader(ctx, header, false)
			}
		}
	}
}

// poll fetches the latest head every PollInterval until ctx is done or
// until fires. A nil until polls forever.
func (s *Subscriber) poll(ctx context.Context, until <-chan time.Time) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "polling heads over http", "interval", s.config.PollInterval)
	s.pollLatestBlock(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-until:
			return
		case <-ticker.C:
			s.pollLatestBlock(ctx)
		}
	}
}

// pollLatestBlock reads the head over HTTP and forwards it if it is new.
func (s *Subscriber) pollLatestBlock(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "blockchain.poll_head")
	defer span.End()

	header, err := s.latestHeader(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "head poll failed", "error", err)
		s.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	s.processHeader(ctx, header, true)
	span.SetStatus(codes.Ok, "polled")
}

func (s *Subscriber) latestHeader(ctx context.Context) (*types.Header, error) {
	return s.httpCB.Execute(func() (*types.Header, error) {
		client, err := s.http(ctx)
		if err != nil {
			return nil, err
		}
		return client.HeaderByNumber(ctx, nil) // nil = latest
	})
}

// http returns the lazily dialed HTTP client.
func (s *Subscriber) http(ctx context.Context) (RPCClient, error) {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()

	if s.httpClient != nil {
		return s.httpClient, nil
	}
	if s.config.HTTPURL == "" {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed, apperror.WithContext("http url not configured"))
	}
	client, err := s.dial(ctx, s.config.HTTPURL)
	if err != nil {
		return nil, apperror.External(apperror.CodeEthereumConnectionFailed, "dial http", err)
	}
	s.httpClient = client
	return client, nil
}

// processHeader converts and emits a header. Heads that are not newer than
// the last emitted one are skipped, so WS and HTTP sources never go backwards.
func (s *Subscriber) processHeader(ctx context.Context, header *types.Header, fromHTTP bool) {
	block := headerToBlock(header)

	for {
		last := s.lastBlock.Load()
		if block.Number <= last {
			return
		}
		if s.lastBlock.CompareAndSwap(last, block.Number) {
			break
		}
	}
	s.lastUpdate.Store(time.Now().UnixNano())

	latency := time.Since(block.Timestamp)
	s.metrics.blockLatency.Record(ctx, float64(latency.Milliseconds()),
		metric.WithAttributes(attribute.Bool("from_http", fromHTTP)))

	for {
		select {
		case s.blocks <- block:
			s.metrics.blocksReceived.Add(ctx, 1)
			s.logger.Debug(ctx, "block received",
				"number", block.Number,
				"from_http", fromHTTP,
				"latency_ms", latency.Milliseconds())
			return
		default:
		}
		select {
		case <-s.blocks:
			s.metrics.blocksDropped.Add(ctx, 1)
		default:
		}
	}
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
	}
}

// LatestBlock retrieves the most recent block over HTTP.
func (s *Subscriber) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "blockchain.latest_head")
	defer span.End()

	header, err := s.latestHeader(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithContext("latest head"), apperror.WithCause(err))
	}

	span.SetStatus(codes.Ok, "fetched")
	return headerToBlock(header), nil
}

func (s *Subscriber) State() domain.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Status reports the head source, including whether polling is active.
func (s *Subscriber) Status() domain.ConnectionStatus {
	var last time.Time
	if ns := s.lastUpdate.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return domain.ConnectionStatus{
		State:      s.State(),
		LastBlock:  s.lastBlock.Load(),
		LastUpdate: last,
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close stops the head loop and waits for it. It is idempotent.
func (s *Subscriber) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.closeMu.Unlock()

	s.logger.Info(context.Background(), "head subscriber closing")

	if cancel == nil {
		close(s.blocks)
		close(s.done)
		s.setState(domain.StateDisconnected)
		return nil
	}
	cancel()
	<-s.done
	return nil
}

func (s *Subscriber) finish() {
	s.httpMu.Lock()
	if s.httpClient != nil {
		s.httpClient.Close()
		s.httpClient = nil
	}
	s.httpMu.Unlock()

	close(s.blocks)
	s.setState(domain.StateDisconnected)
	close(s.done)
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	stateValue := int64(0)
	switch state {
	case domain.StateDisconnected:
		stateValue = 0
	case domain.StateConnecting:
		stateValue = 1
	case domain.StateConnected:
		stateValue = 2
	case domain.StateReconnecting:
		stateValue = 3
	}

	s.metrics.connectionState.Record(context.Background(), stateValue)
}
