// Package uniswap implements a Uniswap V4 spot price feed. Each new block
// triggers one StateView getSlot0 read per subscribed pool.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	bcdomain "github.com/fd1az/arbitrage-detector/business/blockchain/domain"
	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
	"github.com/fd1az/arbitrage-detector/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/arbitrage-detector/business/pricing/infra/uniswap"
	meterName  = "github.com/fd1az/arbitrage-detector/business/pricing/infra/uniswap"
)

// Ensure Source implements PriceFeedSource.
var _ app.PriceFeedSource = (*Source)(nil)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BlockSource hands out watchers on the newest chain head.
type BlockSource interface {
	WatchBlocks() (<-chan *bcdomain.Block, func())
}

// Config holds configuration for the Uniswap source.
type Config struct {
	StateView string
	ChainID   uint64
	Pools     []PoolConfig
	// RequestsPerSecond bounds getSlot0 reads across all pools.
	RequestsPerSecond float64
	Burst             int
	CallTimeout       time.Duration
	BufferSize        int
}

// DefaultConfig returns sensible defaults for Ethereum mainnet.
func DefaultConfig() Config {
	return Config{
		StateView:         StateViewEthereum.Hex(),
		ChainID:           asset.ChainIDEthereum,
		RequestsPerSecond: 10,
		Burst:             4,
		CallTimeout:       5 * time.Second,
		BufferSize:        16,
	}
}

// providerMetrics holds OTEL metric instruments.
type providerMetrics struct {
	readsTotal  metric.Int64Counter
	readLatency metric.Float64Histogram
	readErrors  metric.Int64Counter
}

// Source polls StateView for every subscribed pool.
type Source struct {
	cfg       Config
	stateView common.Address
	pools     map[domain.Instrument]pool

	caller  Caller
	blocks  BlockSource
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	logger  logger.LoggerInterface

	mu      sync.Mutex
	closed  bool
	cancels []context.CancelFunc
	wg      sync.WaitGroup

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewSource validates cfg and resolves every pool against registry.
func NewSource(cfg Config, caller Caller, blocks BlockSource, registry *asset.Registry, log logger.LoggerInterface) (*Source, error) {
	if caller == nil || blocks == nil {
		return nil, apperror.Validation(apperror.CodeRequiredField, "uniswap: caller and block source")
	}
	if !common.IsHexAddress(cfg.StateView) {
		return nil, apperror.Validation(apperror.CodeInvalidFormat, "uniswap: state_view address "+cfg.StateView)
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput, "uniswap: requests per second must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if log == nil {
		log = logger.Nop()
	}
	if registry == nil {
		registry = asset.DefaultRegistry()
	}

	s := &Source{
		cfg:       cfg,
		stateView: common.HexToAddress(cfg.StateView),
		pools:     make(map[domain.Instrument]pool, len(cfg.Pools)),
		caller:    caller,
		blocks:    blocks,
		limiter:   ratelimit.NewWithBurst(cfg.RequestsPerSecond, cfg.Burst),
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	for _, pc := range cfg.Pools {
		p, err := resolvePool(pc, registry, cfg.ChainID)
		if err != nil {
			return nil, err
		}
		if _, dup := s.pools[p.instrument]; dup {
			return nil, apperror.Validation(apperror.CodeInvalidInput, "uniswap: duplicate pool for "+p.instrument.String())
		}
		s.pools[p.instrument] = p
	}

	cbCfg := circuitbreaker.DefaultConfig("uniswap-stateview")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return s, nil
}

func (s *Source) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &providerMetrics{}

	s.metrics.readsTotal, err = meter.Int64Counter(
		"uniswap_slot0_reads_total",
		metric.WithDescription("Total getSlot0 reads"),
	)
	if err != nil {
		return err
	}

	s.metrics.readLatency, err = meter.Float64Histogram(
		"uniswap_slot0_latency_ms",
		metric.WithDescription("getSlot0 latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.readErrors, err = meter.Int64Counter(
		"uniswap_slot0_errors_total",
		metric.WithDescription("Total getSlot0 errors"),
	)
	return err
}

// Venue implements PriceFeedSource.
func (s *Source) Venue() domain.Venue { return domain.VenueUniswapV4 }

// Instruments returns the instruments with a configured pool.
func (s *Source) Instruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(s.pools))
	for inst := range s.pools {
		out = append(out, inst)
	}
	return out
}

// Subscribe implements PriceFeedSource.
func (s *Source) Subscribe(ctx context.Context, inst domain.Instrument) (app.Feed, error) {
	p, ok := s.pools[inst]
	if !ok {
		return nil, apperror.New(apperror.CodeUnknownInstrument,
			apperror.WithContext("no uniswap pool configured for "+inst.String()))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperror.New(apperror.CodeFeedClosed, apperror.WithContext("uniswap"))
	}
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)
	s.wg.Add(1)
	s.mu.Unlock()

	blocks, stop := s.blocks.WatchBlocks()
	stream := app.NewUpdateStream(domain.MarketKey{Venue: domain.VenueUniswapV4, Instrument: inst}, s.cfg.BufferSize)

	go func() {
		defer s.wg.Done()
		defer stop()
		s.pollPool(pollCtx, p, blocks, stream)
	}()

	s.logger.Info(ctx, "uniswap feed subscribed",
		"instrument", inst.String(), "pool_id", p.id.Hex(), "invert", p.invert)
	return stream, nil
}

// pollPool reads slot0 once per new block until ctx is done. Read failures
// skip the block; the feed only ends when ctx does or the block source goes away.
func (s *Source) pollPool(ctx context.Context, p pool, blocks <-chan *bcdomain.Block, stream *app.UpdateStream) {
	var last uint64
	for {
		select {
		case <-ctx.Done():
			stream.Close()
			return
		case b, ok := <-blocks:
			if !ok {
				if ctx.Err() != nil {
					stream.Close()
					return
				}
				stream.Fail(apperror.New(apperror.CodeEthereumSubscribeFailed,
					apperror.WithContext("block source ended")))
				return
			}
			if b.Number <= last {
				continue
			}
			last = b.Number

			u, err := s.quote(ctx, p, b)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn(ctx, "uniswap read failed",
						"instrument", p.instrument.String(), "block", b.Number, "error", err)
				}
				continue
			}
			stream.Publish(u)
		}
	}
}

// quote reads slot0 pinned at block b and converts it into a canonical update.
func (s *Source) quote(ctx context.Context, p pool, b *bcdomain.Block) (domain.PriceUpdate, error) {
	slot, err := s.readSlot0(ctx, p.id, b.Number)
	if err != nil {
		return domain.PriceUpdate{}, err
	}

	mid, err := asset.PriceFromSqrtX96(slot.SqrtPriceX96, p.token0, p.token1)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(err))
	}
	if p.invert {
		if mid, err = asset.Invert(mid); err != nil {
			return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(err))
		}
	}

	bid, ask := asset.ApplyFee(mid, slot.LPFee)
	return domain.NewPriceUpdate(domain.VenueUniswapV4, p.instrument, bid, ask, b.Timestamp, b.Number)
}

// readSlot0 calls StateView.getSlot0 through the rate limiter and breaker.
func (s *Source) readSlot0(ctx context.Context, poolID common.Hash, blockNumber uint64) (Slot0, error) {
	ctx, span := s.tracer.Start(ctx, "uniswap.get_slot0",
		trace.WithAttributes(
			attribute.String("pool_id", poolID.Hex()),
			attribute.Int64("block", int64(blockNumber)),
		),
	)
	defer span.End()

	if err := s.limiter.Wait(ctx); err != nil {
		return Slot0{}, err
	}

	callData, err := packGetSlot0(poolID)
	if err != nil {
		return Slot0{}, fmt.Errorf("failed to encode call: %w", err)
	}

	start := time.Now()
	s.metrics.readsTotal.Add(ctx, 1)

	result, err := s.cb.Execute(func() ([]byte, error) {
		callCtx := ctx
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}
		return s.caller.CallContract(callCtx, ethereum.CallMsg{
			To:   &s.stateView,
			Data: callData,
		}, new(big.Int).SetUint64(blockNumber))
	})
	s.metrics.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		s.metrics.readErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "getSlot0 failed")
		if circuitbreaker.IsOpen(err) {
			return Slot0{}, apperror.New(apperror.CodeCircuitOpen, apperror.WithContext(s.cb.Name()), apperror.WithCause(err))
		}
		return Slot0{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("getSlot0 "+poolID.Hex()))
	}

	slot, err := unpackSlot0(result)
	if err != nil {
		s.metrics.readErrors.Add(ctx, 1)
		span.RecordError(err)
		return Slot0{}, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(err))
	}

	span.SetAttributes(
		attribute.String("sqrt_price_x96", slot.SqrtPriceX96.String()),
		attribute.Int("lp_fee", int(slot.LPFee)),
	)
	span.SetStatus(codes.Ok, "slot0 read")
	return slot, nil
}

// Shutdown implements PriceFeedSource.
func (s *Source) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return nil
}
