package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

const meterName = "github.com/fd1az/arbitrage-detector/business/arbitrage/infra"

// AsyncSink puts a bounded queue in front of a slow sink. Publish never
// blocks: when the queue is full the opportunity is dropped and counted.
type AsyncSink struct {
	next    app.OpportunitySink
	timeout time.Duration
	logger  logger.LoggerInterface

	queue chan domain.Opportunity
	stop  chan struct{}
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64

	droppedCounter metric.Int64Counter
}

// NewAsyncSink starts the delivery worker. timeout bounds each delivery.
func NewAsyncSink(next app.OpportunitySink, size int, timeout time.Duration, log logger.LoggerInterface) *AsyncSink {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &AsyncSink{
		next:    next,
		timeout: timeout,
		logger:  log,
		queue:   make(chan domain.Opportunity, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.droppedCounter, _ = otel.Meter(meterName).Int64Counter(
		"sink_dropped_total",
		metric.WithDescription("Opportunities dropped because the sink queue was full"),
		metric.WithUnit("{opportunity}"),
	)
	go s.run()
	return s
}

// Publish enqueues opp.
func (s *AsyncSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return apperror.New(apperror.CodeSinkPublishFailed, apperror.WithContext("sink closed"))
	}

	select {
	case s.queue <- opp:
		return nil
	default:
		s.dropped.Add(1)
		if s.droppedCounter != nil {
			s.droppedCounter.Add(ctx, 1)
		}
		return apperror.New(apperror.CodeSinkPublishFailed, apperror.WithContext("sink queue full"))
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for {
		select {
		case opp := <-s.queue:
			s.deliver(opp)
		case <-s.stop:
			for {
				select {
				case opp := <-s.queue:
					s.deliver(opp)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(opp domain.Opportunity) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.next.Publish(ctx, opp); err != nil {
		s.failed.Add(1)
		s.logger.Warn(ctx, "opportunity delivery failed", "id", opp.ID.String(), "error", err)
		return
	}
	s.delivered.Add(1)
}

// Close stops accepting opportunities, delivers what is queued and waits
// for the worker or ctx.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many opportunities were dropped on a full queue.
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Delivered returns how many opportunities the wrapped sink accepted.
func (s *AsyncSink) Delivered() int64 { return s.delivered.Load() }

// Failed returns how many deliveries the wrapped sink refused.
func (s *AsyncSink) Failed() int64 { return s.failed.Load() }
