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
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

const (
	defaultReporterQueue = 1024
	reporterStopTimeout  = 2 * time.Second
)

var _ app.Reporter = (*BufferedReporter)(nil)

// BufferedReporter runs a Reporter on its own goroutine. The engine-facing
// methods only enqueue; when the queue is full the oldest pending event is
// dropped, so a stalled terminal or UI never holds up detection.
type BufferedReporter struct {
	next   app.Reporter
	logger logger.LoggerInterface

	queue chan func()
	stop  chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	dropped        atomic.Int64
	droppedCounter metric.Int64Counter
}

// NewBufferedReporter starts the worker draining into next.
func NewBufferedReporter(next app.Reporter, size int, log logger.LoggerInterface) *BufferedReporter {
	if size <= 0 {
		size = defaultReporterQueue
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &BufferedReporter{
		next:   next,
		logger: log,
		queue:  make(chan func(), size),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.droppedCounter, _ = otel.Meter(meterName).Int64Counter(
		"reporter_dropped_total",
		metric.WithDescription("Reporter events dropped because the reporter fell behind"),
		metric.WithUnit("{event}"),
	)
	go r.run()
	return r
}

// Start queues the wrapped reporter's Start.
func (r *BufferedReporter) Start(ctx context.Context) error {
	r.enqueue(func() {
		if err := r.next.Start(ctx); err != nil {
			r.logger.Warn(ctx, "reporter start failed", "error", err)
		}
	})
	return nil
}

// Publish queues opp. It never fails; a lagging reporter loses its oldest events.
func (r *BufferedReporter) Publish(ctx context.Context, opp domain.Opportunity) error {
	r.enqueue(func() {
		if err := r.next.Publish(context.WithoutCancel(ctx), opp); err != nil {
			r.logger.Warn(ctx, "reporter publish failed", "id", opp.ID.String(), "error", err)
		}
	})
	return nil
}

func (r *BufferedReporter) UpdatePrice(u pricingDomain.PriceUpdate) {
	r.enqueue(func() { r.next.UpdatePrice(u) })
}

func (r *BufferedReporter) UpdateFeedStatus(s app.FeedStatus) {
	r.enqueue(func() { r.next.UpdateFeedStatus(s) })
}

// Stop delivers what is queued, waiting at most two seconds, then stops
// the wrapped reporter.
func (r *BufferedReporter) Stop() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.stop)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(reporterStopTimeout):
		r.logger.Warn(context.Background(), "reporter did not drain before stop")
	}
	return r.next.Stop()
}

// Dropped returns how many events were evicted from a full queue.
func (r *BufferedReporter) Dropped() int64 { return r.dropped.Load() }

// enqueue holds mu so concurrent producers cannot starve each other while
// evicting; the worker is the only other reader of the queue.
func (r *BufferedReporter) enqueue(ev func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for {
		select {
		case r.queue <- ev:
			return
		default:
		}
		select {
		case <-r.queue:
			r.dropped.Add(1)
			if r.droppedCounter != nil {
				r.droppedCounter.Add(context.Background(), 1)
			}
		default:
		}
	}
}

func (r *BufferedReporter) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			ev()
		case <-r.stop:
			for {
				select {
				case ev := <-r.queue:
					ev()
				default:
					return
				}
			}
		}
	}
}
