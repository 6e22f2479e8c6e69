// Package wsfeed binds a resilient stream client to a pricing UpdateStream.
// Venue adapters supply the handshake and the payload decoder; the session
// owns the pump between them.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/wsconn"
)

const meterName = "github.com/fd1az/arbitrage-detector/business/pricing/infra/wsfeed"

// Decoder turns one raw frame into a price update. ok is false for control
// frames (acks, heartbeats) that carry no price. A non-nil error marks the
// frame malformed.
type Decoder func(data []byte) (u domain.PriceUpdate, ok bool, err error)

type sessionMetrics struct {
	updates   metric.Int64Counter
	malformed metric.Int64Counter
	rejected  metric.Int64Counter
}

// Session pumps decoded frames from one client into one stream.
type Session struct {
	client *wsconn.Client
	stream *app.UpdateStream
	decode Decoder
	logger logger.LoggerInterface

	malformed atomic.Int64
	finished  chan struct{}

	metrics *sessionMetrics
	attrs   metric.MeasurementOption
}

// Start launches client and the pump. Cancelling ctx ends the session cleanly.
func Start(ctx context.Context, client *wsconn.Client, stream *app.UpdateStream, decode Decoder, log logger.LoggerInterface) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	key := stream.Key()
	s := &Session{
		client:   client,
		stream:   stream,
		decode:   decode,
		logger:   log,
		finished: make(chan struct{}),
		attrs: metric.WithAttributes(
			attribute.String("venue", key.Venue.String()),
			attribute.String("instrument", key.Instrument.String()),
		),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return nil, err
	}
	go s.pump(context.WithoutCancel(ctx))
	return s, nil
}

func (s *Session) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sessionMetrics{}

	s.metrics.updates, err = meter.Int64Counter(
		"feed_updates_total",
		metric.WithDescription("Price updates published to the feed"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	s.metrics.malformed, err = meter.Int64Counter(
		"feed_malformed_total",
		metric.WithDescription("Frames dropped as malformed"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	s.metrics.rejected, err = meter.Int64Counter(
		"feed_out_of_order_total",
		metric.WithDescription("Updates rejected because they did not supersede the last one"),
		metric.WithUnit("{update}"),
	)
	return err
}

func (s *Session) pump(ctx context.Context) {
	defer close(s.finished)
	key := s.stream.Key()

	for data := range s.client.Messages() {
		u, ok, err := s.decode(data)
		if err != nil {
			s.malformed.Add(1)
			s.metrics.malformed.Add(ctx, 1, s.attrs)
			s.logger.Warn(ctx, "dropping malformed payload",
				"market", key.String(), "error", err, "payload", truncate(data, 256))
			continue
		}
		if !ok {
			continue
		}
		if s.stream.Publish(u) {
			s.metrics.updates.Add(ctx, 1, s.attrs)
		} else {
			s.metrics.rejected.Add(ctx, 1, s.attrs)
		}
	}

	if err := s.client.Err(); err != nil {
		s.logger.Error(ctx, "feed failed", "market", key.String(), "error", err)
		s.stream.Fail(err)
		return
	}
	s.stream.Close()
}

// Close stops the client and waits for the pump to drain.
func (s *Session) Close() error {
	err := s.client.Close()
	<-s.finished
	return err
}

// Malformed returns how many frames were dropped as malformed.
func (s *Session) Malformed() int64 {
	return s.malformed.Load()
}

// State returns the underlying connection state.
func (s *Session) State() wsconn.State {
	return s.client.State()
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}

// Group tracks the sessions of one source so Shutdown can close them all.
type Group struct {
	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

// Add registers s. After Close it closes s immediately and reports an error.
func (g *Group) Add(s *Session) error {
	g.mu.Lock()
	if !g.closed {
		g.sessions = append(g.sessions, s)
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	_ = s.Close()
	return apperror.New(apperror.CodeFeedClosed)
}

// Closed reports whether Close has been called.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close closes every session. It is idempotent.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	sessions := g.sessions
	g.sessions = nil
	g.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
