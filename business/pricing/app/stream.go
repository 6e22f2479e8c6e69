package app

import (
	"sync"
	"sync/atomic"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// UpdateStream is the producing side of a Feed shared by all adapters. It
// enforces per-instrument ordering and never blocks the producer: when the
// buffer is full the oldest pending update is evicted.
type UpdateStream struct {
	key     domain.MarketKey
	updates chan domain.PriceUpdate
	done    chan struct{}

	mu      sync.Mutex
	last    domain.PriceUpdate
	hasLast bool
	closed  bool
	err     error

	published atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
}

// NewUpdateStream creates a stream buffering up to size updates.
func NewUpdateStream(key domain.MarketKey, size int) *UpdateStream {
	if size <= 0 {
		size = 1
	}
	return &UpdateStream{
		key:     key,
		updates: make(chan domain.PriceUpdate, size),
		done:    make(chan struct{}),
	}
}

// Key returns the market the stream serves.
func (s *UpdateStream) Key() domain.MarketKey { return s.key }

// Updates implements Feed.
func (s *UpdateStream) Updates() <-chan domain.PriceUpdate { return s.updates }

// Done is closed when the stream ends. Producers select on it to stop.
func (s *UpdateStream) Done() <-chan struct{} { return s.done }

// Err implements Feed.
func (s *UpdateStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Publish offers u to the consumer. Updates for another market, updates that
// do not supersede the last published one and updates after close are
// rejected and reported as false.
func (s *UpdateStream) Publish(u domain.PriceUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || u.Key() != s.key {
		s.rejected.Add(1)
		return false
	}
	if s.hasLast && !u.Supersedes(s.last) {
		s.rejected.Add(1)
		return false
	}
	s.last = u
	s.hasLast = true

	for {
		select {
		case s.updates <- u:
			s.published.Add(1)
			return true
		default:
		}
		select {
		case <-s.updates:
			s.dropped.Add(1)
		default:
		}
	}
}

// Fail ends the stream with an unrecoverable error. Only the first terminal call counts.
func (s *UpdateStream) Fail(err error) {
	s.end(err)
}

// Close ends the stream cleanly.
func (s *UpdateStream) Close() {
	s.end(nil)
}

func (s *UpdateStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.updates)
	close(s.done)
}

// StreamStats is a snapshot of a stream's counters.
type StreamStats struct {
	Published int64
	Rejected  int64
	Dropped   int64
}

// Stats returns the stream counters.
func (s *UpdateStream) Stats() StreamStats {
	return StreamStats{
		Published: s.published.Load(),
		Rejected:  s.rejected.Load(),
		Dropped:   s.dropped.Load(),
	}
}
