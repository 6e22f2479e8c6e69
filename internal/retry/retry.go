// Package retry holds the reconnect backoff policy shared by the streaming
// clients. Delays come from cenkalti/backoff and are clamped to a hard cap.
package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config describes an exponential backoff.
type Config struct {
	Base   time.Duration `mapstructure:"base"`
	Cap    time.Duration `mapstructure:"cap"`
	Jitter float64       `mapstructure:"jitter"` // randomization factor in [0, 1]
}

// DefaultConfig mirrors the reconnect policy used for venue streams: 1s doubling up to 60s.
func DefaultConfig() Config {
	return Config{
		Base:   time.Second,
		Cap:    60 * time.Second,
		Jitter: 0.2,
	}
}

// Validate checks the policy bounds.
func (c Config) Validate() error {
	if c.Base <= 0 {
		return errors.New("retry: base must be positive")
	}
	if c.Cap < c.Base {
		return fmt.Errorf("retry: cap %s is below base %s", c.Cap, c.Base)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("retry: jitter %.2f outside [0,1]", c.Jitter)
	}
	return nil
}

// Backoff yields successive reconnect delays. It is not safe for concurrent use.
type Backoff struct {
	cap time.Duration
	exp *backoff.ExponentialBackOff
}

// New creates a Backoff from cfg.
func New(cfg Config) *Backoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.Base
	exp.MaxInterval = cfg.Cap
	exp.Multiplier = 2
	exp.RandomizationFactor = cfg.Jitter
	exp.Reset()

	return &Backoff{cap: cfg.Cap, exp: exp}
}

// Next returns the next delay, never above the cap.
func (b *Backoff) Next() time.Duration {
	d := b.exp.NextBackOff()
	if d == backoff.Stop || d > b.cap {
		return b.cap
	}
	return d
}

// Reset restarts the sequence at the base delay.
func (b *Backoff) Reset() {
	b.exp.Reset()
}

// Permanent marks err as unrecoverable: callers must not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Sleep waits for d or until ctx-like done fires. It returns false when done won.
func Sleep(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}
