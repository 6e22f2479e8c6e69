// Package wsconn keeps one logical subscription alive over an unreliable
// streaming transport. It reconnects with backoff, replays the subscription
// handshake on every new connection and probes liveness with heartbeats,
// while exposing a single message channel that only ends on shutdown or an
// unrecoverable error.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/retry"
)

const meterName = "github.com/fd1az/arbitrage-detector/internal/wsconn"

// Config holds stream client configuration.
type Config struct {
	URL  string
	Name string

	// HeartbeatInterval between pings. Zero disables heartbeats.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long to wait for a pong.
	HeartbeatTimeout time.Duration
	// HandshakeTimeout bounds dial plus subscription acknowledgment.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	Backoff retry.Config
	// MaxReconnects bounds consecutive failed attempts. Zero retries forever.
	MaxReconnects int

	// BufferSize of the outbound message channel. When full the oldest message is dropped.
	BufferSize     int
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:               url,
		Name:              name,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		Backoff:           retry.DefaultConfig(),
		BufferSize:        256,
		MaxMessageSize:    1 << 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.URL == "":
		return apperror.Validation(apperror.CodeRequiredField, "wsconn: url")
	case c.HeartbeatInterval < 0:
		return apperror.Validation(apperror.CodeInvalidInput, "wsconn: negative heartbeat interval")
	case c.HeartbeatInterval > 0 && c.HeartbeatTimeout <= 0:
		return apperror.Validation(apperror.CodeInvalidInput, "wsconn: heartbeat timeout must be positive")
	case c.HandshakeTimeout <= 0:
		return apperror.Validation(apperror.CodeInvalidInput, "wsconn: handshake timeout must be positive")
	case c.BufferSize <= 0:
		return apperror.Validation(apperror.CodeInvalidInput, "wsconn: buffer size must be positive")
	case c.MaxReconnects < 0:
		return apperror.Validation(apperror.CodeInvalidInput, "wsconn: negative max reconnects")
	}
	return c.Backoff.Validate()
}

// Handshake sends the subscription request on a fresh connection and waits
// for the venue's acknowledgment. Returning retry.Permanent(err) stops the
// client for good.
type Handshake func(ctx context.Context, conn Conn) error

// StateHandler observes state transitions.
type StateHandler func(from, to State, err error)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket transport.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(log logger.LoggerInterface) Option {
	return func(c *Client) { c.logger = log }
}

// WithHandshake sets the subscription handshake replayed after every connect.
func WithHandshake(h Handshake) Option {
	return func(c *Client) { c.handshake = h }
}

type clientMetrics struct {
	received          metric.Int64Counter
	dropped           metric.Int64Counter
	reconnects        metric.Int64Counter
	heartbeatTimeouts metric.Int64Counter
	state             metric.Int64Gauge
}

// Client is a resilient stream client.
type Client struct {
	cfg       Config
	dialer    Dialer
	handshake Handshake
	logger    logger.LoggerInterface

	stateMu  sync.Mutex
	state    State
	handlers []StateHandler

	connMu sync.RWMutex
	conn   Conn

	messages chan []byte
	dropped  atomic.Int64

	lifeMu  sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	metrics *clientMetrics
	attrs   metric.MeasurementOption
}

// New creates a new stream client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		state:    StateDisconnected,
		messages: make(chan []byte, cfg.BufferSize),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
		attrs:    metric.WithAttributes(attribute.String("stream", cfg.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = WebsocketDialer{ReadLimit: cfg.MaxMessageSize}
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.received, err = meter.Int64Counter(
		"stream_messages_received_total",
		metric.WithDescription("Messages read from the stream"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	c.metrics.dropped, err = meter.Int64Counter(
		"stream_messages_dropped_total",
		metric.WithDescription("Messages dropped because the consumer fell behind"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	c.metrics.reconnects, err = meter.Int64Counter(
		"stream_reconnects_total",
		metric.WithDescription("Reconnect attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	c.metrics.heartbeatTimeouts, err = meter.Int64Counter(
		"stream_heartbeat_timeouts_total",
		metric.WithDescription("Heartbeats that did not receive a pong in time"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return err
	}

	c.metrics.state, err = meter.Int64Gauge(
		"stream_connection_state",
		metric.WithDescription("Connection state (0=disconnected, 1=connecting, 2=connected, 3=awaiting_pong, 4=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	return err
}

// Start launches the connection loop. It returns immediately; progress is
// observable through State and OnStateChange.
func (c *Client) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.closed {
		return apperror.New(apperror.CodeStreamClosed, apperror.WithContext(c.cfg.Name))
	}
	if c.started {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext(c.cfg.Name+": already started"))
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(runCtx)
	return nil
}

// Messages returns the lazy message sequence. The channel is closed only
// after Close, context cancellation or an unrecoverable error.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Done is closed once the client has fully stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the unrecoverable error that stopped the client, if any.
func (c *Client) Err() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.err
}

// Dropped returns how many messages were discarded for backpressure.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// OnStateChange registers a handler invoked synchronously on every transition.
func (c *Client) OnStateChange(h StateHandler) {
	c.stateMu.Lock()
	c.handlers = append(c.handlers, h)
	c.stateMu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether a live, subscribed connection exists.
func (c *Client) IsConnected() bool {
	s := c.State()
	return s == StateConnected || s == StateAwaitingPong
}

// Send writes data on the current connection.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeStreamNotConnected, apperror.WithContext(c.cfg.Name))
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, data); err != nil {
		return apperror.External(apperror.CodeStreamSendError, c.cfg.Name, err)
	}
	return nil
}

// SendJSON marshals v and sends it.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidFormat, apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// Close stops the client and waits for the loop to exit. It is idempotent.
func (c *Client) Close() error {
	c.lifeMu.Lock()
	if c.closed {
		c.lifeMu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.lifeMu.Unlock()

	if !started {
		close(c.messages)
		close(c.done)
		return nil
	}

	cancel()
	<-c.done
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer c.finish(ctx)

	bo := retry.New(c.cfg.Backoff)
	failures := 0

	for {
		c.transition(StateConnecting, nil)

		conn, err := c.establish(ctx)
		if err == nil {
			bo.Reset()
			failures = 0
			c.transition(StateConnected, nil)
			c.logger.Info(ctx, "stream connected", "stream", c.cfg.Name, "url", c.cfg.URL)

			err = c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return
		}
		if retry.IsPermanent(err) {
			c.fail(ctx, err)
			return
		}

		failures++
		c.transition(StateReconnecting, err)
		if c.cfg.MaxReconnects > 0 && failures > c.cfg.MaxReconnects {
			c.fail(ctx, apperror.New(apperror.CodeStreamReconnectExceeded,
				apperror.WithContext(fmt.Sprintf("%s: %d attempts", c.cfg.Name, failures)),
				apperror.WithCause(err)))
			return
		}

		delay := bo.Next()
		c.logger.Warn(ctx, "stream disconnected, reconnecting",
			"stream", c.cfg.Name, "attempt", failures, "delay", delay, "error", err)
		c.metrics.reconnects.Add(ctx, 1, c.attrs)

		if !retry.Sleep(ctx.Done(), delay) {
			return
		}
	}
}

// establish dials and runs the subscription handshake within HandshakeTimeout.
func (c *Client) establish(ctx context.Context) (Conn, error) {
	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(hsCtx, c.cfg.URL)
	if err != nil {
		return nil, apperror.External(apperror.CodeStreamDialFailed, c.cfg.Name, err)
	}

	if c.handshake != nil {
		if err := c.handshake(hsCtx, conn); err != nil {
			_ = conn.Close("handshake failed")
			if retry.IsPermanent(err) {
				return nil, err
			}
			return nil, apperror.External(apperror.CodeStreamHandshakeFailed, c.cfg.Name, err)
		}
	}

	return conn, nil
}

// serve pumps messages until the connection fails. The returned error is
// the first failure cause: a read error or a heartbeat timeout.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close("")
	}()

	var wg sync.WaitGroup
	if c.cfg.HeartbeatInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.heartbeat(connCtx, conn, cancel)
		}()
	}

	readErr := c.readLoop(connCtx, conn)
	cancel(readErr)
	wg.Wait()

	return context.Cause(connCtx)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.metrics.received.Add(ctx, 1, c.attrs)
		c.deliver(ctx, data)
	}
}

// deliver enqueues without blocking: when the buffer is full the oldest
// message is evicted.
func (c *Client) deliver(ctx context.Context, data []byte) {
	for {
		select {
		case c.messages <- data:
			return
		default:
		}

		select {
		case <-c.messages:
			c.dropped.Add(1)
			c.metrics.dropped.Add(ctx, 1, c.attrs)
		default:
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, conn Conn, stop context.CancelCauseFunc) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !c.transition(StateAwaitingPong, nil) {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.HeartbeatTimeout)
		err := conn.Ping(pingCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.metrics.heartbeatTimeouts.Add(ctx, 1, c.attrs)
			stop(apperror.External(apperror.CodeStreamHeartbeatTimeout, c.cfg.Name, err))
			_ = conn.Close("heartbeat timeout")
			return
		}

		c.transition(StateConnected, nil)
	}
}

func (c *Client) setConn(conn Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) fail(ctx context.Context, err error) {
	c.logger.Error(ctx, "stream stopped on unrecoverable error", "stream", c.cfg.Name, "error", err)
	c.lifeMu.Lock()
	c.err = err
	c.lifeMu.Unlock()
}

func (c *Client) finish(ctx context.Context) {
	c.transition(StateDisconnected, c.Err())
	close(c.messages)
	close(c.done)

	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	c.logger.Info(context.WithoutCancel(ctx), "stream stopped", "stream", c.cfg.Name)
}

// transition applies from -> to when the table allows it.
func (c *Client) transition(to State, err error) bool {
	c.stateMu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.stateMu.Unlock()
		if from != to {
			c.logger.Debug(context.Background(), "rejected state transition",
				"stream", c.cfg.Name, "from", from.String(), "to", to.String())
		}
		return false
	}
	c.state = to
	handlers := make([]StateHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.stateMu.Unlock()

	c.metrics.state.Record(context.Background(), int64(to), c.attrs)
	for _, h := range handlers {
		h(from, to, err)
	}
	return true
}
