package binance

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/wsfeed"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/retry"
	"github.com/fd1az/arbitrage-detector/internal/wsconn"
)

// Ensure Source implements PriceFeedSource.
var _ app.PriceFeedSource = (*Source)(nil)

const (
	// BaseWSURL is the raw stream endpoint.
	BaseWSURL = "wss://stream.binance.com:9443/ws"
	// BaseWSURLUS is the endpoint for users in the USA.
	BaseWSURLUS = "wss://stream.binance.us:9443/ws"
)

// Config holds configuration for the Binance source.
type Config struct {
	URL string
	// Symbols overrides the exchange symbol per instrument ("ETH-USD": "ETHUSDT").
	Symbols map[string]string
	// BufferSize of each feed's update buffer.
	BufferSize int
	// Stream is the template for every connection. URL and Name are set per feed.
	Stream wsconn.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:        BaseWSURL,
		BufferSize: 64,
		Stream:     wsconn.DefaultConfig(BaseWSURL, "binance"),
	}
}

// Option configures a Source.
type Option func(*Source)

// WithDialer replaces the websocket transport of every feed.
func WithDialer(d wsconn.Dialer) Option {
	return func(s *Source) { s.dialer = d }
}

// WithClock sets the clock stamping updates. The bookTicker stream carries no event time.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// Source streams best bid/ask for any number of instruments, one connection
// per instrument.
type Source struct {
	cfg    Config
	logger logger.LoggerInterface
	dialer wsconn.Dialer
	now    func() time.Time

	nextID atomic.Int64
	group  wsfeed.Group
}

// NewSource creates a Binance source.
func NewSource(cfg Config, log logger.LoggerInterface, opts ...Option) *Source {
	if cfg.URL == "" {
		cfg.URL = BaseWSURL
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Source{cfg: cfg, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Venue implements PriceFeedSource.
func (s *Source) Venue() domain.Venue { return domain.VenueBinance }

// Subscribe implements PriceFeedSource.
func (s *Source) Subscribe(ctx context.Context, inst domain.Instrument) (app.Feed, error) {
	if s.group.Closed() {
		return nil, apperror.New(apperror.CodeFeedClosed, apperror.WithContext("binance"))
	}

	symbol := s.symbol(inst)
	streamCfg := s.cfg.Stream
	streamCfg.URL = s.cfg.URL
	streamCfg.Name = "binance:" + inst.String()

	opts := []wsconn.Option{
		wsconn.WithLogger(s.logger),
		wsconn.WithHandshake(s.handshake(BookTickerStream(symbol))),
	}
	if s.dialer != nil {
		opts = append(opts, wsconn.WithDialer(s.dialer))
	}
	client, err := wsconn.New(streamCfg, opts...)
	if err != nil {
		return nil, err
	}

	stream := app.NewUpdateStream(domain.MarketKey{Venue: domain.VenueBinance, Instrument: inst}, s.cfg.BufferSize)
	session, err := wsfeed.Start(ctx, client, stream, s.decoder(inst, symbol), s.logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := s.group.Add(session); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "binance feed subscribed", "instrument", inst.String(), "symbol", symbol)
	return stream, nil
}

// Shutdown implements PriceFeedSource.
func (s *Source) Shutdown() error {
	return s.group.Close()
}

func (s *Source) symbol(inst domain.Instrument) string {
	if sym, ok := s.cfg.Symbols[inst.String()]; ok && sym != "" {
		return strings.ToUpper(sym)
	}
	return Symbol(inst)
}

// handshake subscribes to stream and waits for the reply carrying our id.
// Frames that arrive before it are skipped. A refusal is permanent.
func (s *Source) handshake(stream string) wsconn.Handshake {
	return func(ctx context.Context, conn wsconn.Conn) error {
		id := s.nextID.Add(1)
		req, err := json.Marshal(WSRequest{Method: "SUBSCRIBE", Params: []string{stream}, ID: id})
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, req); err != nil {
			return err
		}

		for {
			data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			var resp WSResponse
			if json.Unmarshal(data, &resp) != nil || resp.ID != id {
				continue
			}
			if resp.Error != nil {
				return retry.Permanent(apperror.New(apperror.CodeSubscriptionRejected,
					apperror.WithContext(stream), apperror.WithCause(resp.Error)))
			}
			return nil
		}
	}
}

func (s *Source) decoder(inst domain.Instrument, symbol string) wsfeed.Decoder {
	return func(data []byte) (domain.PriceUpdate, bool, error) {
		ev, ok, err := decodeFrame(data)
		if err != nil || !ok {
			return domain.PriceUpdate{}, false, err
		}
		if !strings.EqualFold(ev.Symbol, symbol) {
			return domain.PriceUpdate{}, false, apperror.New(apperror.CodeUnknownInstrument,
				apperror.WithContext("unexpected symbol "+ev.Symbol))
		}
		u, err := ev.ToPriceUpdate(inst, s.now())
		return u, err == nil, err
	}
}
