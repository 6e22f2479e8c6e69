package coinbase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fd1az/arbitrage-detector/business/pricing/app"
	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/business/pricing/infra/wsfeed"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/retry"
	"github.com/fd1az/arbitrage-detector/internal/wsconn"
)

var _ app.PriceFeedSource = (*Source)(nil)

// BaseWSURL is the public market data feed.
const BaseWSURL = "wss://ws-feed.exchange.coinbase.com"

// Config holds configuration for the Coinbase source.
type Config struct {
	URL string
	// Products overrides the product id per instrument ("ETH-USDC": "ETH-USD").
	Products   map[string]string
	BufferSize int
	Stream     wsconn.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:        BaseWSURL,
		BufferSize: 64,
		Stream:     wsconn.DefaultConfig(BaseWSURL, "coinbase"),
	}
}

// Option configures a Source.
type Option func(*Source)

// WithDialer replaces the websocket transport of every feed.
func WithDialer(d wsconn.Dialer) Option {
	return func(s *Source) { s.dialer = d }
}

// Source streams the ticker channel, one connection per instrument.
type Source struct {
	cfg    Config
	logger logger.LoggerInterface
	dialer wsconn.Dialer
	group  wsfeed.Group
}

// NewSource creates a Coinbase source.
func NewSource(cfg Config, log logger.LoggerInterface, opts ...Option) *Source {
	if cfg.URL == "" {
		cfg.URL = BaseWSURL
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Source{cfg: cfg, logger: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Venue implements PriceFeedSource.
func (s *Source) Venue() domain.Venue { return domain.VenueCoinbase }

// Subscribe implements PriceFeedSource.
func (s *Source) Subscribe(ctx context.Context, inst domain.Instrument) (app.Feed, error) {
	if s.group.Closed() {
		return nil, apperror.New(apperror.CodeFeedClosed, apperror.WithContext("coinbase"))
	}

	product := s.product(inst)
	streamCfg := s.cfg.Stream
	streamCfg.URL = s.cfg.URL
	streamCfg.Name = "coinbase:" + inst.String()

	opts := []wsconn.Option{
		wsconn.WithLogger(s.logger),
		wsconn.WithHandshake(handshake(product)),
	}
	if s.dialer != nil {
		opts = append(opts, wsconn.WithDialer(s.dialer))
	}
	client, err := wsconn.New(streamCfg, opts...)
	if err != nil {
		return nil, err
	}

	stream := app.NewUpdateStream(domain.MarketKey{Venue: domain.VenueCoinbase, Instrument: inst}, s.cfg.BufferSize)
	session, err := wsfeed.Start(ctx, client, stream, decoder(inst, product), s.logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := s.group.Add(session); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "coinbase feed subscribed", "instrument", inst.String(), "product_id", product)
	return stream, nil
}

// Shutdown implements PriceFeedSource.
func (s *Source) Shutdown() error {
	return s.group.Close()
}

func (s *Source) product(inst domain.Instrument) string {
	if id, ok := s.cfg.Products[inst.String()]; ok && id != "" {
		return strings.ToUpper(id)
	}
	return ProductID(inst)
}

// handshake subscribes to the ticker and heartbeat channels and waits for
// the subscriptions reply. An error reply is permanent.
func handshake(product string) wsconn.Handshake {
	return func(ctx context.Context, conn wsconn.Conn) error {
		req, err := json.Marshal(Request{
			Type:       TypeSubscribe,
			ProductIDs: []string{product},
			Channels:   []string{ChannelTicker, ChannelHeartbeat},
		})
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
			env, err := decodeEnvelope(data)
			if err != nil {
				continue
			}
			switch env.Type {
			case TypeError:
				return retry.Permanent(apperror.New(apperror.CodeSubscriptionRejected,
					apperror.WithContext(product+": "+env.ErrorText())))
			case TypeSubscriptions:
				if !env.Subscribed(ChannelTicker, product) {
					return retry.Permanent(apperror.New(apperror.CodeSubscriptionRejected,
						apperror.WithContext(product+": ticker channel not confirmed")))
				}
				return nil
			}
		}
	}
}

func decoder(inst domain.Instrument, product string) wsfeed.Decoder {
	return func(data []byte) (domain.PriceUpdate, bool, error) {
		env, err := decodeEnvelope(data)
		if err != nil {
			return domain.PriceUpdate{}, false, err
		}
		switch env.Type {
		case TypeTicker:
		case TypeError:
			return domain.PriceUpdate{}, false, apperror.New(apperror.CodeMalformedPayload,
				apperror.WithContext(env.ErrorText()))
		default:
			return domain.PriceUpdate{}, false, nil
		}
		if env.ProductID != product {
			return domain.PriceUpdate{}, false, apperror.New(apperror.CodeUnknownInstrument,
				apperror.WithContext("unexpected product "+env.ProductID))
		}
		u, err := env.ToPriceUpdate(inst)
		return u, err == nil, err
	}
}
