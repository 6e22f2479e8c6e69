// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fd1az/arbitrage-detector/internal/retry"
	"github.com/fd1az/arbitrage-detector/internal/wsconn"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig       `mapstructure:"app"`
	Stream        StreamConfig    `mapstructure:"stream"`
	Engine        EngineConfig    `mapstructure:"engine"`
	Detection     DetectionConfig `mapstructure:"detection"`
	Venues        VenuesConfig    `mapstructure:"venues"`
	Ethereum      EthereumConfig  `mapstructure:"ethereum"`
	Subscriptions []string        `mapstructure:"subscriptions"`
	Sinks         SinksConfig     `mapstructure:"sinks"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry"`
	Health        HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Environment     string        `mapstructure:"environment"`
	LogLevel        string        `mapstructure:"log_level"`
	LogJSON         bool          `mapstructure:"log_json"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TUIMode         bool          `mapstructure:"-"` // Set at runtime, not from config file
}

// StreamConfig is shared by every streaming venue connection.
type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	BackoffJitter     float64       `mapstructure:"backoff_jitter"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	BufferSize        int           `mapstructure:"buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

// WSConn builds a stream client configuration for url.
func (s StreamConfig) WSConn(url, name string) wsconn.Config {
	return wsconn.Config{
		URL:               url,
		Name:              name,
		HeartbeatInterval: s.HeartbeatInterval,
		HeartbeatTimeout:  s.HeartbeatTimeout,
		HandshakeTimeout:  s.HandshakeTimeout,
		WriteTimeout:      s.WriteTimeout,
		Backoff: retry.Config{
			Base:   s.BackoffBase,
			Cap:    s.BackoffCap,
			Jitter: s.BackoffJitter,
		},
		MaxReconnects:  s.MaxReconnects,
		BufferSize:     s.BufferSize,
		MaxMessageSize: s.MaxMessageSize,
	}
}

// EngineConfig holds detection engine settings.
type EngineConfig struct {
	MaxAge     time.Duration `mapstructure:"max_age"`
	BufferSize int           `mapstructure:"buffer_size"`
	InboxSize  int           `mapstructure:"inbox_size"`
}

// DetectionConfig holds the profitability thresholds as decimal strings so
// no float rounding enters the comparison path.
type DetectionConfig struct {
	MinProfitPct string `mapstructure:"min_profit_pct"`
	MinProfitAbs string `mapstructure:"min_profit_abs"`
}

// Thresholds parses both thresholds.
func (c DetectionConfig) Thresholds() (pct, abs decimal.Decimal, err error) {
	if pct, err = decimal.NewFromString(c.MinProfitPct); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("detection.min_profit_pct: %w", err)
	}
	if abs, err = decimal.NewFromString(c.MinProfitAbs); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("detection.min_profit_abs: %w", err)
	}
	return pct, abs, nil
}

// VenuesConfig groups the venue adapters.
type VenuesConfig struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Coinbase CoinbaseConfig `mapstructure:"coinbase"`
	Uniswap  UniswapConfig  `mapstructure:"uniswap"`
}

// BinanceConfig holds Binance stream configuration.
type BinanceConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	WebSocketURL string            `mapstructure:"websocket_url"` // wss://stream.binance.com:9443/ws or wss://stream.binance.us:9443/ws for US
	Symbols      map[string]string `mapstructure:"symbols"`       // instrument -> exchange symbol override
	BufferSize   int               `mapstructure:"buffer_size"`
}

// CoinbaseConfig holds Coinbase Exchange stream configuration.
type CoinbaseConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	WebSocketURL string            `mapstructure:"websocket_url"`
	Products     map[string]string `mapstructure:"products"` // instrument -> product id override
	BufferSize   int               `mapstructure:"buffer_size"`
}

// UniswapConfig holds the Uniswap V4 StateView poller configuration.
type UniswapConfig struct {
	Enabled           bool                `mapstructure:"enabled"`
	StateView         string              `mapstructure:"state_view"`
	ChainID           uint64              `mapstructure:"chain_id"`
	Pools             []UniswapPoolConfig `mapstructure:"pools"`
	RequestsPerSecond float64             `mapstructure:"requests_per_second"`
	Burst             int                 `mapstructure:"burst"`
	CallTimeout       time.Duration       `mapstructure:"call_timeout"`
	BufferSize        int                 `mapstructure:"buffer_size"`
}

// UniswapPoolConfig identifies one pool by id or by pool key.
type UniswapPoolConfig struct {
	Instrument  string `mapstructure:"instrument"`
	PoolID      string `mapstructure:"pool_id"`
	Token0      string `mapstructure:"token0"`
	Token1      string `mapstructure:"token1"`
	Fee         uint32 `mapstructure:"fee"`
	TickSpacing int32  `mapstructure:"tick_spacing"`
	Hooks       string `mapstructure:"hooks"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	HTTPURL      string        `mapstructure:"http_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap"`
}

// SinksConfig selects where opportunities are delivered.
type SinksConfig struct {
	// QueueSize and DeliveryTimeout apply to the outbound sinks (redis,
	// postgres, webhook), which share one delivery queue. DeliveryTimeout
	// bounds one opportunity across all of them.
	QueueSize       int           `mapstructure:"queue_size"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	// ReporterQueueSize buffers console or TUI events off the engine loop.
	ReporterQueueSize int                `mapstructure:"reporter_queue_size"`
	Console           ConsoleSinkConfig  `mapstructure:"console"`
	Redis             RedisSinkConfig    `mapstructure:"redis"`
	Postgres          PostgresSinkConfig `mapstructure:"postgres"`
	Webhook           WebhookSinkConfig  `mapstructure:"webhook"`
}

// ConsoleSinkConfig enables the console reporter in CLI mode.
type ConsoleSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RedisSinkConfig publishes opportunities to a channel and a capped stream.
type RedisSinkConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	Channel      string `mapstructure:"channel"`
	Stream       string `mapstructure:"stream"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

// PostgresSinkConfig journals opportunities.
type PostgresSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// WebhookSinkConfig posts opportunities to an HTTP endpoint.
type WebhookSinkConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	URL               string            `mapstructure:"url"`
	Headers           map[string]string `mapstructure:"headers"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute"`
	Timeout           time.Duration     `mapstructure:"timeout"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin, otlp-grpc, otlp-http, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	_ = v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	_ = v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("app.log_json", "ARB_LOG_JSON", "LOG_JSON")

	// Ethereum
	_ = v.BindEnv("ethereum.websocket_url", "ARB_ETH_WS_URL", "ETH_WS_URL")
	_ = v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")

	// Venues
	_ = v.BindEnv("venues.binance.websocket_url", "ARB_BINANCE_WS_URL", "BINANCE_WS_URL")
	_ = v.BindEnv("venues.coinbase.websocket_url", "ARB_COINBASE_WS_URL", "COINBASE_WS_URL")
	_ = v.BindEnv("venues.uniswap.state_view", "ARB_UNISWAP_STATE_VIEW", "UNISWAP_STATE_VIEW")

	// Detection
	_ = v.BindEnv("detection.min_profit_pct", "ARB_MIN_PROFIT_PCT")
	_ = v.BindEnv("detection.min_profit_abs", "ARB_MIN_PROFIT_ABS")

	// Sinks
	_ = v.BindEnv("sinks.redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("sinks.redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("sinks.postgres.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("sinks.webhook.url", "ARB_WEBHOOK_URL")

	// Telemetry
	_ = v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "arbitrage-detector")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_json", false)
	v.SetDefault("app.shutdown_timeout", "10s")

	// Stream defaults
	v.SetDefault("stream.heartbeat_interval", "15s")
	v.SetDefault("stream.heartbeat_timeout", "5s")
	v.SetDefault("stream.handshake_timeout", "10s")
	v.SetDefault("stream.write_timeout", "5s")
	v.SetDefault("stream.backoff_base", "1s")
	v.SetDefault("stream.backoff_cap", "60s")
	v.SetDefault("stream.backoff_jitter", 0.2)
	v.SetDefault("stream.max_reconnects", 0) // infinite
	v.SetDefault("stream.buffer_size", 256)
	v.SetDefault("stream.max_message_size", 1<<20)

	// Engine defaults
	v.SetDefault("engine.max_age", "15s")
	v.SetDefault("engine.buffer_size", 64)
	v.SetDefault("engine.inbox_size", 256)

	// Detection defaults
	v.SetDefault("detection.min_profit_pct", "0.1")
	v.SetDefault("detection.min_profit_abs", "0")

	// Venue defaults
	v.SetDefault("venues.binance.enabled", true)
	v.SetDefault("venues.binance.websocket_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("venues.binance.buffer_size", 64)
	v.SetDefault("venues.coinbase.enabled", true)
	v.SetDefault("venues.coinbase.websocket_url", "wss://ws-feed.exchange.coinbase.com")
	v.SetDefault("venues.coinbase.products", map[string]string{"ETH-USDC": "ETH-USD"})
	v.SetDefault("venues.coinbase.buffer_size", 64)
	v.SetDefault("venues.uniswap.enabled", false)
	v.SetDefault("venues.uniswap.state_view", "0x7fFE42C4a5DEeA5b0feC41C94C136Cf115597227")
	v.SetDefault("venues.uniswap.chain_id", 1)
	v.SetDefault("venues.uniswap.requests_per_second", 10)
	v.SetDefault("venues.uniswap.burst", 4)
	v.SetDefault("venues.uniswap.call_timeout", "5s")
	v.SetDefault("venues.uniswap.buffer_size", 16)
	v.SetDefault("venues.uniswap.pools", []map[string]any{{
		"instrument":   "ETH-USDC",
		"token0":       "0x0000000000000000000000000000000000000000",
		"token1":       "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"fee":          500,
		"tick_spacing": 10,
	}})

	// Ethereum defaults
	v.SetDefault("ethereum.poll_interval", "12s")
	v.SetDefault("ethereum.backoff_base", "1s")
	v.SetDefault("ethereum.backoff_cap", "30s")

	v.SetDefault("subscriptions", []string{"binance:ETH-USDC", "coinbase:ETH-USDC"})

	// Sink defaults
	v.SetDefault("sinks.queue_size", 128)
	v.SetDefault("sinks.delivery_timeout", "10s")
	v.SetDefault("sinks.reporter_queue_size", 1024)
	v.SetDefault("sinks.console.enabled", true)
	v.SetDefault("sinks.redis.addr", "localhost:6379")
	v.SetDefault("sinks.redis.channel", "arbitrage:opportunities")
	v.SetDefault("sinks.redis.stream", "arbitrage:opportunities:stream")
	v.SetDefault("sinks.redis.stream_max_len", 10000)
	v.SetDefault("sinks.postgres.migrate", true)
	v.SetDefault("sinks.webhook.requests_per_minute", 60)
	v.SetDefault("sinks.webhook.timeout", "5s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arbitrage-detector")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8081)
}

// normalize upper-cases instrument keys; viper lower-cases map keys.
func (c *Config) normalize() {
	c.Venues.Binance.Symbols = upperKeys(c.Venues.Binance.Symbols)
	c.Venues.Coinbase.Products = upperKeys(c.Venues.Coinbase.Products)
}

func upperKeys(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// ParseSubscription splits "venue:instrument".
func ParseSubscription(s string) (venue, instrument string, err error) {
	venue, instrument, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || venue == "" || instrument == "" {
		return "", "", fmt.Errorf("subscription %q: want venue:instrument", s)
	}
	return strings.ToLower(venue), strings.ToUpper(instrument), nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.App.ShutdownTimeout <= 0 {
		return fmt.Errorf("app.shutdown_timeout must be positive")
	}
	if err := c.Stream.WSConn("ws://validate", "validate").Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if c.Engine.MaxAge <= 0 {
		return fmt.Errorf("engine.max_age must be positive")
	}
	if c.Engine.BufferSize <= 0 || c.Engine.InboxSize <= 0 {
		return fmt.Errorf("engine buffer sizes must be positive")
	}

	pct, abs, err := c.Detection.Thresholds()
	if err != nil {
		return err
	}
	if pct.IsNegative() || abs.IsNegative() {
		return fmt.Errorf("detection thresholds must not be negative")
	}

	if len(c.Subscriptions) == 0 {
		return fmt.Errorf("subscriptions cannot be empty")
	}
	enabled := map[string]bool{
		"binance":    c.Venues.Binance.Enabled,
		"coinbase":   c.Venues.Coinbase.Enabled,
		"uniswap-v4": c.Venues.Uniswap.Enabled,
	}
	for _, s := range c.Subscriptions {
		venue, _, err := ParseSubscription(s)
		if err != nil {
			return err
		}
		on, known := enabled[venue]
		if !known {
			return fmt.Errorf("subscription %q: unknown venue %s", s, venue)
		}
		if !on {
			return fmt.Errorf("subscription %q: venue %s is disabled", s, venue)
		}
	}

	if c.Venues.Uniswap.Enabled {
		if c.Ethereum.WebSocketURL == "" && c.Ethereum.HTTPURL == "" {
			return fmt.Errorf("ethereum.websocket_url or ethereum.http_url is required for uniswap")
		}
		if !common.IsHexAddress(c.Venues.Uniswap.StateView) {
			return fmt.Errorf("invalid venues.uniswap.state_view: %s", c.Venues.Uniswap.StateView)
		}
		if len(c.Venues.Uniswap.Pools) == 0 {
			return fmt.Errorf("venues.uniswap.pools cannot be empty")
		}
	}

	if c.Sinks.QueueSize <= 0 || c.Sinks.ReporterQueueSize <= 0 {
		return fmt.Errorf("sink queue sizes must be positive")
	}
	if c.Sinks.DeliveryTimeout <= 0 {
		return fmt.Errorf("sinks.delivery_timeout must be positive")
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Addr == "" {
		return fmt.Errorf("sinks.redis.addr is required")
	}
	if c.Sinks.Postgres.Enabled && c.Sinks.Postgres.DSN == "" {
		return fmt.Errorf("sinks.postgres.dsn is required")
	}
	if c.Sinks.Webhook.Enabled && c.Sinks.Webhook.URL == "" {
		return fmt.Errorf("sinks.webhook.url is required")
	}
	return nil
}
