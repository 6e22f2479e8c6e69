package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/httpclient"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/internal/ratelimit"
)

// WebhookConfig configures WebhookSink.
type WebhookConfig struct {
	URL               string
	Headers           map[string]string
	RequestsPerMinute int
	Timeout           time.Duration
}

// WebhookSink POSTs each opportunity as JSON. Requests over the rate limit
// are dropped rather than queued.
type WebhookSink struct {
	url     string
	client  httpclient.Client
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface
}

// NewWebhookSink creates a WebhookSink.
func NewWebhookSink(cfg WebhookConfig, log logger.LoggerInterface) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, apperror.Validation(apperror.CodeRequiredField, "webhook url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if log == nil {
		log = logger.Nop()
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("webhook"),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "webhook client")
	}

	return &WebhookSink{
		url:     cfg.URL,
		client:  client,
		limiter: ratelimit.New(cfg.RequestsPerMinute),
		logger:  log,
	}, nil
}

// Publish POSTs opp to the webhook.
func (s *WebhookSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	if !s.limiter.Allow() {
		return apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithContext("webhook: rate limit exceeded, opportunity "+opp.ID.String()))
	}

	_, err := s.client.NewRequestWithOptions(
		httpclient.WithResponseErrorHandler(webhookStatusError),
		httpclient.WithLabels(httpclient.NewLabel("instrument", opp.Instrument.String())),
	).
		SetHeader("Content-Type", "application/json").
		SetBody(newRecord(opp)).
		Post(ctx, s.url)
	if err != nil {
		return apperror.External(apperror.CodeSinkPublishFailed, "webhook: post", err)
	}
	return nil
}

func webhookStatusError(status int, body []byte) error {
	if status < 300 {
		return nil
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Errorf("webhook returned %d: %s", status, body)
}
