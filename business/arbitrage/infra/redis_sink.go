package infra

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

// redisClient is the subset of *redis.Client the sink uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisConfig configures RedisSink. An empty Channel or Stream disables
// that half of the sink.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Channel      string
	Stream       string
	StreamMaxLen int64
}

// RedisSink publishes opportunities on a pub/sub channel and appends them
// to a capped stream for consumers that join late.
type RedisSink struct {
	client redisClient
	cfg    RedisConfig
	logger logger.LoggerInterface
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig, log logger.LoggerInterface) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperror.External(apperror.CodeExternalServiceError, "redis: ping "+cfg.Addr, err)
	}
	return newRedisSink(rdb, cfg, log), nil
}

func newRedisSink(client redisClient, cfg RedisConfig, log logger.LoggerInterface) *RedisSink {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisSink{client: client, cfg: cfg, logger: log}
}

// Publish sends opp to the channel and the stream.
func (s *RedisSink) Publish(ctx context.Context, opp domain.Opportunity) error {
	payload, err := encodeOpportunity(opp)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSinkPublishFailed, "redis: encode opportunity")
	}

	if s.cfg.Channel != "" {
		if err := s.client.Publish(ctx, s.cfg.Channel, payload).Err(); err != nil {
			return apperror.External(apperror.CodeSinkPublishFailed, "redis: publish "+s.cfg.Channel, err)
		}
	}

	if s.cfg.Stream != "" {
		args := &redis.XAddArgs{
			Stream: s.cfg.Stream,
			Values: map[string]interface{}{
				"id":         opp.ID.String(),
				"instrument": opp.Instrument.String(),
				"payload":    string(payload),
			},
		}
		if s.cfg.StreamMaxLen > 0 {
			args.MaxLen = s.cfg.StreamMaxLen
			args.Approx = true
		}
		if err := s.client.XAdd(ctx, args).Err(); err != nil {
			return apperror.External(apperror.CodeSinkPublishFailed, "redis: xadd "+s.cfg.Stream, err)
		}
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
