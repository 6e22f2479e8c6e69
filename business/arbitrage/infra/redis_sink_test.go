package infra

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

type fakeRedis struct {
	published  map[string][]string
	added      []*redis.XAddArgs
	publishErr error
	xaddErr    error
	closed     bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	if f.published == nil {
		f.published = make(map[string][]string)
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.xaddErr != nil {
		return redis.NewStringResult("", f.xaddErr)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1700000000000-0", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisSink_PublishesAndAppends(t *testing.T) {
	client := &fakeRedis{}
	s := newRedisSink(client, RedisConfig{
		Channel:      "arbitrage:opportunities",
		Stream:       "arbitrage:opportunities:stream",
		StreamMaxLen: 100,
	}, nil)
	opp := sampleOpportunity(t)

	if err := s.Publish(context.Background(), opp); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs := client.published["arbitrage:opportunities"]
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(msgs[0]), &rec); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if rec["id"] != opp.ID.String() {
		t.Errorf("payload id = %v, want %s", rec["id"], opp.ID)
	}

	if len(client.added) != 1 {
		t.Fatalf("xadd calls = %d, want 1", len(client.added))
	}
	args := client.added[0]
	if args.Stream != "arbitrage:opportunities:stream" || args.MaxLen != 100 || !args.Approx {
		t.Errorf("unexpected xadd args: %+v", args)
	}
	values := args.Values.(map[string]interface{})
	if values["id"] != opp.ID.String() || values["instrument"] != "ETH-USDC" {
		t.Errorf("unexpected stream values: %v", values)
	}

	if err := s.Close(); err != nil || !client.closed {
		t.Errorf("Close() = %v, closed = %v", err, client.closed)
	}
}

func TestRedisSink_ChannelOnly(t *testing.T) {
	client := &fakeRedis{}
	s := newRedisSink(client, RedisConfig{Channel: "ch"}, nil)

	if err := s.Publish(context.Background(), sampleOpportunity(t)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.added) != 0 {
		t.Errorf("stream written without a stream name")
	}
}

func TestRedisSink_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeRedis
	}{
		{"publish fails", &fakeRedis{publishErr: errBoom}},
		{"xadd fails", &fakeRedis{xaddErr: errBoom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRedisSink(tt.client, RedisConfig{Channel: "ch", Stream: "st"}, nil)
			err := s.Publish(context.Background(), sampleOpportunity(t))
			if !apperror.HasCode(err, apperror.CodeSinkPublishFailed) {
				t.Errorf("error = %v, want %s", err, apperror.CodeSinkPublishFailed)
			}
		})
	}
}
