package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

var ethUSD = domain.MustParseInstrument("ETH-USD")

const subscribedETH = `{"type":"subscriptions","channels":[{"name":"ticker","product_ids":["ETH-USD"]},{"name":"heartbeat","product_ids":["ETH-USD"]}]}`

func ticker(seq int, bid, ask, ts string) string {
	return `{"type":"ticker","sequence":` + decimal.NewFromInt(int64(seq)).String() +
		`,"product_id":"ETH-USD","price":"` + ask + `","best_bid":"` + bid + `","best_bid_size":"1","best_ask":"` + ask +
		`","best_ask_size":"1","side":"buy","time":"` + ts + `","trade_id":1,"last_size":"0.1"}`
}

func mockServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, req Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("bad subscribe request: %v", err)
			return
		}
		handler(ctx, conn, req)
	}))
}

func testConfig(server *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	cfg.Stream.HeartbeatInterval = 0
	cfg.Stream.Backoff.Base = 10 * time.Millisecond
	cfg.Stream.Backoff.Cap = 20 * time.Millisecond
	cfg.Stream.Backoff.Jitter = 0
	return cfg
}

func write(ctx context.Context, conn *websocket.Conn, s string) {
	_ = conn.Write(ctx, websocket.MessageText, []byte(s))
}

func hold(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func next(t *testing.T, ch <-chan domain.PriceUpdate) domain.PriceUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return domain.PriceUpdate{}
}

func TestSource_StreamsTicker(t *testing.T) {
	var got atomic.Value
	server := mockServer(t, func(ctx context.Context, conn *websocket.Conn, req Request) {
		got.Store(req)
		write(ctx, conn, subscribedETH)
		write(ctx, conn, ticker(10, "2000.00", "2000.01", "2025-02-12T21:12:33.778451Z"))
		write(ctx, conn, `{"type":"heartbeat","sequence":11,"last_trade_id":1,"product_id":"ETH-USD","time":"2025-02-12T21:12:34Z"}`)
		write(ctx, conn, ticker(12, "-1", "2000.01", "2025-02-12T21:12:35Z"))
		write(ctx, conn, ticker(13, "2001.00", "2001.01", "not a time"))
		write(ctx, conn, ticker(14, "2002.00", "2002.01", "2025-02-12T21:12:36Z"))
		hold(ctx, conn)
	})
	defer server.Close()

	src := NewSource(testConfig(server), nil)
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), ethUSD)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	first := next(t, feed.Updates())
	if first.Sequence != 10 || !first.Bid.Equal(decimal.RequireFromString("2000")) || !first.Ask.Equal(decimal.RequireFromString("2000.01")) {
		t.Errorf("unexpected first update: %+v", first)
	}
	wantTime := time.Date(2025, 2, 12, 21, 12, 33, 778451000, time.UTC)
	if !first.ObservedAt.Equal(wantTime) {
		t.Errorf("ObservedAt = %v, want %v", first.ObservedAt, wantTime)
	}

	if second := next(t, feed.Updates()); second.Sequence != 14 {
		t.Errorf("expected sequence 14, got %d", second.Sequence)
	}

	req, _ := got.Load().(Request)
	if req.Type != TypeSubscribe || len(req.ProductIDs) != 1 || req.ProductIDs[0] != "ETH-USD" {
		t.Errorf("unexpected subscribe request %+v", req)
	}
	if len(req.Channels) != 2 || req.Channels[0] != ChannelTicker || req.Channels[1] != ChannelHeartbeat {
		t.Errorf("unexpected channels %v", req.Channels)
	}
}

func TestSource_ErrorReplyIsPermanent(t *testing.T) {
	var connections atomic.Int32
	server := mockServer(t, func(ctx context.Context, conn *websocket.Conn, req Request) {
		connections.Add(1)
		write(ctx, conn, `{"type":"error","message":"Failed to subscribe","reason":"FOO-BAR is not a valid product"}`)
		hold(ctx, conn)
	})
	defer server.Close()

	src := NewSource(testConfig(server), nil)
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), domain.MustParseInstrument("FOO-BAR"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case _, ok := <-feed.Updates():
		if ok {
			t.Fatal("expected no updates")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not end")
	}
	if !apperror.HasCode(feed.Err(), apperror.CodeSubscriptionRejected) {
		t.Errorf("expected SUBSCRIPTION_REJECTED, got %v", feed.Err())
	}
	if n := connections.Load(); n != 1 {
		t.Errorf("a refusal must not be retried, got %d connections", n)
	}
}

func TestSource_ReconnectReplaysSubscription(t *testing.T) {
	var connections atomic.Int32
	server := mockServer(t, func(ctx context.Context, conn *websocket.Conn, req Request) {
		n := connections.Add(1)
		write(ctx, conn, subscribedETH)
		if n == 1 {
			write(ctx, conn, ticker(1, "2000", "2001", "2025-02-12T21:00:00Z"))
			return
		}
		write(ctx, conn, ticker(2, "2000", "2001", "2025-02-12T21:00:01Z"))
		hold(ctx, conn)
	})
	defer server.Close()

	src := NewSource(testConfig(server), nil)
	defer src.Shutdown()

	feed, err := src.Subscribe(context.Background(), ethUSD)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if u := next(t, feed.Updates()); u.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", u.Sequence)
	}
	if u := next(t, feed.Updates()); u.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", u.Sequence)
	}
	if connections.Load() != 2 {
		t.Errorf("expected 2 connections, got %d", connections.Load())
	}
}

func TestEnvelope_Subscribed(t *testing.T) {
	env, err := decodeEnvelope([]byte(subscribedETH))
	if err != nil {
		t.Fatal(err)
	}
	if !env.Subscribed(ChannelTicker, "ETH-USD") {
		t.Error("expected ticker subscription")
	}
	if env.Subscribed(ChannelTicker, "BTC-USD") {
		t.Error("unexpected BTC-USD subscription")
	}
	if _, err := decodeEnvelope([]byte(`{"product_id":"ETH-USD"}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestProductOverride(t *testing.T) {
	src := NewSource(Config{Products: map[string]string{"ETH-USDC": "eth-usd"}}, nil)
	if got := src.product(domain.MustParseInstrument("ETH-USDC")); got != "ETH-USD" {
		t.Errorf("override: got %s", got)
	}
	if got := src.product(domain.MustParseInstrument("btc-usd")); got != "BTC-USD" {
		t.Errorf("default: got %s", got)
	}
}
