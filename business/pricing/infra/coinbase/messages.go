// Package coinbase implements the Coinbase Exchange ticker price feed.
package coinbase

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
)

// Message types.
const (
	TypeSubscribe     = "subscribe"
	TypeSubscriptions = "subscriptions"
	TypeTicker        = "ticker"
	TypeHeartbeat     = "heartbeat"
	TypeError         = "error"
)

// Channels.
const (
	ChannelTicker    = "ticker"
	ChannelHeartbeat = "heartbeat"
)

// Request is a subscribe/unsubscribe request.
type Request struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Subscription is one channel in a subscriptions reply.
type Subscription struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

// Envelope carries the fields shared by every message. Ticker fields are
// left empty for other types.
type Envelope struct {
	Type      string         `json:"type"`
	ProductID string         `json:"product_id"`
	Sequence  uint64         `json:"sequence"`
	Time      string         `json:"time"`
	Message   string         `json:"message"`
	Reason    string         `json:"reason"`
	Channels  []Subscription `json:"channels"`

	Price       string `json:"price"`
	BestBid     string `json:"best_bid"`
	BestBidSize string `json:"best_bid_size"`
	BestAsk     string `json:"best_ask"`
	BestAskSize string `json:"best_ask_size"`
	Side        string `json:"side"`
	TradeID     uint64 `json:"trade_id"`
	LastSize    string `json:"last_size"`
}

// Subscribed reports whether a subscriptions reply covers productID on channel.
func (e *Envelope) Subscribed(channel, productID string) bool {
	for _, c := range e.Channels {
		if c.Name != channel {
			continue
		}
		for _, id := range c.ProductIDs {
			if id == productID {
				return true
			}
		}
	}
	return false
}

// ErrorText returns the reason of an error reply.
func (e *Envelope) ErrorText() string {
	if e.Reason == "" {
		return e.Message
	}
	return e.Message + ": " + e.Reason
}

// ToPriceUpdate converts a ticker to a canonical update.
func (e *Envelope) ToPriceUpdate(inst domain.Instrument) (domain.PriceUpdate, error) {
	bid, err := asset.ParsePrice(e.BestBid)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("ticker best_bid"), apperror.WithCause(err))
	}
	ask, err := asset.ParsePrice(e.BestAsk)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("ticker best_ask"), apperror.WithCause(err))
	}
	observedAt, err := time.Parse(time.RFC3339Nano, e.Time)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("ticker time"), apperror.WithCause(err))
	}
	return domain.NewPriceUpdate(domain.VenueCoinbase, inst, bid, ask, observedAt, e.Sequence)
}

// ProductID returns the product id of an instrument: eth-usd -> ETH-USD.
func ProductID(inst domain.Instrument) string {
	return strings.ToUpper(inst.Base) + "-" + strings.ToUpper(inst.Quote)
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(err))
	}
	if e.Type == "" {
		return Envelope{}, apperror.New(apperror.CodeMalformedPayload, apperror.WithContext("missing type"))
	}
	return e, nil
}
