// Package binance implements the Binance book-ticker price feed.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/apperror"
	"github.com/fd1az/arbitrage-detector/internal/asset"
)

// WSRequest is a WebSocket subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// WSResponse is the reply to a WSRequest. Error is set when the request was refused.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
	Error  *WSError        `json:"error,omitempty"`
}

// WSError is the error object of a refused request.
type WSError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *WSError) Error() string {
	return fmt.Sprintf("binance error %d: %s", e.Code, e.Msg)
}

// BookTickerEvent represents best bid/ask update (real-time).
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID uint64 `json:"u"` // Order book updateId
	Symbol   string `json:"s"` // Symbol
	BidPrice string `json:"b"` // Best bid price
	BidQty   string `json:"B"` // Best bid qty
	AskPrice string `json:"a"` // Best ask price
	AskQty   string `json:"A"` // Best ask qty
}

// ToPriceUpdate validates the event and converts it to a canonical update.
func (e *BookTickerEvent) ToPriceUpdate(inst domain.Instrument, observedAt time.Time) (domain.PriceUpdate, error) {
	bid, err := asset.ParsePrice(e.BidPrice)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("bookTicker bid"), apperror.WithCause(err))
	}
	ask, err := asset.ParsePrice(e.AskPrice)
	if err != nil {
		return domain.PriceUpdate{}, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("bookTicker ask"), apperror.WithCause(err))
	}
	return domain.NewPriceUpdate(domain.VenueBinance, inst, bid, ask, observedAt, e.UpdateID)
}

// BookTickerStream returns the bookTicker stream name for a symbol.
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// Symbol returns the exchange symbol of an instrument: ETH-USDC -> ETHUSDC.
func Symbol(inst domain.Instrument) string {
	return strings.ToUpper(inst.Base + inst.Quote)
}

// frame is the union of every message that may arrive on a raw stream.
type frame struct {
	BookTickerEvent
	ID    *int64   `json:"id"`
	Error *WSError `json:"error"`
}

// decodeFrame classifies data. ok is false for request replies.
func decodeFrame(data []byte) (ev BookTickerEvent, ok bool, err error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return BookTickerEvent{}, false, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(err))
	}
	if f.Error != nil {
		return BookTickerEvent{}, false, apperror.New(apperror.CodeMalformedPayload, apperror.WithCause(f.Error))
	}
	if f.ID != nil && f.Symbol == "" {
		return BookTickerEvent{}, false, nil
	}
	if f.Symbol == "" {
		return BookTickerEvent{}, false, apperror.New(apperror.CodeMalformedPayload,
			apperror.WithContext("missing symbol"))
	}
	return f.BookTickerEvent, true, nil
}
