// Package ui provides the Bubble Tea TUI for the arbitrage detector.
package ui

import (
	"time"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// OpportunityMsg is sent when an arbitrage opportunity is detected.
type OpportunityMsg struct {
	Opportunity domain.Opportunity
}

// PriceMsg is sent for every price update the engine applied.
type PriceMsg struct {
	Update pricingDomain.PriceUpdate
}

// FeedStatusMsg is sent when a feed changes state.
type FeedStatusMsg struct {
	Feed       string // venue:instrument
	State      string
	Err        string
	LastUpdate time.Time
	Applied    int64
	Discarded  int64
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}
