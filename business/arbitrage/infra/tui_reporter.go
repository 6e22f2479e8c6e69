package infra

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
	"github.com/fd1az/arbitrage-detector/internal/logger"
	"github.com/fd1az/arbitrage-detector/pkg/ui"
)

// Ensure TUIReporter implements Reporter.
var _ app.Reporter = (*TUIReporter)(nil)

// TUIReporter forwards engine events to the Bubble Tea program, which is
// owned by main. Program.Send blocks until the UI loop takes the message,
// so a TUIReporter is only used behind a BufferedReporter.
type TUIReporter struct {
	send func(tea.Msg)
}

// NewTUIReporter returns a reporter feeding the running ui program from its
// own goroutine, buffering up to size events.
func NewTUIReporter(size int, log logger.LoggerInterface) *BufferedReporter {
	return NewBufferedReporter(&TUIReporter{send: ui.Send}, size, log)
}

// Start announces the detector in the TUI log pane.
func (r *TUIReporter) Start(ctx context.Context) error {
	r.send(ui.LogMsg{Level: "info", Message: "detector started"})
	return nil
}

// Publish sends an opportunity to the TUI.
func (r *TUIReporter) Publish(ctx context.Context, opp domain.Opportunity) error {
	r.send(ui.OpportunityMsg{Opportunity: opp})
	return nil
}

// UpdatePrice sends an applied price update to the TUI.
func (r *TUIReporter) UpdatePrice(u pricingDomain.PriceUpdate) {
	r.send(ui.PriceMsg{Update: u})
}

// UpdateFeedStatus sends a feed state change to the TUI.
func (r *TUIReporter) UpdateFeedStatus(s app.FeedStatus) {
	msg := ui.FeedStatusMsg{
		Feed:       s.Key().String(),
		State:      string(s.State),
		LastUpdate: s.LastUpdate,
		Applied:    s.Applied,
		Discarded:  s.Discarded,
	}
	if s.Err != nil {
		msg.Err = s.Err.Error()
	}
	r.send(msg)
}

// Stop is a no-op; main quits the program.
func (r *TUIReporter) Stop() error {
	return nil
}
