package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/app"
	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// Ensure ConsoleReporter implements Reporter.
var _ app.Reporter = (*ConsoleReporter)(nil)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsoleReporter creates a ConsoleReporter writing to out, or stdout when nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out, now: time.Now}
}

// Start prints the banner.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.println("Arbitrage Detector Started")
	r.println("==========================")
	return nil
}

// Publish prints one opportunity.
func (r *ConsoleReporter) Publish(ctx context.Context, opp domain.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "ARBITRAGE OPPORTUNITY DETECTED")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "ID:             %s\n", opp.ID)
	fmt.Fprintf(r.out, "Detected:       %s\n", opp.DetectedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(r.out, "Instrument:     %s\n", opp.Instrument)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintf(r.out, "  Buy  %-12s ask %s  (%s)\n", opp.BuyVenue, opp.BuyPrice.String(), opp.BuyRef)
	fmt.Fprintf(r.out, "  Sell %-12s bid %s  (%s)\n", opp.SellVenue, opp.SellPrice.String(), opp.SellRef)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintf(r.out, "  Spread:         %s (%s%%)\n", opp.SpreadAbs.String(), opp.SpreadPct.StringFixed(4))
	fmt.Fprintln(r.out, "================================================================================")
	return nil
}

// UpdatePrice is a no-op: the console only reports opportunities and feed changes.
func (r *ConsoleReporter) UpdatePrice(u pricingDomain.PriceUpdate) {}

// UpdateFeedStatus prints feed state transitions.
func (r *ConsoleReporter) UpdateFeedStatus(s app.FeedStatus) {
	line := fmt.Sprintf("[%s] %s: %s", r.now().Format("15:04:05"), s.Key(), s.State)
	if s.Err != nil {
		line += " (" + s.Err.Error() + ")"
	}
	r.println(line)
}

// Stop prints the footer.
func (r *ConsoleReporter) Stop() error {
	r.println("")
	r.println("Arbitrage Detector Stopped")
	return nil
}

func (r *ConsoleReporter) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}
