// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// PriceRow is the latest top of book for one venue and instrument.
type PriceRow struct {
	Venue      string
	Instrument string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	ObservedAt time.Time
	Sequence   uint64
}

// PricesComponent renders the latest quote per venue, grouped by instrument.
type PricesComponent struct {
	rows map[string]map[string]PriceRow // instrument -> venue -> row
}

// NewPricesComponent creates a new prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{rows: make(map[string]map[string]PriceRow)}
}

// Update replaces the row for the row's venue and instrument.
func (p *PricesComponent) Update(row PriceRow) {
	byVenue, ok := p.rows[row.Instrument]
	if !ok {
		byVenue = make(map[string]PriceRow)
		p.rows[row.Instrument] = byVenue
	}
	byVenue[row.Venue] = row
}

// Len returns the number of venue/instrument rows.
func (p *PricesComponent) Len() int {
	n := 0
	for _, byVenue := range p.rows {
		n += len(byVenue)
	}
	return n
}

// View renders the prices component.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	bestStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))

	if len(p.rows) == 0 {
		return headerStyle.Render("PRICES") + "\n\n" + dimStyle.Render("  Waiting for price data...")
	}

	instruments := make([]string, 0, len(p.rows))
	for inst := range p.rows {
		instruments = append(instruments, inst)
	}
	sort.Strings(instruments)

	var sb strings.Builder
	for i, inst := range instruments {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(headerStyle.Render(fmt.Sprintf("PRICES (%s)", inst)))
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("  %-12s  %14s  %14s  %10s\n", "Venue", "Bid", "Ask", "Age"))
		sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 56)) + "\n")

		byVenue := p.rows[inst]
		venues := make([]string, 0, len(byVenue))
		for v := range byVenue {
			venues = append(venues, v)
		}
		sort.Strings(venues)

		// Highlight the highest bid and the lowest ask across venues.
		var bestBid, bestAsk decimal.Decimal
		for j, v := range venues {
			r := byVenue[v]
			if j == 0 || r.Bid.GreaterThan(bestBid) {
				bestBid = r.Bid
			}
			if j == 0 || r.Ask.LessThan(bestAsk) {
				bestAsk = r.Ask
			}
		}

		for _, v := range venues {
			r := byVenue[v]
			bid := fmt.Sprintf("%14s", r.Bid.StringFixed(2))
			ask := fmt.Sprintf("%14s", r.Ask.StringFixed(2))
			if len(venues) > 1 && r.Bid.Equal(bestBid) {
				bid = bestStyle.Render(bid)
			}
			if len(venues) > 1 && r.Ask.Equal(bestAsk) {
				ask = bestStyle.Render(ask)
			}
			age := time.Since(r.ObservedAt).Round(100 * time.Millisecond)
			sb.WriteString(fmt.Sprintf("  %-12s  %s  %s  %10s\n", v, bid, ask, dimStyle.Render(age.String())))
		}
	}
	return sb.String()
}
