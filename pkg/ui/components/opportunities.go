package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// OpportunityRow represents an opportunity in the list.
type OpportunityRow struct {
	ID         string
	Timestamp  string
	Instrument string
	BuyVenue   string
	SellVenue  string
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	SpreadAbs  decimal.Decimal
	SpreadPct  decimal.Decimal
}

// OpportunitiesComponent renders the most recent opportunities, newest first.
type OpportunitiesComponent struct {
	rows    []OpportunityRow
	maxRows int
	visible int
	offset  int
}

// NewOpportunitiesComponent creates a component keeping maxRows entries and
// showing visible of them at a time.
func NewOpportunitiesComponent(maxRows, visible int) *OpportunitiesComponent {
	if visible <= 0 || visible > maxRows {
		visible = maxRows
	}
	return &OpportunitiesComponent{
		rows:    make([]OpportunityRow, 0, maxRows),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add adds a new opportunity to the top of the list.
func (o *OpportunitiesComponent) Add(row OpportunityRow) {
	o.rows = append([]OpportunityRow{row}, o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
	if o.offset > 0 {
		o.offset = min(o.offset+1, o.maxOffset())
	}
}

// Rows returns the stored rows, newest first.
func (o *OpportunitiesComponent) Rows() []OpportunityRow {
	return o.rows
}

// Clear clears all opportunities.
func (o *OpportunitiesComponent) Clear() {
	o.rows = o.rows[:0]
	o.offset = 0
}

// ScrollUp moves the window towards newer entries.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset > 0 {
		o.offset--
	}
}

// ScrollDown moves the window towards older entries.
func (o *OpportunitiesComponent) ScrollDown() {
	if o.offset < o.maxOffset() {
		o.offset++
	}
}

func (o *OpportunitiesComponent) maxOffset() int {
	return max(len(o.rows)-o.visible, 0)
}

// View renders the opportunities component.
func (o *OpportunitiesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	profitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("OPPORTUNITIES (%d)", len(o.rows))))
	sb.WriteString("\n\n")

	if len(o.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No opportunities detected yet..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %-8s  %-9s  %-24s  %12s  %12s  %10s\n",
		"Time", "Pair", "Route", "Buy", "Sell", "Spread"))
	sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 86)) + "\n")

	end := min(o.offset+o.visible, len(o.rows))
	for _, row := range o.rows[o.offset:end] {
		sb.WriteString(fmt.Sprintf("  %-8s  %-9s  %-24s  %12s  %12s  %s\n",
			row.Timestamp,
			row.Instrument,
			row.BuyVenue+" -> "+row.SellVenue,
			row.BuyPrice.StringFixed(2),
			row.SellPrice.StringFixed(2),
			profitStyle.Render(fmt.Sprintf("%9s%%", row.SpreadPct.StringFixed(4))),
		))
	}
	if len(o.rows) > o.visible {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  showing %d-%d of %d", o.offset+1, end, len(o.rows))))
	}
	return sb.String()
}
