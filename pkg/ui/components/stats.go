package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats are the session counters shown under the tables.
type Stats struct {
	PriceUpdates  uint64
	Opportunities uint64
	Discarded     int64 // stale or out-of-order updates, summed over feeds
	ActiveFeeds   int
	TotalFeeds    int
	Errors        int64
}

type StatsComponent struct {
	stats Stats
}

func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

func (s *StatsComponent) Update(stats Stats) { s.stats = stats }
func (s *StatsComponent) Stats() Stats       { return s.stats }

func (s *StatsComponent) View() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	alert := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	num := func(n int64) string {
		if n > 0 {
			return alert.Render(fmt.Sprint(n))
		}
		return value.Render(fmt.Sprint(n))
	}

	return label.Render("SESSION") + "\n" +
		fmt.Sprintf("Updates: %s  │  Opportunities: %s  │  Feeds: %s  │  Discarded: %s  │  Errors: %s",
			value.Render(fmt.Sprint(s.stats.PriceUpdates)),
			value.Render(fmt.Sprint(s.stats.Opportunities)),
			value.Render(fmt.Sprintf("%d/%d", s.stats.ActiveFeeds, s.stats.TotalFeeds)),
			num(s.stats.Discarded),
			num(s.stats.Errors),
		)
}
