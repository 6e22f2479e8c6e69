package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// FeedStatus represents one feed's state.
type FeedStatus struct {
	Feed       string
	State      string
	Err        string
	LastUpdate time.Time
	Applied    int64
	Discarded  int64
}

// StatusComponent renders feed status.
type StatusComponent struct {
	feeds map[string]FeedStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{feeds: make(map[string]FeedStatus)}
}

// Update updates a feed's status.
func (s *StatusComponent) Update(status FeedStatus) {
	s.feeds[status.Feed] = status
}

// Get returns the status of feed.
func (s *StatusComponent) Get(feed string) (FeedStatus, bool) {
	st, ok := s.feeds[feed]
	return st, ok
}

// Settled reports whether every known feed left the pending state.
func (s *StatusComponent) Settled() bool {
	if len(s.feeds) == 0 {
		return false
	}
	for _, f := range s.feeds {
		if f.State == "pending" {
			return false
		}
	}
	return true
}

// Counts returns the number of active feeds and the number of known feeds.
func (s *StatusComponent) Counts() (active, total int) {
	for _, f := range s.feeds {
		if f.State == "active" {
			active++
		}
	}
	return active, len(s.feeds)
}

// Discarded sums the updates every feed lost to staleness or ordering.
func (s *StatusComponent) Discarded() int64 {
	var n int64
	for _, f := range s.feeds {
		n += f.Discarded
	}
	return n
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if len(s.feeds) == 0 {
		return "No feeds"
	}

	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var sb strings.Builder
	for _, name := range names {
		f := s.feeds[name]
		var state string
		switch f.State {
		case "active":
			state = okStyle.Render("● active")
		case "pending":
			state = warnStyle.Render("◌ pending")
		default:
			state = errStyle.Render("○ " + f.State)
		}

		line := fmt.Sprintf("├─ %s: %s", name, state)
		if f.Applied > 0 || f.Discarded > 0 {
			line += fmt.Sprintf(" (%d applied, %d discarded)", f.Applied, f.Discarded)
		}
		if f.Err != "" {
			line += " " + errStyle.Render(f.Err)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
