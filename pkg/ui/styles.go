package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#10B981")
	ColorDanger    = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorBorder    = lipgloss.Color("#374151")
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorPrimary).
			Padding(0, 2)

	HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)

	PositiveValue = lipgloss.NewStyle().Foreground(ColorSecondary)
	MutedValue    = lipgloss.NewStyle().Foreground(ColorMuted)

	// Feed health in the status bar: all active, some active, none active.
	FeedsHealthy  = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	FeedsDegraded = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	FeedsDown     = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
)
