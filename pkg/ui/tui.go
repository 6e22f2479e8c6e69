package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/arbitrage-detector/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Feeds subscribing
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	prices        *components.PricesComponent
	opportunities *components.OpportunitiesComponent
	feeds         *components.StatusComponent
	stats         *components.StatsComponent

	keys KeyMap
	help help.Model

	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time

	quitting   bool
	paused     bool
	width      int
	height     int
	lastUpdate time.Time
	errors     []ErrorEntry // last 3
	logs       []string     // last 5
}

// New creates a new TUI model.
func New() Model {
	now := time.Now()
	return Model{
		prices:        components.NewPricesComponent(),
		opportunities: components.NewOpportunitiesComponent(100, 12),
		feeds:         components.NewStatusComponent(),
		stats:         components.NewStatsComponent(),
		keys:          DefaultKeyMap(),
		help:          help.New(),
		phase:         PhaseWelcome,
		welcomeStart:  now,
		startupTime:   now,
		errors:        make([]ErrorEntry, 0, 3),
		logs:          make([]string, 0, 5),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *Model) startModules() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Called directly; Send() must not be used from within Update.
	if OnStartModules != nil {
		go OnStartModules()
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			m.startModules()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.opportunities.Clear()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.opportunities.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.opportunities.ScrollDown()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.startModules()
		}
		return m, tickCmd()

	case OpportunityMsg:
		opp := msg.Opportunity
		st := m.stats.Stats()
		st.Opportunities++
		m.stats.Update(st)
		if m.paused {
			return m, nil
		}
		m.opportunities.Add(components.OpportunityRow{
			ID:         opp.ID.String(),
			Timestamp:  opp.DetectedAt.Local().Format("15:04:05"),
			Instrument: opp.Instrument.String(),
			BuyVenue:   opp.BuyVenue.String(),
			SellVenue:  opp.SellVenue.String(),
			BuyPrice:   opp.BuyPrice,
			SellPrice:  opp.SellPrice,
			SpreadAbs:  opp.SpreadAbs,
			SpreadPct:  opp.SpreadPct,
		})
		m.lastUpdate = time.Now()

	case PriceMsg:
		u := msg.Update
		m.prices.Update(components.PriceRow{
			Venue:      u.Venue.String(),
			Instrument: u.Instrument.String(),
			Bid:        u.Bid,
			Ask:        u.Ask,
			ObservedAt: u.ObservedAt,
			Sequence:   u.Sequence,
		})
		st := m.stats.Stats()
		st.PriceUpdates++
		m.stats.Update(st)
		m.lastUpdate = time.Now()
		if m.phase == PhaseStartup {
			m.phase = PhaseDashboard
		}

	case FeedStatusMsg:
		m.feeds.Update(components.FeedStatus(msg))
		m.refreshFeedStats()
		if msg.Err != "" {
			m.addError(fmt.Sprintf("%s: %s", msg.Feed, msg.Err))
		}
		if m.phase == PhaseStartup && m.feeds.Settled() {
			m.phase = PhaseDashboard
		}

	case ErrorMsg:
		if msg.Error != nil {
			m.addError(msg.Error.Error())
			m.logs = addLog(m.logs, "error", msg.Error.Error())
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

func (m *Model) refreshFeedStats() {
	st := m.stats.Stats()
	st.ActiveFeeds, st.TotalFeeds = m.feeds.Counts()
	st.Discarded = m.feeds.Discarded()
	m.stats.Update(st)
}

func (m *Model) addError(msg string) {
	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
	st := m.stats.Stats()
	st.Errors++
	m.stats.Update(st)
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("15:04:05"), level, message)
	logs = append(logs, line)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" Cross-Venue Arbitrage Detector "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	left := m.prices.View() + "\n\n" + HeaderStyle.Render("FEEDS") + "\n" + m.feeds.View()
	right := m.opportunities.View()

	if m.width > 120 {
		l := BoxStyle.Width(m.width/2 - 2).Render(left)
		r := BoxStyle.Width(m.width/2 - 2).Render(right)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, l, r))
	} else {
		w := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(w).Render(left))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(w).Render(right))
	}
	b.WriteString("\n\n")
	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(FeedsDegraded.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dots := strings.Repeat(".", int(time.Since(m.welcomeStart).Milliseconds()/300)%4)

	logo := `
     █████╗ ██████╗ ██████╗
    ██╔══██╗██╔══██╗██╔══██╗
    ███████║██████╔╝██████╔╝
    ██╔══██║██╔══██╗██╔══██╗
    ██║  ██║██║  ██║██████╔╝
    ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`
	var sb strings.Builder
	sb.WriteString("\n\n\n\n")
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("    C R O S S - V E N U E   D E T E C T O R"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("         Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("   Press any key to skip, or wait..."))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStartupScreen() string {
	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(HeaderStyle.Render("  Cross-Venue Arbitrage Detector"))
	sb.WriteString("\n\n")

	spinners := []string{"◐", "◓", "◑", "◒"}
	idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
	sb.WriteString(FeedsDegraded.Render("  " + spinners[idx] + " Subscribing to feeds..."))
	sb.WriteString("\n\n")
	sb.WriteString(m.feeds.View())
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	st := m.stats.Stats()
	feedStyle := FeedsHealthy
	if st.ActiveFeeds < st.TotalFeeds {
		feedStyle = FeedsDegraded
	}
	if st.ActiveFeeds == 0 {
		feedStyle = FeedsDown
	}
	parts = append(parts, feedStyle.Render(fmt.Sprintf("● %d/%d feeds", st.ActiveFeeds, st.TotalFeeds)))
	parts = append(parts, PositiveValue.Render(fmt.Sprintf("Opportunities: %d", st.Opportunities)))

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}
	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules
// should start. main sets it before Run.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
