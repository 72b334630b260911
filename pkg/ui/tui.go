// Package ui provides the Bubble Tea status dashboard for the transaction
// engine.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/chain-txqueue/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseStartup   Phase = "startup"   // Waiting for the first connection
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	// Components
	status      *components.StatusComponent
	stats       *components.StatsComponent
	submissions *components.SubmissionsComponent
	keys        KeyMap

	phase       Phase
	startupTime time.Time

	ready      bool
	quitting   bool
	width      int
	height     int
	lastUpdate time.Time
	errors     []ErrorEntry // last 3
	logs       []string     // last 5
}

// New creates a new TUI model.
func New() Model {
	return Model{
		status:      components.NewStatusComponent(),
		stats:       components.NewStatsComponent(),
		submissions: components.NewSubmissionsComponent(100, 10),
		keys:        DefaultKeyMap(),
		phase:       PhaseStartup,
		startupTime: time.Now(),
		errors:      make([]ErrorEntry, 0, 3),
		logs:        make([]string, 0, 5),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.submissions.Clear()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = make([]ErrorEntry, 0, 3)
		case key.Matches(msg, m.keys.Up):
			m.submissions.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.submissions.ScrollDown()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		return m, tickCmd()

	case ConnectionMsg:
		m.status.Update(func(s *components.ConnectionStatus) {
			s.State = msg.State
			s.PairID = msg.PairID
			s.Push = msg.Push
		})
		if msg.State == "connected" {
			m.phase = PhaseDashboard
		}
		m.logs = addLog(m.logs, "info", "transport "+msg.State)
		m.lastUpdate = time.Now()

	case BlockMsg:
		m.status.Update(func(s *components.ConnectionStatus) { s.LastBlock = msg.Number })
		m.lastUpdate = time.Now()

	case ClockMsg:
		m.status.Update(func(s *components.ConnectionStatus) { s.ChainTime = msg.ChainTime })

	case NonceMsg:
		m.status.Update(func(s *components.ConnectionStatus) {
			s.Nonce = msg.Nonce
			s.NonceOK = msg.Known
			if msg.Address != "" {
				s.Address = msg.Address
			}
		})
		m.lastUpdate = time.Now()

	case QueueStatsMsg:
		m.stats.Update(func(s *components.Stats) {
			s.Queued = msg.Queued
			s.Submitted = msg.Submitted
			s.Failed = msg.Failed
			s.Confirmed = msg.Confirmed
			s.Reverted = msg.Reverted
		})

	case GasPriceMsg:
		m.stats.Update(func(s *components.Stats) { s.GasGwei = msg.GweiPrice })

	case SubmissionMsg:
		m.submissions.Upsert(components.SubmissionRow{
			Time:   time.Now().Format("15:04:05"),
			Hash:   msg.Hash,
			Nonce:  msg.Nonce,
			Status: msg.Status,
		})
		m.lastUpdate = time.Now()

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.errors = append(m.errors, ErrorEntry{
			Message:   msg.Error.Error(),
			Timestamp: time.Now(),
		})
		if len(m.errors) > 3 {
			m.errors = m.errors[len(m.errors)-3:]
		}

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logLine := fmt.Sprintf("[%s] %s: %s", timestamp, level, message)
	logs = append(logs, logLine)
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

	if m.phase == PhaseStartup {
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(" Transaction Engine "))
	b.WriteString("\n\n")

	left := m.status.View() + "\n\n" + m.stats.View() + "\n\n" + m.renderLogs()
	right := m.submissions.View()

	if m.width > 100 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			PanelStyle.Width(m.width/2-2).Render(left),
			PanelStyle.Width(m.width/2-2).Render(right),
		))
	} else {
		width := m.width - 4
		if width < 40 {
			width = 40
		}
		b.WriteString(PanelStyle.Width(width).Render(left))
		b.WriteString("\n")
		b.WriteString(PanelStyle.Width(width).Render(right))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorHeader := ErrorText.Bold(true)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(ErrorText.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if !m.lastUpdate.IsZero() {
		b.WriteString(MutedValue.Render(fmt.Sprintf("Updated %s ago  ", time.Since(m.lastUpdate).Round(time.Second))))
	}
	b.WriteString(FooterStyle.Render(m.keys.HelpLine()))

	return b.String()
}

func (m Model) renderLogs() string {
	var sb strings.Builder
	sb.WriteString(MutedValue.Render("ACTIVITY"))
	sb.WriteString("\n")
	if len(m.logs) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for events..."))
		return sb.String()
	}
	for _, l := range m.logs {
		sb.WriteString(MutedValue.Render("  " + l))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderStartupScreen renders the loading screen shown until the transport
// connects.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	state := m.status.Status().State
	stateStyle := StateStyle(state)

	spinners := []string{"◐", "◓", "◑", "◒"}
	idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  Transaction Engine"))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "  %s %s %s\n",
		stateStyle.Render(spinners[idx]),
		MutedValue.Render("Connecting to node"),
		stateStyle.Render(state),
	)
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n")

	for _, err := range m.errors {
		sb.WriteString(ErrorText.Render("  • " + err.Message))
		sb.WriteString("\n")
	}

	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
