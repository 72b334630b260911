// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionStatus is the transport as shown on the dashboard.
type ConnectionStatus struct {
	State     string
	PairID    uint64
	Push      bool
	LastBlock uint64
	ChainTime time.Time
	Nonce     uint64
	NonceOK   bool
	Address   string
}

// StatusComponent renders connection status.
type StatusComponent struct {
	status ConnectionStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{status: ConnectionStatus{State: "disconnected"}}
}

// Update replaces the shown status.
func (s *StatusComponent) Update(fn func(*ConnectionStatus)) {
	fn(&s.status)
}

// Status returns the shown status.
func (s *StatusComponent) Status() ConnectionStatus {
	return s.status
}

// View renders the status component.
func (s *StatusComponent) View() string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)

	stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	icon := "○"
	switch s.status.State {
	case "connected":
		stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
		icon = "●"
	case "connecting":
		stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
		icon = "◐"
	}

	transport := "http"
	if s.status.Push {
		transport = "http+ws"
	}

	nonce := "syncing"
	if s.status.NonceOK {
		nonce = fmt.Sprintf("%d", s.status.Nonce)
	}

	chainTime := "-"
	if !s.status.ChainTime.IsZero() {
		chainTime = s.status.ChainTime.UTC().Format("15:04:05")
	}

	var b strings.Builder
	b.WriteString(muted.Render("CONNECTION"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "├─ State:   %s %s\n", stateStyle.Render(icon+" "+s.status.State),
		muted.Render(fmt.Sprintf("(pair #%d, %s)", s.status.PairID, transport)))
	fmt.Fprintf(&b, "├─ Head:    %s\n", value.Render(fmt.Sprintf("#%d", s.status.LastBlock)))
	fmt.Fprintf(&b, "├─ Chain:   %s\n", value.Render(chainTime))
	fmt.Fprintf(&b, "├─ Account: %s\n", muted.Render(s.status.Address))
	fmt.Fprintf(&b, "└─ Nonce:   %s", value.Render(nonce))

	return b.String()
}
