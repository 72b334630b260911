package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds queue counters for display.
type Stats struct {
	Queued    int
	Submitted uint64
	Failed    uint64
	Confirmed uint64
	Reverted  uint64
	GasGwei   float64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(fn func(*Stats)) {
	fn(&s.stats)
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	bad := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return valueStyle.Render(fmt.Sprintf("%d", n))
	}

	gas := "-"
	if s.stats.GasGwei > 0 {
		gas = fmt.Sprintf("%.2f gwei", s.stats.GasGwei)
	}

	return style.Render("QUEUE") + "\n" +
		fmt.Sprintf("Queued: %s  │  Submitted: %s  │  Confirmed: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Queued)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Submitted)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Confirmed)),
		) +
		fmt.Sprintf("Failed: %s  │  Reverted: %s  │  Fee cap: %s",
			bad(s.stats.Failed),
			bad(s.stats.Reverted),
			valueStyle.Render(gas),
		)
}
