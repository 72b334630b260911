package ui

import "github.com/charmbracelet/lipgloss"

// Palette shared by the dashboard and the startup screen.
var (
	ColorAccent       = lipgloss.Color("#0EA5E9")
	ColorConnected    = lipgloss.Color("#10B981")
	ColorConnecting   = lipgloss.Color("#F59E0B")
	ColorDisconnected = lipgloss.Color("#EF4444")
	ColorMuted        = lipgloss.Color("#6B7280")
	ColorFrame        = lipgloss.Color("#334155")
)

var (
	// PanelStyle frames the connection and submissions panels.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorFrame).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0F172A")).
			Background(ColorAccent).
			Padding(0, 2)

	MutedValue = lipgloss.NewStyle().Foreground(ColorMuted)

	ErrorText = lipgloss.NewStyle().Foreground(ColorDisconnected)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)
)

// StateStyle colors a transport state: green when connected, amber while
// connecting, red otherwise.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return lipgloss.NewStyle().Foreground(ColorConnected)
	case "connecting":
		return lipgloss.NewStyle().Foreground(ColorConnecting)
	default:
		return lipgloss.NewStyle().Foreground(ColorDisconnected)
	}
}
