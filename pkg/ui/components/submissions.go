package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// SubmissionRow is one transaction in the list.
type SubmissionRow struct {
	Time   string
	Hash   string
	Nonce  uint64
	Status string
}

// SubmissionsComponent renders recent submissions, newest first.
type SubmissionsComponent struct {
	rows    []SubmissionRow
	maxRows int
	visible int
	offset  int
}

// NewSubmissionsComponent creates a list keeping maxRows entries and
// showing visible of them at a time.
func NewSubmissionsComponent(maxRows, visible int) *SubmissionsComponent {
	return &SubmissionsComponent{maxRows: maxRows, visible: visible}
}

// Upsert adds a submission or updates the status of a known hash.
func (s *SubmissionsComponent) Upsert(row SubmissionRow) {
	for i := range s.rows {
		if s.rows[i].Hash == row.Hash {
			s.rows[i].Status = row.Status
			return
		}
	}
	s.rows = append([]SubmissionRow{row}, s.rows...)
	if len(s.rows) > s.maxRows {
		s.rows = s.rows[:s.maxRows]
	}
}

// Rows returns the stored rows.
func (s *SubmissionsComponent) Rows() []SubmissionRow {
	return s.rows
}

// Clear removes all rows.
func (s *SubmissionsComponent) Clear() {
	s.rows = nil
	s.offset = 0
}

// ScrollUp moves the window towards newer rows.
func (s *SubmissionsComponent) ScrollUp() {
	if s.offset > 0 {
		s.offset--
	}
}

// ScrollDown moves the window towards older rows.
func (s *SubmissionsComponent) ScrollDown() {
	if s.offset+s.visible < len(s.rows) {
		s.offset++
	}
}

// View renders the submissions component.
func (s *SubmissionsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	if len(s.rows) == 0 {
		return headerStyle.Render("SUBMISSIONS") + "\n\nNo transactions submitted yet..."
	}

	styles := map[string]lipgloss.Style{
		"confirmed": lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		"pending":   lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}
	failed := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	end := s.offset + s.visible
	if end > len(s.rows) {
		end = len(s.rows)
	}

	result := headerStyle.Render(fmt.Sprintf("SUBMISSIONS (%d)", len(s.rows))) + "\n"
	result += "┌──────────┬────────┬──────────────────┬────────────┐\n"
	result += "│   Time   │ Nonce  │       Hash       │   Status   │\n"
	result += "├──────────┼────────┼──────────────────┼────────────┤\n"

	for _, row := range s.rows[s.offset:end] {
		style, ok := styles[row.Status]
		if !ok {
			style = failed
		}
		result += fmt.Sprintf("│ %8s │%7d │ %-16s │ %s │\n",
			row.Time, row.Nonce, shortHash(row.Hash), style.Render(fmt.Sprintf("%-10s", row.Status)))
	}

	result += "└──────────┴────────┴──────────────────┴────────────┘"
	return result
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}
