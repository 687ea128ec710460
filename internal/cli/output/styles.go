package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer so color support
// follows the destination writer.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Key:     r.NewStyle().Bold(true),
		Value:   r.NewStyle(),
	}
}
