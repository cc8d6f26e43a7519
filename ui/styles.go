package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette shared by all views.
const (
	colorGreen = lipgloss.Color("#2ec27e")
	colorAmber = lipgloss.Color("#e5a50a")
	colorRed   = lipgloss.Color("#e01b24")
	colorBlue  = lipgloss.Color("#3584e4")
	colorDim   = lipgloss.Color("#77767b")
)

// Styles holds the lipgloss styles of one output stream.
type Styles struct {
	Info    lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Tick    lipgloss.Style
	Title   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Box     lipgloss.Style
	FailBox lipgloss.Style
}

// NewStyles builds styles for w. Color support is detected from w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorGreen).
		Padding(0, 1)

	return Styles{
		Info:    r.NewStyle().Foreground(colorBlue),
		OK:      r.NewStyle().Foreground(colorGreen).Bold(true),
		Warn:    r.NewStyle().Foreground(colorAmber).Bold(true),
		Error:   r.NewStyle().Foreground(colorRed).Bold(true),
		Tick:    r.NewStyle().Foreground(colorDim),
		Title:   r.NewStyle().Bold(true),
		Label:   r.NewStyle().Foreground(colorDim),
		Dim:     r.NewStyle().Foreground(colorDim).Italic(true),
		Box:     box,
		FailBox: box.BorderForeground(colorRed),
	}
}
