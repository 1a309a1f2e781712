package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Color definitions using AdaptiveColor for light/dark terminals
var (
	SuccessColor = lipgloss.AdaptiveColor{Light: "#28A745", Dark: "#4CDD76"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#DC3545", Dark: "#FF6B7D"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD54F"}
	InfoColor    = lipgloss.AdaptiveColor{Light: "#17A2B8", Dark: "#4DD0E1"}
	HeadingColor = lipgloss.AdaptiveColor{Light: "#212529", Dark: "#F8F9FA"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#ADB5BD"}
	PathColor    = lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#A0A8B0"}
)

// Styles are the lipgloss styles bound to one renderer
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Path    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title: r.NewStyle().
			Foreground(HeadingColor).
			Bold(true),
		Success: r.NewStyle().
			Foreground(SuccessColor).
			Bold(true),
		Error: r.NewStyle().
			Foreground(ErrorColor).
			Bold(true),
		Warning: r.NewStyle().
			Foreground(WarningColor).
			Bold(true),
		Info: r.NewStyle().
			Foreground(InfoColor),
		Muted: r.NewStyle().
			Foreground(MutedColor),
		Path: r.NewStyle().
			Foreground(PathColor).
			Italic(true),
	}
}
