package tui

import "github.com/charmbracelet/lipgloss"

// Neon palette shared with the browser view.
var (
	colorPrimary   = lipgloss.Color("#B45CFF")
	colorAccent    = lipgloss.Color("#2FF3E0")
	colorSecondary = lipgloss.Color("#231537")
	colorFg        = lipgloss.Color("#F1E9FF")
	colorDim       = lipgloss.Color("#8A7CA8")
	colorInk       = lipgloss.Color("#12061F")
)

// Styles groups every style used by the view.
type Styles struct {
	Header      lipgloss.Style
	AgentAvatar lipgloss.Style
	UserAvatar  lipgloss.Style
	AgentBubble lipgloss.Style
	UserBubble  lipgloss.Style
	Tip         lipgloss.Style
	Input       lipgloss.Style
	Help        lipgloss.Style
	Spinner     lipgloss.Style
}

// DefaultStyles returns the neon theme.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorPrimary).
			Padding(0, 1),
		AgentAvatar: lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		UserAvatar:  lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		AgentBubble: lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorSecondary).
			Padding(0, 1),
		UserBubble: lipgloss.NewStyle().
			Foreground(colorInk).
			Background(colorPrimary).
			Padding(0, 1),
		Tip: lipgloss.NewStyle().
			Foreground(colorAccent).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSecondary).
			Padding(0, 1),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1),
		Help:    lipgloss.NewStyle().Foreground(colorDim),
		Spinner: lipgloss.NewStyle().Foreground(colorPrimary),
	}
}
