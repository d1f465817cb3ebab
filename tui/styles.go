package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	colorPrimary   = lipgloss.Color("#3B82F6")
	colorSecondary = lipgloss.Color("#F59E0B")
	colorText      = lipgloss.Color("#F3F4F6")
	colorSubtext   = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#22C55E")
	colorError     = lipgloss.Color("#EF4444")
)

var (
	styleWindow = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Align(lipgloss.Center)

	// stylePanel frames the drone list, editor and log panes. The title is
	// rendered inside, so there is no vertical padding.
	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorText).Background(colorPrimary).Padding(0, 1)
	styleAppTitle = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary).Padding(0, 1).Align(lipgloss.Center)
	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary)
	styleSubtext  = lipgloss.NewStyle().Foreground(colorSubtext)
	styleKey      = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary)
	styleDesc     = styleSubtext

	styleTooSmall = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary).Align(lipgloss.Center, lipgloss.Center)

	scrollbarTrack = lipgloss.NewStyle().Foreground(colorSubtext)
	scrollbarThumb = lipgloss.NewStyle().Foreground(colorPrimary)
)
