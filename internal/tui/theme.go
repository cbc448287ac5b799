package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the settings screen uses.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
)

const (
	colorAccent  = colorPink
	colorFocus   = colorLavender
	colorError   = colorRed
	colorWarning = colorYellow
	colorInfo    = colorTeal
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorAccent)
	hintStyle   = lipgloss.NewStyle().Foreground(colorOverlay1)
	infoStyle   = lipgloss.NewStyle().Foreground(colorInfo)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorFocus)
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Foreground(colorText).
			Padding(0, 1)
)
