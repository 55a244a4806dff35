package prompt

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	accentColor = lipgloss.Color("14") // Cyan
	okColor     = lipgloss.Color("10") // Green
	errorColor  = lipgloss.Color("9")  // Red
	dimColor    = lipgloss.Color("8")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(okColor)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)
