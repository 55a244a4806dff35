package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	// Supervisor state colors
	runningColor     = lipgloss.Color("10") // Green
	idleColor        = lipgloss.Color("8")  // Gray
	launchingColor   = lipgloss.Color("11") // Yellow
	terminatingColor = lipgloss.Color("208")
	stoppedColor     = lipgloss.Color("9") // Red

	// UI colors
	headerBg   = lipgloss.Color("235")
	statusBg   = lipgloss.Color("236")
	helpBg     = lipgloss.Color("234")
	errorColor = lipgloss.Color("9")
	dimColor   = lipgloss.Color("8")
)

// Styles
var (
	runningStyle = lipgloss.NewStyle().
			Foreground(runningColor).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(idleColor)

	launchingStyle = lipgloss.NewStyle().
			Foreground(launchingColor)

	terminatingStyle = lipgloss.NewStyle().
				Foreground(terminatingColor)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(stoppedColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Background(headerBg).
			Padding(0, 1).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Background(statusBg).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Background(helpBg).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	// ERR marker on stderr lines
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(errorColor).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(launchingColor).
			Italic(true)

	runStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)
)
