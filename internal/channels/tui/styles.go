package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	accentColor    = lipgloss.Color("212") // Pink
	errorColor     = lipgloss.Color("196") // Red
	successColor   = lipgloss.Color("82")  // Green
	warningColor   = lipgloss.Color("214") // Orange
)

// Styles
var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Width(14)

	focusedLabelStyle = labelStyle.
				Foreground(accentColor).
				Bold(true)

	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")). // Light yellow
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // Cyan

	feedbackStyle = lipgloss.NewStyle().
			Foreground(successColor)

	loaderStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	readyStyle = lipgloss.NewStyle().
			Foreground(successColor)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)
)
