// Package tui renders the planner in a terminal: the month grid, a day's
// list and an interactive search prompt.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	weekdayStyle = lipgloss.NewStyle().Foreground(colorGray).Width(cellWidth).Align(lipgloss.Right)

	cellStyle    = lipgloss.NewStyle().Width(cellWidth).Align(lipgloss.Right)
	outsideStyle = cellStyle.Foreground(colorSubtle)
	todayStyle   = cellStyle.Bold(true).Underline(true)

	pendingStyle = lipgloss.NewStyle().Foreground(colorPrimary)
	partialStyle = lipgloss.NewStyle().Foreground(colorYellow)
	doneStyle    = lipgloss.NewStyle().Foreground(colorGreen)

	mutedStyle    = lipgloss.NewStyle().Foreground(colorGray)
	errorStyle    = lipgloss.NewStyle().Foreground(colorRed)
	markStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
)

const cellWidth = 5
