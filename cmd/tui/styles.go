// Package tui renders live per-source latency statistics in the terminal.
// It uses the Charm Bubble Tea framework and polls a running api server.
package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Color palette for the TUI
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Violet
	secondaryColor = lipgloss.Color("#10B981") // Emerald
	accentColor    = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red

	fgColor     = lipgloss.Color("#CDD6F4") // Light foreground
	mutedColor  = lipgloss.Color("#6C7086") // Muted text
	borderColor = lipgloss.Color("#45475A") // Border
	selectedBg  = lipgloss.Color("#313244") // Selected background
	highlightBg = lipgloss.Color("#45475A") // Highlight background
)

var subtitleStyle = lipgloss.NewStyle().
	Foreground(mutedColor).
	Italic(true)

var helpStyle = lipgloss.NewStyle().
	Foreground(mutedColor).
	MarginTop(1)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(borderColor).
	Padding(1, 2)

var errorStyle = lipgloss.NewStyle().
	Foreground(errorColor).
	Bold(true)

// headerStyle creates the header/banner style
var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(fgColor).
	Background(primaryColor).
	Padding(0, 2).
	MarginBottom(1)

var progressStyle = lipgloss.NewStyle().
	Foreground(accentColor)

var statusBarStyle = lipgloss.NewStyle().
	Foreground(mutedColor).
	Background(highlightBg).
	Padding(0, 1)

// tableStyles colors the header row and the selected row.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Foreground(secondaryColor).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(fgColor).
		Background(selectedBg).
		Bold(false)
	return s
}
