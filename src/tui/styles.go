package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// StyleConfig holds the colors of the monitor.
type StyleConfig struct {
	PrimaryBlue    lipgloss.Color
	DarkBackground lipgloss.Color
	TextPrimary    lipgloss.Color
	TextSecondary  lipgloss.Color
	BorderColor    lipgloss.Color
	SelectedColor  lipgloss.Color

	// Lag coloring
	Healthy lipgloss.Color
	Behind  lipgloss.Color
	Error   lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:    lipgloss.Color("#8AB4F8"),
		DarkBackground: lipgloss.Color("#1E1E1E"),
		TextPrimary:    lipgloss.Color("#E8EAED"),
		TextSecondary:  lipgloss.Color("#9AA0A6"),
		BorderColor:    lipgloss.Color("#5F6368"),
		SelectedColor:  lipgloss.Color("#303134"),
		Healthy:        lipgloss.Color("#34A853"),
		Behind:         lipgloss.Color("#FBBC04"),
		Error:          lipgloss.Color("#EA4335"),
	}
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 2)
}

// ErrorStyle renders refresh failures.
func (s *StyleConfig) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.Error).
		Bold(true).
		Padding(0, 2)
}

// TableStyles adapts the bubbles table defaults to this palette.
func (s *StyleConfig) TableStyles() table.Styles {
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(s.BorderColor).
		BorderBottom(true).
		Foreground(s.PrimaryBlue).
		Bold(true)
	st.Selected = st.Selected.
		Foreground(s.TextPrimary).
		Background(s.SelectedColor).
		Bold(false)
	return st
}
