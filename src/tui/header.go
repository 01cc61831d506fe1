package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Header is the status bar above the cursor table.
type Header struct {
	source        string
	topics        int
	shards        int
	subscriptions int
	totalLag      int64
	updated       time.Time
	styles        *StyleConfig
}

// NewHeader creates a header for the given stats source description.
func NewHeader(source string, styles *StyleConfig) Header {
	if styles == nil {
		styles = DefaultStyles()
	}
	return Header{source: source, styles: styles}
}

// SetCounts updates the totals shown in the header.
func (h *Header) SetCounts(topics, shards, subscriptions int, totalLag int64, updated time.Time) {
	h.topics = topics
	h.shards = shards
	h.subscriptions = subscriptions
	h.totalLag = totalLag
	h.updated = updated
}

// Render renders the header
func (h Header) Render(width int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 2)
	title := titleStyle.Render(fmt.Sprintf("creek top  %s", h.source))

	countStyle := lipgloss.NewStyle().
		Foreground(h.styles.TextPrimary).
		Padding(0, 2)
	counts := countStyle.Render(fmt.Sprintf("topics %d  shards %d  subscriptions %d", h.topics, h.shards, h.subscriptions))

	lagColor := h.styles.Healthy
	if h.totalLag > 0 {
		lagColor = h.styles.Behind
	}
	lag := lipgloss.NewStyle().Foreground(lagColor).Padding(0, 2).Render(fmt.Sprintf("lag %d", h.totalLag))

	var updated string
	if !h.updated.IsZero() {
		updated = lipgloss.NewStyle().
			Foreground(h.styles.TextSecondary).
			Padding(0, 2).
			Render("updated " + h.updated.Format("15:04:05"))
	}

	left := lipgloss.JoinHorizontal(lipgloss.Left, title, counts, lag)
	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(updated)
	if spacerWidth < 0 {
		spacerWidth = 0
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor)
	if width > 0 {
		headerStyle = headerStyle.Width(width)
	}
	return headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, updated))
}
