// Package tui provides the terminal monitor behind "creek top": a live table
// of shard lengths, group cursors, lag and lease holders.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"creek/src/contracts"
)

// DefaultRefreshInterval is how often the monitor polls for stats.
const DefaultRefreshInterval = time.Second

// StatsSource provides broker snapshots. contracts.Admin satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) (contracts.Stats, error)
}

// StatsMsg carries the result of one refresh.
type StatsMsg struct {
	Stats contracts.Stats
	Err   error
	At    time.Time
}

type refreshMsg time.Time

var columns = []table.Column{
	{Title: "Topic", Width: 20},
	{Title: "Shard", Width: 6},
	{Title: "Length", Width: 10},
	{Title: "Group", Width: 20},
	{Title: "Committed", Width: 10},
	{Title: "Lag", Width: 8},
	{Title: "Holder", Width: 8},
	{Title: "Lease", Width: 8},
}

// TopModel is the Bubble Tea model for "creek top".
type TopModel struct {
	source   StatsSource
	interval time.Duration
	styles   *StyleConfig

	loading LoadingModel
	header  Header
	table   table.Model

	loaded  bool
	lastErr error
	width   int
	height  int
}

// NewTopModel creates a monitor polling source every interval. target names
// the source in the header.
func NewTopModel(source StatsSource, target string, interval time.Duration) TopModel {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	styles := DefaultStyles()
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(styles.TableStyles())

	return TopModel{
		source:   source,
		interval: interval,
		styles:   styles,
		loading:  NewLoadingModel(target),
		header:   NewHeader(target, styles),
		table:    t,
	}
}

// Init starts the first refresh and the loading spinner.
func (m TopModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), SpinnerTick())
}

func (m TopModel) fetch() tea.Cmd {
	source, timeout := m.source, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
		defer cancel()
		stats, err := source.Stats(ctx)
		return StatsMsg{Stats: stats, Err: err, At: time.Now()}
	}
}

func (m TopModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Update handles messages and updates the model state.
func (m TopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		// header (2 lines) + help/error (2 lines)
		if h := msg.Height - 4; h > 2 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case SpinnerTickMsg:
		var cmd tea.Cmd
		m.loading, cmd = m.loading.Update(msg)
		return m, cmd

	case refreshMsg:
		return m, m.fetch()

	case StatsMsg:
		m.lastErr = msg.Err
		if msg.Err == nil {
			m.loaded = true
			m.loading = m.loading.Done()
			m.apply(msg.Stats, msg.At)
		}
		return m, m.scheduleRefresh()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *TopModel) apply(stats contracts.Stats, at time.Time) {
	rows := Rows(stats)
	m.table.SetRows(rows)

	shards := 0
	var lag int64
	for _, t := range stats.Topics {
		shards += len(t.Shards)
		for _, s := range t.Shards {
			for _, c := range s.Cursors {
				lag += c.Lag
			}
		}
	}
	m.header.SetCounts(len(stats.Topics), shards, stats.Subscriptions, lag, at)
}

// Rows flattens a snapshot into one table row per shard cursor. Shards no
// group has read yet get a single row without cursor columns.
func Rows(stats contracts.Stats) []table.Row {
	var rows []table.Row
	for _, t := range stats.Topics {
		topic := Truncate(t.Topic, columns[0].Width, true)
		for _, s := range t.Shards {
			shard := strconv.Itoa(s.Shard)
			length := strconv.FormatInt(s.Length, 10)
			if len(s.Cursors) == 0 {
				rows = append(rows, table.Row{topic, shard, length, "-", "-", "-", "-", "-"})
				continue
			}
			for _, c := range s.Cursors {
				holder, lease := "-", "-"
				if c.Holder != 0 {
					holder = strconv.FormatUint(c.Holder, 10)
					lease = formatLease(c.LeaseExpiresInMs)
				}
				rows = append(rows, table.Row{
					topic,
					shard,
					length,
					Truncate(c.Group, columns[3].Width, true),
					strconv.FormatInt(c.Committed, 10),
					strconv.FormatInt(c.Lag, 10),
					holder,
					lease,
				})
			}
		}
	}
	return rows
}

func formatLease(ms int64) string {
	if ms >= 10_000 {
		return fmt.Sprintf("%ds", ms/1000)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// View renders the monitor.
func (m TopModel) View() string {
	if !m.loaded {
		view := m.loading.View()
		if m.lastErr != nil {
			view = lipgloss.JoinVertical(lipgloss.Center, view, "", m.styles.ErrorStyle().Render(m.lastErr.Error()))
		}
		return FitLines(view, m.width)
	}

	footer := m.styles.HelpStyle().Render("↑/↓ scroll • r refresh • q quit")
	if m.lastErr != nil {
		footer = m.styles.ErrorStyle().Render("refresh failed: " + m.lastErr.Error())
	}
	view := lipgloss.JoinVertical(lipgloss.Left,
		m.header.Render(m.width),
		m.table.View(),
		footer,
	)
	return FitLines(view, m.width)
}

// Start runs the monitor full screen until the user quits.
func Start(source StatsSource, target string, interval time.Duration) error {
	p := tea.NewProgram(NewTopModel(source, target, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
