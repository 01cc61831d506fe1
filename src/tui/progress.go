package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var creekLogo = []string{
	" ▄████▄ ██████▄ ███████ ███████ ██   ██",
	" ██     ██   ██ ██      ██      ██  ██ ",
	" ██     ██████▀ █████   █████   █████  ",
	" ██     ██  ██  ██      ██      ██  ██ ",
	" ▀████▀ ██   ██ ███████ ███████ ██   ██",
}

var logoGradientColors = []string{
	"#5DADE2",
	"#3498DB",
	"#2E86C1",
	"#2874A6",
	"#21618C",
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SpinnerTickMsg triggers spinner animation frame advance
type SpinnerTickMsg time.Time

// LoadingModel is shown until the first stats snapshot arrives.
type LoadingModel struct {
	target       string
	spinnerFrame int
	done         bool
}

func NewLoadingModel(target string) LoadingModel {
	return LoadingModel{target: target}
}

// SpinnerTick returns a command that sends SpinnerTickMsg after a delay
func SpinnerTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return SpinnerTickMsg(t)
	})
}

// Done stops the spinner.
func (m LoadingModel) Done() LoadingModel {
	m.done = true
	return m
}

func (m LoadingModel) Update(msg tea.Msg) (LoadingModel, tea.Cmd) {
	if _, ok := msg.(SpinnerTickMsg); ok {
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if !m.done {
			return m, SpinnerTick()
		}
	}
	return m, nil
}

func (m LoadingModel) View() string {
	var logoLines []string
	for i, line := range creekLogo {
		style := lipgloss.NewStyle().
			Foreground(lipgloss.Color(logoGradientColors[i%len(logoGradientColors)])).
			Bold(true)
		logoLines = append(logoLines, style.Render(line))
	}
	logo := strings.Join(logoLines, "\n")

	spinner := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Render(spinnerFrames[m.spinnerFrame])
	return lipgloss.JoinVertical(lipgloss.Center, logo, "", spinner+" Connecting to "+m.target+"...")
}
