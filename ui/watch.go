package ui

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FetchFunc gathers a fresh status report.
type FetchFunc func(ctx context.Context) StatusReport

type reportMsg StatusReport

type refreshMsg struct{}

// WatchModel is the bubbletea model of the live status view.
type WatchModel struct {
	ctx      context.Context
	fetch    FetchFunc
	interval time.Duration
	styles   Styles
	spinner  spinner.Model

	report   StatusReport
	loaded   bool
	loading  bool
	quitting bool
}

// NewWatchModel creates a model refreshing every interval.
func NewWatchModel(ctx context.Context, fetch FetchFunc, interval time.Duration, styles Styles) WatchModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(colorBlue)),
	)
	return WatchModel{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		styles:   styles,
		spinner:  s,
		loading:  true,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m WatchModel) load() tea.Cmd {
	ctx, fetch := m.ctx, m.fetch
	return func() tea.Msg {
		return reportMsg(fetch(ctx))
	}
}

func (m WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, m.load()
			}
		}
		return m, nil

	case reportMsg:
		m.report = StatusReport(msg)
		m.loaded = true
		m.loading = false
		return m, m.schedule()

	case refreshMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}
	header := m.styles.Title.Render("Travel router status")
	if m.loading {
		header += " " + m.spinner.View()
	}

	body := m.styles.Dim.Render("gathering status...")
	if m.loaded {
		body = RenderStatus(m.styles, m.report)
	}
	help := m.styles.Dim.Render("r refresh • q quit")
	return header + "\n\n" + body + "\n\n" + help + "\n"
}

// Report returns the last report shown.
func (m WatchModel) Report() StatusReport {
	return m.report
}

// Watch runs the live status view until the user quits or ctx ends.
func Watch(ctx context.Context, fetch FetchFunc, interval time.Duration) error {
	model := NewWatchModel(ctx, fetch, interval, NewStyles(os.Stdout))
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil) {
		return nil
	}
	return err
}
