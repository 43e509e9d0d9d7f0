package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"usb-fleet/internal/batch"
	"usb-fleet/internal/events"
	"usb-fleet/internal/syncdata"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555"))
)

type stepMsg string
type totalMsg int
type finishedMsg struct{}

type progressModel struct {
	title string
	bar   progress.Model
	total int
	done  int
	lines []string
	over  bool
}

func (m *progressModel) Init() tea.Cmd { return nil }

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case totalMsg:
		m.total = int(msg)
		m.done = 0
		return m, nil
	case stepMsg:
		m.done++
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > 12 {
			m.lines = m.lines[len(m.lines)-12:]
		}
		if m.total > 0 {
			return m, m.bar.SetPercent(float64(m.done) / float64(m.total))
		}
		return m, nil
	case finishedMsg:
		m.over = true
		return m, tea.Sequence(m.bar.SetPercent(1), tea.Quit)
	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(m.title + "\n\n")
	b.WriteString(m.bar.View())
	if m.total > 0 {
		b.WriteString(fmt.Sprintf("  %d/%d", m.done, m.total))
	}
	b.WriteString("\n\n")
	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	return b.String()
}

func formatBatchStep(step batch.Step) string {
	label := fmt.Sprintf("[%s] %s", step.DeviceName, step.Item)
	switch step.Outcome {
	case batch.OutcomeSuccess:
		return okStyle.Render("✅ " + label)
	case batch.OutcomeNotInstalled:
		return warnStyle.Render("ℹ️  " + label + " (not installed)")
	default:
		return failStyle.Render("❌ " + label + ": " + step.Detail)
	}
}

func formatFileOutcome(out syncdata.FileOutcome) string {
	label := fmt.Sprintf("[%s] %s %s", out.DeviceName, out.Action, out.RelPath)
	if out.Action == "gate" {
		return failStyle.Render("❌ [" + out.DeviceName + "] " + out.Detail)
	}
	if !out.OK {
		return failStyle.Render("❌ " + label + ": " + out.Detail)
	}
	if out.Action == "skip" {
		return warnStyle.Render("⏭️  " + label)
	}
	return okStyle.Render("✅ " + label)
}

// RunWithProgress drives fn under a progress view fed by the global bus.
// Batch steps and sync file outcomes both advance the bar. The view exits
// when fn returns; fn's error is passed through.
func RunWithProgress(title string, fn func() error) error {
	m := &progressModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	p := tea.NewProgram(m)

	onBatchStarted := func(total int) { p.Send(totalMsg(total)) }
	onBatchStep := func(step batch.Step) { p.Send(stepMsg(formatBatchStep(step))) }
	onSyncFile := func(out syncdata.FileOutcome) { p.Send(stepMsg(formatFileOutcome(out))) }

	_ = events.GlobalBus.Subscribe(events.EventBatchStarted, onBatchStarted)
	_ = events.GlobalBus.Subscribe(events.EventBatchStep, onBatchStep)
	_ = events.GlobalBus.Subscribe(events.EventSyncFileOutcome, onSyncFile)
	defer func() {
		_ = events.GlobalBus.Unsubscribe(events.EventBatchStarted, onBatchStarted)
		_ = events.GlobalBus.Unsubscribe(events.EventBatchStep, onBatchStep)
		_ = events.GlobalBus.Unsubscribe(events.EventSyncFileOutcome, onSyncFile)
	}()

	errCh := make(chan error, 1)
	go func() {
		err := fn()
		errCh <- err
		p.Send(finishedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-errCh
}
