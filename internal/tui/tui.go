package tui

import (
	"fmt"
	"strings"
	"sync"

	"usb-fleet/internal/util"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

type menuItem string

func (m menuItem) Title() string       { return string(m) }
func (m menuItem) Description() string { return "" }
func (m menuItem) FilterValue() string { return string(m) }

type menuModel struct {
	list   list.Model
	choice string

	logMu    sync.Mutex
	logLines []string
}

// message type used to transport printed strings into the Bubble Tea loop
type printMsg string

// ShowMenuWithPrints runs the menu while forwarding SafePrinter output into
// the model, so background progress (a batch run, a watcher) stays visible
// under the menu instead of corrupting it. The previous forward channel is
// restored on exit.
func ShowMenuWithPrints(items []string, title string) (string, error) {
	ch := make(chan string, 256)
	prev := util.Default.SetForwardChannel(ch)

	m := NewMenu(items, title)
	p := tea.NewProgram(m)

	done := make(chan struct{})
	go func() {
		for s := range ch {
			s = strings.ReplaceAll(s, "\r\x1b[K", "")
			for _, part := range strings.Split(s, "\n") {
				line := strings.TrimSpace(part)
				if line == "" {
					continue
				}
				p.Send(printMsg(line + "\n"))
			}
		}
		close(done)
	}()

	if _, err := p.Run(); err != nil {
		util.Default.SetForwardChannel(prev)
		return "", err
	}

	util.Default.SetForwardChannel(prev)
	close(ch)
	<-done
	return m.choice, nil
}

func (m *menuModel) Init() tea.Cmd { return nil }

func (m *menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case printMsg:
		m.logMu.Lock()
		m.logLines = append(m.logLines, string(msg))
		if len(m.logLines) > 200 {
			m.logLines = m.logLines[len(m.logLines)-200:]
		}
		m.logMu.Unlock()
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if itm := m.list.SelectedItem(); itm != nil {
				m.choice = itm.(menuItem).Title()
			}
			return m, tea.Quit
		case "esc", "q":
			m.choice = "cancelled"
			return m, tea.Quit
		case "up", "k":
			m.list.CursorUp()
			return m, nil
		case "down", "j":
			m.list.CursorDown()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *menuModel) View() string {
	if m.choice != "" {
		return fmt.Sprintf("Selected: %s\n", m.choice)
	}
	menuView := m.list.View()
	m.logMu.Lock()
	defer m.logMu.Unlock()
	n := len(m.logLines)
	start := 0
	if n > 8 {
		start = n - 8
	}
	logBlock := ""
	for _, l := range m.logLines[start:] {
		logBlock += l
		if len(l) == 0 || l[len(l)-1] != '\n' {
			logBlock += "\n"
		}
	}
	if logBlock != "" {
		return menuView + "\n--- recent ---\n" + logBlock
	}
	return menuView
}
