package tui

import (
	"io"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// compactDelegate reduces per-item height to 1 line to keep menus dense.
type compactDelegate struct{ list.DefaultDelegate }

func (d compactDelegate) Height() int { return 1 }

func (d compactDelegate) Spacing() int { return 0 }

func (d compactDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	it := listItem.(menuItem)
	title := it.Title()
	if index == m.Index() {
		_, _ = io.WriteString(w, d.Styles.SelectedTitle.Render("> "+title))
		return
	}
	_, _ = io.WriteString(w, d.Styles.NormalTitle.Render("  "+title))
}

func NewMenu(items []string, title string) *menuModel {
	var lItems []list.Item
	for _, it := range items {
		lItems = append(lItems, menuItem(it))
	}

	delegate := compactDelegate{list.NewDefaultDelegate()}
	delegate.Styles.SelectedTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff79c6")).Bold(true)
	delegate.Styles.NormalTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f8f8f2"))

	l := list.New(lItems, delegate, 48, 12)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowPagination(false)

	return &menuModel{list: l}
}
