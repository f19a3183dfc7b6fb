package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"threatscope/internal/watchlist"
)

// WatchPage lists the tracked actors with their notes. The caller owns
// the watchlist itself; this page only renders entries and a cursor.
type WatchPage struct {
	width  int
	height int

	entries []watchlist.Entry
	cursor  int

	viewport viewport.Model
	styles   Styles
}

func NewWatchPage(s Styles) WatchPage {
	return WatchPage{
		viewport: viewport.New(80, 20),
		styles:   s,
	}
}

// SetEntries replaces the page content, keeping the cursor in range.
func (m *WatchPage) SetEntries(entries []watchlist.Entry) {
	m.entries = entries
	if m.cursor >= len(entries) {
		m.cursor = len(entries) - 1
	}
	if m.cursor < 0 && len(entries) > 0 {
		m.cursor = 0
	}
	m.rerender()
}

// SetSize adjusts the page to the terminal dimensions.
func (m *WatchPage) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	content := height - 4
	if content < 5 {
		content = 5
	}
	m.viewport.Height = content
}

// CursorEntry returns the entry under the cursor, if any.
func (m WatchPage) CursorEntry() (watchlist.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return watchlist.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m WatchPage) Init() tea.Cmd {
	return nil
}

func (m WatchPage) Update(msg tea.Msg) (WatchPage, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.rerender()
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
				m.rerender()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	default:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchPage) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(fmt.Sprintf(" Watchlist (%d) ", len(m.entries))))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("[a] Add last actor  [d] Remove  [Esc] Back"))
	return sb.String()
}

func (m *WatchPage) rerender() {
	if len(m.entries) == 0 {
		m.viewport.SetContent(m.styles.Muted.Render("Nothing tracked yet. Open an actor's techniques and press 'a' here to add it."))
		return
	}
	var sb strings.Builder
	for i, e := range m.entries {
		marker := "  "
		nameStyle := m.styles.Bold
		if i == m.cursor {
			marker = "▶ "
			nameStyle = m.styles.MenuSelected
		}
		sb.WriteString(marker)
		sb.WriteString(m.styles.Number.Render(fmt.Sprintf("%d.", i+1)))
		sb.WriteString(" ")
		sb.WriteString(nameStyle.Render(e.Name))
		sb.WriteString(" ")
		sb.WriteString(m.styles.WatchMark.Render("★"))
		sb.WriteString("\n")
		if e.Note != "" {
			sb.WriteString("      ")
			sb.WriteString(m.styles.Muted.Render(e.Note))
			sb.WriteString("\n")
		}
	}
	m.viewport.SetContent(sb.String())
}
