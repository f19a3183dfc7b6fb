package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"threatscope/internal/attack"
)

var errInvalidChoice = errors.New("Invalid choice. Please enter a valid number.")

// ActorsPage shows threat actors grouped along one classification axis
// as numbered columns. An actor is picked by typing its number or by
// moving the highlight with the arrow keys; "/" opens a name filter.
type ActorsPage struct {
	width  int
	height int

	category  attack.Category
	actors    []attack.Actor
	filtered  []attack.Actor
	groups    []attack.ActorGroup
	selection []attack.Actor

	cursor    int
	numberBuf string
	maxCols   int
	watched   func(string) bool

	filterInput   textinput.Model
	filterFocused bool
	viewport      viewport.Model
	styles        Styles
}

// NewActorsPage creates an empty actors page. maxCols bounds how many
// category groups render side by side.
func NewActorsPage(s Styles, maxCols int) ActorsPage {
	if maxCols <= 0 {
		maxCols = DefaultMaxColumns
	}
	return ActorsPage{
		cursor:      -1,
		maxCols:     maxCols,
		filterInput: newFilterInput("Filter by name or ATT&CK ID"),
		viewport:    viewport.New(80, 20),
		styles:      s,
	}
}

// SetActors replaces the page content with actors grouped along cat.
func (m *ActorsPage) SetActors(actors []attack.Actor, cat attack.Category) {
	m.actors = actors
	m.category = cat
	m.numberBuf = ""
	m.applyFilter()
}

// SetWatched installs the predicate that marks watchlisted actors.
func (m *ActorsPage) SetWatched(watched func(string) bool) {
	m.watched = watched
	m.rerender()
}

// SetSize adjusts the page to the terminal dimensions.
func (m *ActorsPage) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	content := height - 8
	if content < 5 {
		content = 5
	}
	m.viewport.Height = content
	m.rerender()
}

// FilterFocused reports whether keystrokes are going to the filter.
func (m ActorsPage) FilterFocused() bool {
	return m.filterFocused
}

// CursorActor returns the actor under the highlight, if any.
func (m ActorsPage) CursorActor() (attack.Actor, bool) {
	if m.cursor < 0 || m.cursor >= len(m.selection) {
		return attack.Actor{}, false
	}
	return m.selection[m.cursor], true
}

// Resolve returns the actor picked by the typed number, or the
// highlighted one when no number was typed. The typed number is
// consumed either way.
func (m *ActorsPage) Resolve() (attack.Actor, error) {
	if m.numberBuf != "" {
		buf := m.numberBuf
		m.numberBuf = ""
		n, err := strconv.Atoi(buf)
		if err != nil || n < 1 || n > len(m.selection) {
			return attack.Actor{}, errInvalidChoice
		}
		return m.selection[n-1], nil
	}
	if m.cursor >= 0 && m.cursor < len(m.selection) {
		return m.selection[m.cursor], nil
	}
	return attack.Actor{}, errInvalidChoice
}

func (m ActorsPage) Init() tea.Cmd {
	return nil
}

func (m ActorsPage) Update(msg tea.Msg) (ActorsPage, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "/":
			if !m.filterFocused {
				m.filterFocused = true
				m.filterInput.Focus()
				return m, textinput.Blink
			}
		case "esc":
			if m.filterFocused {
				m.filterFocused = false
				m.filterInput.Blur()
				return m, nil
			}
		case "enter":
			if m.filterFocused {
				m.filterFocused = false
				m.filterInput.Blur()
				m.applyFilter()
				return m, nil
			}
		}
		if m.filterFocused {
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.applyFilter()
			return m, cmd
		}
		switch key := msg.String(); key {
		case "up", "k":
			m.moveCursor(-m.bandCols())
		case "down", "j":
			m.moveCursor(m.bandCols())
		case "left", "h":
			m.moveCursor(-1)
		case "right", "l":
			m.moveCursor(1)
		case "backspace":
			if len(m.numberBuf) > 0 {
				m.numberBuf = m.numberBuf[:len(m.numberBuf)-1]
			}
		case "pgup", "pgdown", "home", "end":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		default:
			if len(key) == 1 && key >= "0" && key <= "9" {
				m.numberBuf += key
			}
		}
	default:
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ActorsPage) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(fmt.Sprintf(" Threat Actors by %s ", m.category.Title())))
	sb.WriteString("\n")
	sb.WriteString(renderFilterBar(m.styles, m.filterInput, m.filterFocused, m.width))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("Showing %d of %d actors", len(m.selection), len(m.actors))))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Number.Render("Enter the number of the Threat Actor: "))
	sb.WriteString(m.styles.Bold.Render(m.numberBuf))
	return sb.String()
}

// bandCols is the column count of the first band, used as the vertical
// cursor stride.
func (m ActorsPage) bandCols() int {
	if len(m.groups) == 0 {
		return 1
	}
	if len(m.groups) < m.maxCols {
		return len(m.groups)
	}
	return m.maxCols
}

func (m *ActorsPage) moveCursor(delta int) {
	if len(m.selection) == 0 {
		return
	}
	next := m.cursor + delta
	if m.cursor < 0 {
		next = 0
	}
	if next < 0 {
		next = 0
	}
	if next >= len(m.selection) {
		next = len(m.selection) - 1
	}
	m.cursor = next
	m.numberBuf = ""
	m.rerender()
}

func (m *ActorsPage) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	if query == "" {
		m.filtered = m.actors
	} else {
		var out []attack.Actor
		for _, a := range m.actors {
			if strings.Contains(strings.ToLower(a.Name), query) ||
				strings.Contains(strings.ToLower(a.AttackID), query) {
				out = append(out, a)
			}
		}
		m.filtered = out
	}
	m.groups = attack.GroupActors(m.filtered, m.category)
	m.cursor = -1
	m.rerender()
}

func (m *ActorsPage) rerender() {
	width := m.width - 2
	if width < minColumnWidth {
		width = minColumnWidth
	}
	var rendered string
	rendered, m.selection = RenderActorColumns(m.groups, width, m.maxCols, m.styles, m.watched, m.cursor)
	m.viewport.SetContent(rendered)
}
