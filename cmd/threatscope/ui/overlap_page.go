package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"threatscope/internal/kb"
)

// OverlapPage ranks the actors sharing techniques and tools with a
// reference actor.
type OverlapPage struct {
	width  int
	height int

	actor    string
	overlaps []kb.Overlap

	viewport viewport.Model
	styles   Styles
}

func NewOverlapPage(s Styles) OverlapPage {
	return OverlapPage{
		viewport: viewport.New(80, 20),
		styles:   s,
	}
}

// SetData replaces the page content with actor's overlap ranking.
func (m *OverlapPage) SetData(actor string, overlaps []kb.Overlap) {
	m.actor = actor
	m.overlaps = overlaps
	m.rerender()
	m.viewport.GotoTop()
}

// SetSize adjusts the page to the terminal dimensions.
func (m *OverlapPage) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	content := height - 4
	if content < 5 {
		content = 5
	}
	m.viewport.Height = content
}

func (m OverlapPage) Init() tea.Cmd {
	return nil
}

func (m OverlapPage) Update(msg tea.Msg) (OverlapPage, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m OverlapPage) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(fmt.Sprintf(" Shared Tradecraft: %s ", m.actor)))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("[Esc] Back"))
	return sb.String()
}

func (m *OverlapPage) rerender() {
	if len(m.overlaps) == 0 {
		m.viewport.SetContent(m.styles.Error.Render(fmt.Sprintf("No shared tradecraft found for %s.", m.actor)))
		return
	}
	rows := make([][]string, 0, len(m.overlaps))
	for _, o := range m.overlaps {
		rows = append(rows, []string{
			o.ActorName,
			strconv.Itoa(o.SharedTechniques),
			strconv.Itoa(o.SharedTools),
			strconv.Itoa(o.Total()),
		})
	}
	headers := []string{"Actor", "Shared Techniques", "Shared Tools", "Total"}
	m.viewport.SetContent(RenderTable(m.styles, "", headers, rows))
}
