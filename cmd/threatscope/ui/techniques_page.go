package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"threatscope/internal/attack"
)

// TechniquesPage pages through the techniques attributed to one actor,
// five to a screen. Enter advances a page, "p" goes back, and the
// arrow keys highlight a row whose detail opens in a markdown view.
// Enter on the last page marks the page done so the caller can leave.
type TechniquesPage struct {
	width  int
	height int

	actor string
	techs []attack.Technique

	paginator paginator.Model
	cursor    int
	done      bool

	detailOpen bool
	detailMD   string
	renderer   *glamour.TermRenderer

	tableView  viewport.Model
	detailView viewport.Model
	styles     Styles
}

func NewTechniquesPage(s Styles, pageSize int) TechniquesPage {
	if pageSize <= 0 {
		pageSize = 5
	}
	p := paginator.New()
	p.Type = paginator.Arabic
	p.PerPage = pageSize
	return TechniquesPage{
		paginator:  p,
		cursor:     -1,
		renderer:   NewMarkdownRenderer(s.Theme, 72),
		tableView:  viewport.New(80, 20),
		detailView: viewport.New(80, 20),
		styles:     s,
	}
}

// SetTechniques replaces the page content with actor's techniques.
func (m *TechniquesPage) SetTechniques(actor string, techs []attack.Technique) {
	m.actor = actor
	m.techs = techs
	m.paginator.Page = 0
	m.paginator.SetTotalPages(len(techs))
	m.cursor = -1
	m.done = false
	m.detailOpen = false
	m.rerender()
}

// SetSize adjusts the page to the terminal dimensions.
func (m *TechniquesPage) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.tableView.Width = width
	m.detailView.Width = width
	content := height - 6
	if content < 5 {
		content = 5
	}
	m.tableView.Height = content
	m.detailView.Height = content
	wrap := width - 8
	if wrap < 40 {
		wrap = 40
	}
	m.renderer = NewMarkdownRenderer(m.styles.Theme, wrap)
	if m.detailOpen {
		m.detailView.SetContent(SafeRenderMarkdown(m.renderer, m.detailMD))
	}
	m.rerender()
}

// Actor returns the actor whose techniques are shown.
func (m TechniquesPage) Actor() string {
	return m.actor
}

// Done reports that Enter was pressed on the last page.
func (m TechniquesPage) Done() bool {
	return m.done
}

// ClearDone resets the exit flag after the caller has acted on it.
func (m *TechniquesPage) ClearDone() {
	m.done = false
}

// DetailOpen reports whether the technique detail view is showing.
func (m TechniquesPage) DetailOpen() bool {
	return m.detailOpen
}

// ConsumeEsc closes the detail view or clears the highlight. It
// returns false when neither applies, leaving Esc to the caller.
func (m *TechniquesPage) ConsumeEsc() bool {
	if m.detailOpen {
		m.detailOpen = false
		return true
	}
	if m.cursor >= 0 {
		m.cursor = -1
		m.rerender()
		return true
	}
	return false
}

// CursorTechnique returns the highlighted technique, if any.
func (m TechniquesPage) CursorTechnique() (attack.Technique, bool) {
	if m.cursor < 0 {
		return attack.Technique{}, false
	}
	start, end := m.paginator.GetSliceBounds(len(m.techs))
	idx := start + m.cursor
	if idx >= end {
		return attack.Technique{}, false
	}
	return m.techs[idx], true
}

// ReferenceURL returns the ATT&CK site page for the highlighted or
// opened technique, or "" when there is none.
func (m TechniquesPage) ReferenceURL() string {
	t, ok := m.CursorTechnique()
	if !ok || t.AttackID == "" {
		return ""
	}
	return "https://attack.mitre.org/techniques/" + strings.ReplaceAll(t.AttackID, ".", "/") + "/"
}

// AppendDetail adds fetched reference content under the open detail.
func (m *TechniquesPage) AppendDetail(extract string) {
	if !m.detailOpen || extract == "" {
		return
	}
	m.detailMD += "\n\n---\n\n" + extract
	m.detailView.SetContent(SafeRenderMarkdown(m.renderer, m.detailMD))
}

func (m TechniquesPage) Init() tea.Cmd {
	return nil
}

func (m TechniquesPage) Update(msg tea.Msg) (TechniquesPage, tea.Cmd) {
	var cmd tea.Cmd
	if m.detailOpen {
		m.detailView, cmd = m.detailView.Update(msg)
		return m, cmd
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.cursor >= 0 {
				m.openCursorDetail()
			} else if m.paginator.OnLastPage() || len(m.techs) == 0 {
				m.done = true
			} else {
				m.paginator.NextPage()
				m.cursor = -1
				m.rerender()
			}
		case "p", "left":
			m.paginator.PrevPage()
			m.cursor = -1
			m.rerender()
		case "right":
			if !m.paginator.OnLastPage() {
				m.paginator.NextPage()
				m.cursor = -1
				m.rerender()
			}
		case "down", "j":
			if m.cursor < m.pageRows()-1 {
				m.cursor++
				m.rerender()
			}
		case "up", "k":
			if m.cursor >= 0 {
				m.cursor--
				m.rerender()
			}
		default:
			m.tableView, cmd = m.tableView.Update(msg)
			return m, cmd
		}
	default:
		m.tableView, cmd = m.tableView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m TechniquesPage) View() string {
	if m.detailOpen {
		t, _ := m.CursorTechnique()
		var sb strings.Builder
		sb.WriteString(m.styles.Header.Render(fmt.Sprintf(" Technique: %s ", t.Name)))
		sb.WriteString("\n")
		sb.WriteString(m.detailView.View())
		sb.WriteString("\n")
		sb.WriteString(m.styles.Muted.Render("[Esc] Back  [x] Fetch reference"))
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render(fmt.Sprintf("Techniques for %s - Total Techniques: %d", m.actor, len(m.techs))))
	sb.WriteString("\n")
	sb.WriteString(m.tableView.View())
	sb.WriteString("\n")
	page := m.paginator.Page + 1
	total := m.paginator.TotalPages
	if total < 1 {
		total = 1
	}
	var prompt string
	if m.paginator.OnLastPage() || len(m.techs) == 0 {
		prompt = fmt.Sprintf("Page %d/%d. Press Enter to start over, 'p' for previous, 'q' to quit: ", page, total)
	} else {
		prompt = fmt.Sprintf("Page %d/%d. Press Enter for next, 'p' for previous, 'q' to quit: ", page, total)
	}
	sb.WriteString(m.styles.Number.Render(prompt))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("[↑/↓] Highlight  [Enter] Open detail  [o] Overlap  [x] Reference"))
	return sb.String()
}

func (m TechniquesPage) pageRows() int {
	start, end := m.paginator.GetSliceBounds(len(m.techs))
	return end - start
}

func (m *TechniquesPage) openCursorDetail() {
	t, ok := m.CursorTechnique()
	if !ok {
		return
	}
	m.detailMD = techniqueMarkdown(t)
	m.detailView.SetContent(SafeRenderMarkdown(m.renderer, m.detailMD))
	m.detailView.GotoTop()
	m.detailOpen = true
}

func (m *TechniquesPage) rerender() {
	start, end := m.paginator.GetSliceBounds(len(m.techs))
	width := m.width - 2
	if width < minDescColWidth {
		width = minDescColWidth
	}
	m.tableView.SetContent(RenderTechniqueTable(m.techs[start:end], start, width, m.styles, m.cursor))
}

func techniqueMarkdown(t attack.Technique) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s", t.Name)
	if t.AttackID != "" {
		fmt.Fprintf(&sb, " (%s)", t.AttackID)
	}
	sb.WriteString("\n\n")
	if t.Platforms != "" {
		fmt.Fprintf(&sb, "**Platforms:** %s\n\n", t.Platforms)
	}
	if t.KillChain != "" {
		fmt.Fprintf(&sb, "**Kill Chain:** %s\n\n", t.KillChain)
	}
	sb.WriteString(t.Description)
	sb.WriteString("\n")
	return sb.String()
}
