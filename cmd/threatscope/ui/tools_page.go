package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"threatscope/internal/attack"
)

type toolsMode int

const (
	toolsModeList toolsMode = iota
	toolsModePanel
)

// ToolsPage lists the catalog's tools and malware as a numbered grid
// and shows a detail panel for the picked one. Tools are picked by
// typing their number; "/" opens a name filter.
type ToolsPage struct {
	width  int
	height int

	tools    []attack.Tool
	filtered []attack.Tool

	mode      toolsMode
	numberBuf string
	panelTool attack.Tool

	filterInput   textinput.Model
	filterFocused bool
	listView      viewport.Model
	panelView     viewport.Model
	styles        Styles
}

func NewToolsPage(s Styles) ToolsPage {
	return ToolsPage{
		filterInput: newFilterInput("Filter by name or ATT&CK ID"),
		listView:    viewport.New(80, 20),
		panelView:   viewport.New(80, 20),
		styles:      s,
	}
}

// SetTools replaces the page content.
func (m *ToolsPage) SetTools(tools []attack.Tool) {
	m.tools = tools
	m.mode = toolsModeList
	m.numberBuf = ""
	m.applyFilter()
}

// SetSize adjusts the page to the terminal dimensions.
func (m *ToolsPage) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.listView.Width = width
	m.panelView.Width = width
	list := height - 9
	if list < 5 {
		list = 5
	}
	m.listView.Height = list
	panel := height - 4
	if panel < 5 {
		panel = 5
	}
	m.panelView.Height = panel
	m.rerender()
}

// FilterFocused reports whether keystrokes are going to the filter.
func (m ToolsPage) FilterFocused() bool {
	return m.filterFocused
}

// InPanel reports whether the detail panel is open.
func (m ToolsPage) InPanel() bool {
	return m.mode == toolsModePanel
}

// PanelTool returns the tool the open panel describes.
func (m ToolsPage) PanelTool() attack.Tool {
	return m.panelTool
}

// Resolve returns the tool picked by the typed number, consuming it.
func (m *ToolsPage) Resolve() (attack.Tool, error) {
	if m.numberBuf == "" {
		return attack.Tool{}, errInvalidChoice
	}
	buf := m.numberBuf
	m.numberBuf = ""
	n, err := strconv.Atoi(buf)
	if err != nil || n < 1 || n > len(m.filtered) {
		return attack.Tool{}, errInvalidChoice
	}
	return m.filtered[n-1], nil
}

// ShowPanel opens the detail panel for tool.
func (m *ToolsPage) ShowPanel(tool attack.Tool, techniques []attack.Technique, actors []attack.ActorRef) {
	m.panelTool = tool
	width := m.width - 4
	if width < minDescColWidth {
		width = minDescColWidth
	}
	m.panelView.SetContent(RenderToolPanel(tool, techniques, actors, width, m.styles))
	m.panelView.GotoTop()
	m.mode = toolsModePanel
}

// ClosePanel returns to the tool list.
func (m *ToolsPage) ClosePanel() {
	m.mode = toolsModeList
}

func (m ToolsPage) Init() tea.Cmd {
	return nil
}

func (m ToolsPage) Update(msg tea.Msg) (ToolsPage, tea.Cmd) {
	var cmd tea.Cmd
	if m.mode == toolsModePanel {
		m.panelView, cmd = m.panelView.Update(msg)
		return m, cmd
	}
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
		case "backspace":
			if len(m.numberBuf) > 0 {
				m.numberBuf = m.numberBuf[:len(m.numberBuf)-1]
			}
		default:
			if len(key) == 1 && key >= "0" && key <= "9" {
				m.numberBuf += key
			} else {
				m.listView, cmd = m.listView.Update(msg)
				return m, cmd
			}
		}
	default:
		m.listView, cmd = m.listView.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ToolsPage) View() string {
	if m.mode == toolsModePanel {
		var sb strings.Builder
		sb.WriteString(m.styles.Header.Render(fmt.Sprintf(" Tool: %s ", m.panelTool.Name)))
		sb.WriteString("\n")
		sb.WriteString(m.panelView.View())
		sb.WriteString("\n")
		sb.WriteString(m.styles.Number.Render("Press Enter to see another tool or 'q' to return to the main menu: "))
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(" Tools "))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Number.Render("Select a tool to see which actors are known to use it:"))
	sb.WriteString("\n")
	sb.WriteString(renderFilterBar(m.styles, m.filterInput, m.filterFocused, m.width))
	sb.WriteString("\n")
	sb.WriteString(m.listView.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("Showing %d of %d tools", len(m.filtered), len(m.tools))))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Number.Render("Enter the number of the Tool: "))
	sb.WriteString(m.styles.Bold.Render(m.numberBuf))
	return sb.String()
}

func (m *ToolsPage) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	if query == "" {
		m.filtered = m.tools
	} else {
		var out []attack.Tool
		for _, t := range m.tools {
			if strings.Contains(strings.ToLower(t.Name), query) ||
				strings.Contains(strings.ToLower(t.AttackID), query) {
				out = append(out, t)
			}
		}
		m.filtered = out
	}
	m.numberBuf = ""
	m.rerender()
}

func (m *ToolsPage) rerender() {
	width := m.width - 2
	if width < minColumnWidth {
		width = minColumnWidth
	}
	m.listView.SetContent(RenderToolColumns(m.filtered, width, m.styles))
}
