package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

// renderFilterBar draws the boxed filter input shared by the list
// pages. The border brightens while the input holds focus.
func renderFilterBar(s Styles, input textinput.Model, focused bool, width int) string {
	border := s.Theme.Border
	if focused {
		border = s.Theme.Primary
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
	if width > 4 {
		box = box.Width(width - 2)
	}
	return box.Render(input.View())
}

func newFilterInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 64
	ti.Width = 40
	return ti
}
