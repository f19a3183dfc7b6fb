package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"threatscope/internal/attack"
)

// RenderTable renders a static table with content-sized columns: a
// styled header row, a rule, then the rows. Used for the status,
// overlap, and update summary views.
func RenderTable(s Styles, title string, headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cellText := range row {
			if i < len(widths) && lipgloss.Width(cellText) > widths[i] {
				widths[i] = lipgloss.Width(cellText)
			}
		}
	}

	headerStyle := s.TableHeader.Copy().Padding(0, 1)
	cellStyle := s.Body.Copy().Padding(0, 1)

	var sb strings.Builder
	if title != "" {
		sb.WriteString(s.Title.Render(title))
		sb.WriteString("\n")
	}
	total := 0
	for i, h := range headers {
		sb.WriteString(headerStyle.Width(widths[i] + 2).Render(h))
		total += widths[i] + 2
	}
	sb.WriteString("\n")
	sb.WriteString(s.Divider.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cellText := range row {
			if i < len(widths) {
				sb.WriteString(cellStyle.Width(widths[i] + 2).Render(cellText))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Technique table column widths. Description takes whatever remains.
const (
	numberColWidth    = 6
	nameColWidth      = 20
	platformColWidth  = 20
	killChainColWidth = 20
	minDescColWidth   = 30
)

// RenderTechniqueTable renders one page of an actor's techniques as a
// five-column table. Numbering starts at start+1 so it continues across
// pages, and highlight marks a row index within this page (-1 for
// none). Long descriptions wrap inside their column.
func RenderTechniqueTable(techs []attack.Technique, start, width int, s Styles, highlight int) string {
	if len(techs) == 0 {
		return ""
	}
	descWidth := width - numberColWidth - nameColWidth - platformColWidth - killChainColWidth
	if descWidth < minDescColWidth {
		descWidth = minDescColWidth
	}

	numStyle := s.Number.Copy().Width(numberColWidth)
	nameStyle := s.Name.Copy().Width(nameColWidth)
	platStyle := s.Platform.Copy().Width(platformColWidth)
	kcStyle := s.KillChain.Copy().Width(killChainColWidth)
	descStyle := s.Body.Copy().Width(descWidth)

	var sb strings.Builder
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		s.TableHeader.Copy().Width(numberColWidth).Render("No."),
		s.TableHeader.Copy().Width(nameColWidth).Render("Name"),
		s.TableHeader.Copy().Width(platformColWidth).Render("Platform"),
		s.TableHeader.Copy().Width(killChainColWidth).Render("Kill Chain Phase"),
		s.TableHeader.Copy().Width(descWidth).Render("Description"),
	))
	sb.WriteString("\n")
	sb.WriteString(s.Divider.Render(strings.Repeat("─", numberColWidth+nameColWidth+platformColWidth+killChainColWidth+descWidth)))
	sb.WriteString("\n")

	for i, t := range techs {
		number := fmt.Sprintf("%d", start+i+1)
		if i == highlight {
			number = "▶ " + number
		}
		name := t.Name
		if t.Revoked {
			name += " (revoked)"
		}
		ns := nameStyle
		if i == highlight {
			ns = s.MenuSelected.Copy().Width(nameColWidth)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			numStyle.Render(number),
			ns.Render(name),
			platStyle.Render(t.Platforms),
			kcStyle.Render(t.KillChain),
			descStyle.Render(FormatTechniqueDescription(t.Description, s)),
		))
		sb.WriteString("\n")
	}
	return sb.String()
}
