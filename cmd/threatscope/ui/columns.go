package ui

import (
	"fmt"
	"strings"

	"threatscope/internal/attack"
)

const (
	// DefaultMaxColumns caps how many category groups sit side by side
	// before the layout wraps into a second band.
	DefaultMaxColumns = 6

	columnGap      = 2
	minColumnWidth = 12
	toolsPerBlock  = 16
)

// RenderActorColumns lays grouped actors out as numbered columns, one
// group per column. Numbers run row-major across the groups of a band,
// matching the order cells appear on screen, and the returned slice
// lists the actors in that same numbering order so the Nth entry is the
// actor the user picks by typing N. Groups beyond maxCols wrap into
// additional bands below, with numbering continuing across bands.
//
// cursor is an index into the numbering order whose cell renders
// highlighted; pass -1 for no highlight.
func RenderActorColumns(groups []attack.ActorGroup, width, maxCols int, s Styles, watched func(string) bool, cursor int) (string, []attack.Actor) {
	if len(groups) == 0 {
		return "", nil
	}
	if maxCols <= 0 {
		maxCols = DefaultMaxColumns
	}
	if width <= 0 {
		width = 80
	}

	var (
		sb       strings.Builder
		selected []attack.Actor
		number   = 1
	)
	for start := 0; start < len(groups); start += maxCols {
		end := start + maxCols
		if end > len(groups) {
			end = len(groups)
		}
		if start > 0 {
			sb.WriteString("\n")
		}
		number = renderActorBand(&sb, groups[start:end], width, s, watched, cursor, number, &selected)
	}
	return sb.String(), selected
}

func renderActorBand(sb *strings.Builder, band []attack.ActorGroup, width int, s Styles, watched func(string) bool, cursor, number int, selected *[]attack.Actor) int {
	cols := len(band)
	colWidth := (width - columnGap*(cols-1)) / cols
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}
	gap := strings.Repeat(" ", columnGap)

	rows := 0
	cells := make([]string, cols)
	for i, g := range band {
		if len(g.Actors) > rows {
			rows = len(g.Actors)
		}
		label := truncate(g.Label, colWidth)
		cells[i] = padCell(s.GroupHeader.Render(label), runeLen(label), colWidth)
	}
	sb.WriteString(strings.TrimRight(strings.Join(cells, gap), " "))
	sb.WriteString("\n")

	for row := 0; row < rows; row++ {
		for i, g := range band {
			if row >= len(g.Actors) {
				cells[i] = strings.Repeat(" ", colWidth)
				continue
			}
			a := g.Actors[row]
			*selected = append(*selected, a)
			styled, plain := renderActorCell(a, number, colWidth, s, watched, number-1 == cursor)
			cells[i] = padCell(styled, plain, colWidth)
			number++
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, gap), " "))
		sb.WriteString("\n")
	}
	return number
}

// renderActorCell builds one "N. Name" cell and reports the plain rune
// width of its visible text, which the caller needs for padding because
// the styled string carries escape sequences.
func renderActorCell(a attack.Actor, number, colWidth int, s Styles, watched func(string) bool, highlighted bool) (string, int) {
	num := fmt.Sprintf("%d.", number)
	suffix := ""
	if a.Revoked {
		suffix = " (revoked)"
	}
	star := watched != nil && watched(a.Name)

	budget := colWidth - len(num) - 1 - len(suffix)
	if star {
		budget -= 2
	}
	name := truncate(a.Name, budget)

	plain := len(num) + 1 + runeLen(name) + len(suffix)
	if star {
		plain += 2
	}

	nameStyle := s.Body
	if a.Revoked {
		nameStyle = s.Revoked
	}
	if highlighted {
		nameStyle = s.MenuSelected
	}
	out := s.Number.Render(num) + " " + nameStyle.Render(name+suffix)
	if star {
		out += " " + s.WatchMark.Render("★")
	}
	return out, plain
}

// RenderToolColumns lays tools out as a numbered flowing list, sixteen
// to a block with a blank line between blocks. Numbering follows the
// input order, so the Nth tool is the one picked by typing N.
func RenderToolColumns(tools []attack.Tool, width int, s Styles) string {
	if len(tools) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	lineLen := 0
	for i, tool := range tools {
		num := fmt.Sprintf("%d.", i+1)
		plain := len(num) + 1 + runeLen(tool.Name)
		if lineLen > 0 {
			if lineLen+columnGap+plain > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString("  ")
				lineLen += columnGap
			}
		}
		sb.WriteString(s.Number.Render(num))
		sb.WriteString(" ")
		if tool.Revoked {
			sb.WriteString(s.Revoked.Render(tool.Name))
		} else {
			sb.WriteString(s.Platform.Render(tool.Name))
		}
		lineLen += plain
		if (i+1)%toolsPerBlock == 0 && i != len(tools)-1 {
			sb.WriteString("\n\n")
			lineLen = 0
		}
	}
	return sb.String()
}

func runeLen(text string) int {
	return len([]rune(text))
}

// truncate shortens text to max runes, marking the cut with an ellipsis.
func truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// padCell right-pads styled text to colWidth using its plain width.
func padCell(styled string, plainWidth, colWidth int) string {
	if pad := colWidth - plainWidth; pad > 0 {
		return styled + strings.Repeat(" ", pad)
	}
	return styled
}
