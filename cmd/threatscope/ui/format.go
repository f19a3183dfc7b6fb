package ui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
)

// citationPattern matches the bracketed citation markers and
// parenthesized asides that pepper ATT&CK descriptions.
var citationPattern = regexp.MustCompile(`\[.*?\]|\(.*?\)`)

// FormatTechniqueDescription prepares a description for the technique
// table: lines starting with "*" become bullet points, everything else
// is indented under the technique name.
func FormatTechniqueDescription(desc string, s Styles) string {
	lines := strings.Split(desc, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "*") {
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))
			out = append(out, s.Bullet.Render("•")+" "+rest)
			continue
		}
		out = append(out, "    "+line)
	}
	return strings.Join(out, "\n")
}

// FormatCitations styles the citation spans of a description and
// indents each line, the treatment the tool panel gives body text.
func FormatCitations(text string, s Styles) string {
	var sb strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("    ")
		last := 0
		for _, span := range citationPattern.FindAllStringIndex(line, -1) {
			if span[0] > last {
				sb.WriteString(s.Name.Render(line[last:span[0]]))
			}
			sb.WriteString(s.Citation.Render(line[span[0]:span[1]]))
			last = span[1]
		}
		if last < len(line) {
			sb.WriteString(s.Name.Render(line[last:]))
		}
	}
	return sb.String()
}

// NewMarkdownRenderer builds a glamour renderer for the theme at the
// given wrap width. A nil return is tolerated by SafeRenderMarkdown.
func NewMarkdownRenderer(theme Theme, wrap int) *glamour.TermRenderer {
	if wrap <= 0 {
		wrap = 80
	}
	var opts []glamour.TermRendererOption
	if theme.IsDark {
		opts = append(opts, glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
	} else {
		opts = append(opts, glamour.WithStylePath("light"), glamour.WithWordWrap(wrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	return r
}

// SafeRenderMarkdown renders markdown content, falling back to the raw
// text when the renderer is missing or fails.
func SafeRenderMarkdown(r *glamour.TermRenderer, content string) (result string) {
	// If glamour panics on malformed input, recover with plain text.
	defer func() {
		if rec := recover(); rec != nil {
			result = content
		}
	}()
	if r == nil || content == "" {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
