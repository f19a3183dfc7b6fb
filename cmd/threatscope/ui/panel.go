package ui

import (
	"strings"

	"threatscope/internal/attack"
)

// RenderToolPanel renders the detail card for a tool: its description
// with citation spans highlighted, the techniques that deliver it
// grouped by kill chain phase, and the actors known to use it.
func RenderToolPanel(tool attack.Tool, techniques []attack.Technique, actors []attack.ActorRef, width int, s Styles) string {
	header := s.Title.Render(tool.Name)
	if tool.AttackID != "" {
		header += s.Muted.Render("  " + tool.AttackID)
	}
	content := []string{header, ""}

	desc := tool.Description
	if desc == "" {
		desc = "No description available"
	}
	content = append(content, FormatCitations(desc, s), "")

	sectionStyle := s.KillChain.Copy().Bold(true)
	content = append(content, sectionStyle.Render("Associated Techniques:"))
	if len(techniques) > 0 {
		phaseHeader := s.Citation.Copy().Bold(true)
		current := ""
		for _, tech := range techniques {
			if tech.KillChain != current {
				current = tech.KillChain
				content = append(content, "", phaseHeader.Render(current))
			}
			content = append(content,
				s.Name.Render("* Kill Chain:")+" "+s.Platform.Render(tech.KillChain),
				s.Name.Render("    Name:")+" "+s.Platform.Render(tech.Name),
				s.Name.Render("    Platform:")+" "+s.Platform.Render(tech.Platforms),
				s.Name.Render("    Description:")+" "+s.Platform.Render(tech.Description),
			)
		}
	} else {
		content = append(content, s.Error.Render("No techniques found for this tool."))
	}

	content = append(content, "", sectionStyle.Render("Correlated Actors:"))
	if len(actors) > 0 {
		for _, actor := range actors {
			content = append(content, s.KillChain.Render("* "+actor.Name+":")+" "+s.Platform.Copy().Bold(true).Render(actor.Description))
		}
	} else {
		content = append(content, s.Error.Render("No correlated actors found for this tool."))
	}

	panel := s.Panel.Copy()
	if width > 0 {
		panel = panel.Width(width)
	}
	return panel.Render(strings.Join(content, "\n"))
}
