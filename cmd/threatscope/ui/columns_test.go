package ui

import (
	"fmt"
	"strings"
	"testing"

	"threatscope/internal/attack"
)

func regionActor(name, region string) attack.Actor {
	return attack.Actor{
		ID:     "intrusion-set--" + strings.ToLower(name),
		Name:   name,
		Region: region,
	}
}

func TestRenderActorColumnsNumberingOrder(t *testing.T) {
	actors := []attack.Actor{
		regionActor("Alpha", "Russia"),
		regionActor("Bravo", "Russia"),
		regionActor("Charlie", "Russia"),
		regionActor("Delta", "China"),
		regionActor("Echo", "Iran"),
		regionActor("Foxtrot", "Iran"),
	}
	groups := attack.GroupActors(actors, attack.CategoryRegion)
	s := NewStyles(DarkTheme())

	out, selection := RenderActorColumns(groups, 80, 6, s, nil, -1)
	if out == "" {
		t.Fatalf("expected rendered columns")
	}
	for _, label := range []string{"Russia", "China", "Iran"} {
		if !strings.Contains(out, label) {
			t.Fatalf("expected group header %q in output", label)
		}
	}

	// Numbers run row-major across the groups, so the selection list
	// walks the first row of every column before the second row.
	want := []string{"Alpha", "Delta", "Echo", "Bravo", "Foxtrot", "Charlie"}
	if len(selection) != len(want) {
		t.Fatalf("expected %d selectable actors, got %d", len(want), len(selection))
	}
	for i, name := range want {
		if selection[i].Name != name {
			t.Fatalf("selection[%d] = %q, want %q", i, selection[i].Name, name)
		}
	}
	for i := range want {
		if !strings.Contains(out, fmt.Sprintf("%d.", i+1)) {
			t.Fatalf("expected number %d in output", i+1)
		}
	}
}

func TestRenderActorColumnsBands(t *testing.T) {
	var actors []attack.Actor
	for i := 0; i < 8; i++ {
		actors = append(actors, regionActor(fmt.Sprintf("Actor%d", i), fmt.Sprintf("Region%d", i)))
	}
	groups := attack.GroupActors(actors, attack.CategoryRegion)
	s := NewStyles(DarkTheme())

	out, selection := RenderActorColumns(groups, 120, 3, s, nil, -1)
	if len(selection) != 8 {
		t.Fatalf("expected all 8 actors selectable across bands, got %d", len(selection))
	}
	for i := 0; i < 8; i++ {
		if !strings.Contains(out, fmt.Sprintf("Region%d", i)) {
			t.Fatalf("expected band to carry group Region%d", i)
		}
	}
	if !strings.Contains(out, "8.") {
		t.Fatalf("expected numbering to continue into the last band")
	}
}

func TestRenderActorColumnsMarks(t *testing.T) {
	actors := []attack.Actor{
		regionActor("Alpha", "Russia"),
		{ID: "intrusion-set--old", Name: "OldCrew", Region: "Russia", Revoked: true},
	}
	groups := attack.GroupActors(actors, attack.CategoryRegion)
	s := NewStyles(DarkTheme())

	out, _ := RenderActorColumns(groups, 80, 6, s, func(name string) bool {
		return name == "Alpha"
	}, -1)
	if !strings.Contains(out, "★") {
		t.Fatalf("expected watch mark for tracked actor")
	}
	if !strings.Contains(out, "(revoked)") {
		t.Fatalf("expected revoked marker")
	}
}

func TestRenderActorColumnsTruncates(t *testing.T) {
	actors := []attack.Actor{
		regionActor("An Extremely Long Threat Actor Name That Cannot Fit", "R1"),
		regionActor("Other", "R2"),
		regionActor("Third", "R3"),
	}
	groups := attack.GroupActors(actors, attack.CategoryRegion)
	s := NewStyles(DarkTheme())

	out, selection := RenderActorColumns(groups, 48, 6, s, nil, -1)
	if !strings.Contains(out, "…") {
		t.Fatalf("expected truncated name to carry an ellipsis")
	}
	if selection[0].Name != "An Extremely Long Threat Actor Name That Cannot Fit" {
		t.Fatalf("expected selection to keep the full name")
	}
}

func TestRenderToolColumnsBlocks(t *testing.T) {
	var tools []attack.Tool
	for i := 1; i <= 18; i++ {
		tools = append(tools, attack.Tool{Name: fmt.Sprintf("Tool%02d", i)})
	}
	s := NewStyles(DarkTheme())

	out := RenderToolColumns(tools, 400, s)
	blocks := strings.Split(out, "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("expected a block break after the 16th tool, got %d blocks", len(blocks))
	}
	if !strings.Contains(blocks[1], "17.") {
		t.Fatalf("expected the 17th tool to open the second block")
	}
	if RenderToolColumns(nil, 80, s) != "" {
		t.Fatalf("expected empty output for no tools")
	}
}

func TestRenderToolColumnsWraps(t *testing.T) {
	tools := []attack.Tool{
		{Name: "Mimikatz"},
		{Name: "Cobalt Strike"},
		{Name: "PsExec"},
	}
	s := NewStyles(DarkTheme())

	out := RenderToolColumns(tools, 20, s)
	if !strings.Contains(out, "\n") {
		t.Fatalf("expected soft wrap at narrow width")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected no-op truncate, got %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("expected rune truncation with ellipsis, got %q", got)
	}
	if got := truncate("abc", 0); got != "" {
		t.Fatalf("expected empty result for zero budget, got %q", got)
	}
}
