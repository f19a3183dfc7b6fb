package kb

import (
	"context"
	"strings"
	"testing"
	"time"

	"threatscope/internal/attack"
	"threatscope/internal/stix"
)

// testCatalog builds a small catalog with known overlaps: Zeta Group and
// Moon Spider share two techniques and a tool, Quiet Lynx shares one
// technique with each of them.
func testCatalog() *attack.Catalog {
	objects := []stix.Object{
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--a1", Name: "Zeta Group"},
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--a2", Name: "Moon Spider"},
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--a3", Name: "Quiet Lynx"},
		{Type: stix.TypeAttackPattern, ID: "attack-pattern--t1", Name: "Spearphishing Link"},
		{Type: stix.TypeAttackPattern, ID: "attack-pattern--t2", Name: "Credential Dumping"},
		{Type: stix.TypeTool, ID: "tool--s1", Name: "NetCrawler"},
		{Type: stix.TypeRelationship, ID: "relationship--r1", SourceRef: "intrusion-set--a1", TargetRef: "attack-pattern--t1"},
		{Type: stix.TypeRelationship, ID: "relationship--r2", SourceRef: "intrusion-set--a1", TargetRef: "attack-pattern--t2"},
		{Type: stix.TypeRelationship, ID: "relationship--r3", SourceRef: "intrusion-set--a2", TargetRef: "attack-pattern--t1"},
		{Type: stix.TypeRelationship, ID: "relationship--r4", SourceRef: "intrusion-set--a2", TargetRef: "attack-pattern--t2"},
		{Type: stix.TypeRelationship, ID: "relationship--r5", SourceRef: "intrusion-set--a3", TargetRef: "attack-pattern--t2"},
		{Type: stix.TypeRelationship, ID: "relationship--r6", SourceRef: "intrusion-set--a1", TargetRef: "tool--s1"},
		{Type: stix.TypeRelationship, ID: "relationship--r7", SourceRef: "intrusion-set--a2", TargetRef: "tool--s1"},
		{Type: stix.TypeRelationship, ID: "relationship--r8", SourceRef: "tool--s1", TargetRef: "attack-pattern--t2"},
		// Mitigation edge; not a uses fact.
		{Type: stix.TypeRelationship, ID: "relationship--r9", SourceRef: "course-of-action--m1", TargetRef: "attack-pattern--t1"},
	}
	return attack.NewCatalog(attack.Source{Domain: "enterprise-attack", Objects: objects})
}

func loadedEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Load(testCatalog()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return engine
}

func TestNewEngine_Empty(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	stats := engine.GetStats()
	if stats.TotalFacts != 0 {
		t.Errorf("empty engine reports %d facts", stats.TotalFacts)
	}
	if !stats.LastLoad.IsZero() {
		t.Errorf("empty engine reports a load time: %v", stats.LastLoad)
	}
}

func TestLoad_Stats(t *testing.T) {
	engine := loadedEngine(t)

	stats := engine.GetStats()
	want := map[string]int{
		"actor":            3,
		"adversary_tool":   1,
		"technique":        2,
		"uses":             8,
		"actor_technique":  5,
		"actor_tool":       2,
		"tool_technique":   1,
		"shared_technique": 13,
		"shared_tool":      4,
	}
	for pred, n := range want {
		if got := stats.PredicateCounts[pred]; got != n {
			t.Errorf("PredicateCounts[%s] = %d, want %d", pred, got, n)
		}
	}
	if stats.TotalFacts < 14 {
		t.Errorf("TotalFacts = %d, want at least the 14 base facts", stats.TotalFacts)
	}
	if stats.LastLoad.IsZero() {
		t.Error("LastLoad not recorded")
	}
}

func TestLoad_ReplacesPreviousFacts(t *testing.T) {
	engine := loadedEngine(t)

	small := attack.NewCatalog(attack.Source{
		Domain: "enterprise-attack",
		Objects: []stix.Object{
			{Type: stix.TypeIntrusionSet, ID: "intrusion-set--b1", Name: "Lone Wolf"},
		},
	})
	if err := engine.Load(small); err != nil {
		t.Fatalf("second Load: %v", err)
	}

	stats := engine.GetStats()
	if got := stats.PredicateCounts["actor"]; got != 1 {
		t.Errorf("actor count after reload = %d, want 1", got)
	}
	if got := stats.PredicateCounts["uses"]; got != 0 {
		t.Errorf("uses count after reload = %d, want 0", got)
	}
}

func TestLoad_FactLimit(t *testing.T) {
	engine, err := NewEngine(Config{FactLimit: 3, QueryTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	err = engine.Load(testCatalog())
	if err == nil {
		t.Fatal("Load under a fact limit of 3 should fail")
	}
	if !strings.Contains(err.Error(), "fact limit exceeded: 3") {
		t.Errorf("error should name the limit, got: %v", err)
	}

	if got := engine.GetStats().TotalFacts; got != 0 {
		t.Errorf("failed load left %d facts behind", got)
	}
}

func TestOverlaps(t *testing.T) {
	engine := loadedEngine(t)

	ctx := context.Background()
	overlaps, err := engine.Overlaps(ctx, "intrusion-set--a1")
	if err != nil {
		t.Fatalf("Overlaps: %v", err)
	}

	if len(overlaps) != 2 {
		t.Fatalf("expected 2 overlapping actors, got %d: %v", len(overlaps), overlaps)
	}

	first := overlaps[0]
	if first.ActorID != "intrusion-set--a2" || first.ActorName != "Moon Spider" {
		t.Errorf("first overlap = %+v, want Moon Spider", first)
	}
	if first.SharedTechniques != 2 || first.SharedTools != 1 {
		t.Errorf("Moon Spider counts = %d techniques, %d tools; want 2, 1", first.SharedTechniques, first.SharedTools)
	}

	second := overlaps[1]
	if second.ActorID != "intrusion-set--a3" || second.SharedTechniques != 1 || second.SharedTools != 0 {
		t.Errorf("second overlap = %+v, want Quiet Lynx with 1 shared technique", second)
	}
}

func TestOverlaps_ExcludesSelf(t *testing.T) {
	engine := loadedEngine(t)

	overlaps, err := engine.Overlaps(context.Background(), "intrusion-set--a1")
	if err != nil {
		t.Fatalf("Overlaps: %v", err)
	}
	for _, o := range overlaps {
		if o.ActorID == "intrusion-set--a1" {
			t.Errorf("overlap list contains the queried actor itself: %+v", o)
		}
	}
}

func TestOverlaps_TieBreaksOnName(t *testing.T) {
	engine := loadedEngine(t)

	// Quiet Lynx shares one technique with each of the other two actors.
	overlaps, err := engine.Overlaps(context.Background(), "intrusion-set--a3")
	if err != nil {
		t.Fatalf("Overlaps: %v", err)
	}
	if len(overlaps) != 2 {
		t.Fatalf("expected 2 overlaps, got %d", len(overlaps))
	}
	if overlaps[0].ActorName != "Moon Spider" || overlaps[1].ActorName != "Zeta Group" {
		t.Errorf("tie not broken by name: got %q then %q", overlaps[0].ActorName, overlaps[1].ActorName)
	}
}

func TestOverlaps_UnknownActor(t *testing.T) {
	engine := loadedEngine(t)

	overlaps, err := engine.Overlaps(context.Background(), "intrusion-set--missing")
	if err != nil {
		t.Fatalf("Overlaps on unknown actor should not error: %v", err)
	}
	if len(overlaps) != 0 {
		t.Errorf("expected empty result, got %v", overlaps)
	}
}

func TestQuery_DerivedPredicate(t *testing.T) {
	engine := loadedEngine(t)

	result, err := engine.Query(context.Background(), "actor_technique(A, T)")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Bindings) != 5 {
		t.Fatalf("expected 5 actor_technique rows, got %d", len(result.Bindings))
	}
	for _, row := range result.Bindings {
		if _, ok := row["A"].(string); !ok {
			t.Errorf("row missing string binding for A: %v", row)
		}
		if _, ok := row["T"].(string); !ok {
			t.Errorf("row missing string binding for T: %v", row)
		}
	}
}

func TestQuery_ToleratesPromptSyntax(t *testing.T) {
	engine := loadedEngine(t)

	result, err := engine.Query(context.Background(), "?actor(ID, Name).")
	if err != nil {
		t.Fatalf("Query with ? prefix and trailing period: %v", err)
	}
	if len(result.Bindings) != 3 {
		t.Errorf("expected 3 actors, got %d", len(result.Bindings))
	}
}

func TestQuery_UndeclaredPredicate(t *testing.T) {
	engine := loadedEngine(t)

	_, err := engine.Query(context.Background(), "ghost(X)")
	if err == nil || !strings.Contains(err.Error(), "is not declared") {
		t.Errorf("expected undeclared predicate error, got: %v", err)
	}
}

func TestQuery_Empty(t *testing.T) {
	engine := loadedEngine(t)

	if _, err := engine.Query(context.Background(), "   "); err == nil {
		t.Error("blank query should fail")
	}
}

func TestGetFacts(t *testing.T) {
	engine := loadedEngine(t)

	facts, err := engine.GetFacts("actor")
	if err != nil {
		t.Fatalf("GetFacts: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 actor facts, got %d", len(facts))
	}

	seen := make(map[string]bool)
	for _, f := range facts {
		if len(f.Args) != 2 {
			t.Fatalf("actor fact has %d args: %v", len(f.Args), f)
		}
		name, _ := f.Args[1].(string)
		seen[name] = true
	}
	for _, name := range []string{"Zeta Group", "Moon Spider", "Quiet Lynx"} {
		if !seen[name] {
			t.Errorf("actor %q missing from facts", name)
		}
	}

	if _, err := engine.GetFacts("ghost"); err == nil {
		t.Error("GetFacts on undeclared predicate should fail")
	}
}

func TestFactString(t *testing.T) {
	f := Fact{Predicate: "actor", Args: []interface{}{"intrusion-set--a1", "Zeta Group"}}
	got := f.String()
	want := `actor("intrusion-set--a1", "Zeta Group").`
	if got != want {
		t.Errorf("Fact.String() = %q, want %q", got, want)
	}

	n := Fact{Predicate: "status", Args: []interface{}{"/active"}}
	if n.String() != "status(/active)." {
		t.Errorf("name constant rendering = %q", n.String())
	}
}

func TestUsesEdge(t *testing.T) {
	tests := []struct {
		source string
		target string
		want   bool
	}{
		{"intrusion-set--a1", "attack-pattern--t1", true},
		{"intrusion-set--a1", "tool--s1", true},
		{"tool--s1", "attack-pattern--t1", true},
		{"course-of-action--m1", "attack-pattern--t1", false},
		{"intrusion-set--a1", "malware--m2", false},
		{"tool--s1", "intrusion-set--a1", false},
		{"attack-pattern--t1", "attack-pattern--t2", false},
	}
	for _, tt := range tests {
		if got := usesEdge(tt.source, tt.target); got != tt.want {
			t.Errorf("usesEdge(%s, %s) = %v, want %v", tt.source, tt.target, got, tt.want)
		}
	}
}
