package attack

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"threatscope/internal/stix"
)

func testObjects() []stix.Object {
	return []stix.Object{
		{
			Type: stix.TypeIntrusionSet, ID: "intrusion-set--zeta", Name: "Zeta Group",
			Description: "Espionage group tied to Russia targeting government networks.",
			ExternalReferences: []stix.ExternalReference{
				{SourceName: "mitre-attack", ExternalID: "G0900"},
			},
		},
		{
			Type: stix.TypeIntrusionSet, ID: "intrusion-set--alpha", Name: "Alpha Crew",
			Description: "Financially motivated ransomware operators.",
		},
		{
			Type: stix.TypeTool, ID: "tool--net", Name: "NetSweep",
			Description: "A scanner used during\nlateral movement.",
		},
		{
			Type: stix.TypeTool, ID: "tool--bare", Name: "BareTool",
		},
		{
			Type: stix.TypeAttackPattern, ID: "attack-pattern--phish", Name: "Spearphishing",
			Platforms: []string{"Windows", "Linux"},
			KillChainPhases: []stix.KillChainPhase{
				{KillChainName: "mitre-attack", PhaseName: "initial-access"},
			},
		},
		{
			Type: stix.TypeAttackPattern, ID: "attack-pattern--dump", Name: "Credential Dumping",
			Description: "Dumping credentials\nfrom memory.",
			KillChainPhases: []stix.KillChainPhase{
				{KillChainName: "mitre-attack", PhaseName: "credential-access"},
			},
		},
		{Type: stix.TypeRelationship, ID: "relationship--1", RelationshipType: "uses",
			SourceRef: "intrusion-set--zeta", TargetRef: "attack-pattern--dump"},
		{Type: stix.TypeRelationship, ID: "relationship--2", RelationshipType: "uses",
			SourceRef: "intrusion-set--zeta", TargetRef: "attack-pattern--phish"},
		{Type: stix.TypeRelationship, ID: "relationship--3", RelationshipType: "uses",
			SourceRef: "intrusion-set--zeta", TargetRef: "tool--net"},
		{Type: stix.TypeRelationship, ID: "relationship--4", RelationshipType: "uses",
			SourceRef: "tool--net", TargetRef: "attack-pattern--phish"},
		{Type: stix.TypeRelationship, ID: "relationship--5", RelationshipType: "uses",
			SourceRef: "tool--net", TargetRef: "attack-pattern--dump"},
		{Type: stix.TypeRelationship, ID: "relationship--6", RelationshipType: "uses",
			SourceRef: "intrusion-set--zeta", TargetRef: "attack-pattern--missing"},
	}
}

func testCatalog() *Catalog {
	return NewCatalog(Source{Domain: "enterprise-attack", Objects: testObjects()})
}

func TestActorsSortedAndClassified(t *testing.T) {
	c := testCatalog()
	actors := c.Actors()
	if len(actors) != 2 {
		t.Fatalf("expected 2 actors, got %d", len(actors))
	}
	if actors[0].Name != "Alpha Crew" || actors[1].Name != "Zeta Group" {
		t.Errorf("actors not sorted by name: %s, %s", actors[0].Name, actors[1].Name)
	}

	zeta := actors[1]
	if zeta.Region != "Russia" || zeta.Activity != "Espionage" || zeta.Sector != "Government" {
		t.Errorf("zeta classification = %s/%s/%s", zeta.Region, zeta.Activity, zeta.Sector)
	}
	if zeta.AttackID != "G0900" {
		t.Errorf("zeta AttackID = %q", zeta.AttackID)
	}

	alpha := actors[0]
	if alpha.Region != "Unknown" || alpha.Activity != "Financial" || alpha.Sector != "Financial" {
		t.Errorf("alpha classification = %s/%s/%s", alpha.Region, alpha.Activity, alpha.Sector)
	}
}

func TestActorByName(t *testing.T) {
	c := testCatalog()
	a, ok := c.ActorByName("zeta group")
	if !ok || a.ID != "intrusion-set--zeta" {
		t.Fatalf("case-insensitive lookup failed: %+v, %v", a, ok)
	}
	if _, ok := c.ActorByName("nobody"); ok {
		t.Error("unknown actor should not resolve")
	}
}

func TestActorByNameFirstWins(t *testing.T) {
	objs := []stix.Object{
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--first", Name: "Twin"},
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--second", Name: "TWIN"},
	}
	c := NewCatalog(Source{Domain: "enterprise-attack", Objects: objs})
	a, ok := c.ActorByName("twin")
	if !ok || a.ID != "intrusion-set--first" {
		t.Errorf("expected first bundle occurrence, got %+v", a)
	}
}

func TestToolsKeepBundleOrder(t *testing.T) {
	c := testCatalog()
	tools := c.Tools()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name != "NetSweep" || tools[1].Name != "BareTool" {
		t.Errorf("tool order changed: %s, %s", tools[0].Name, tools[1].Name)
	}
	if tools[1].Description != noDescription {
		t.Errorf("missing description not defaulted: %q", tools[1].Description)
	}
}

func TestTechniquesForActor(t *testing.T) {
	c := testCatalog()
	techs := c.TechniquesForActor("intrusion-set--zeta")
	if len(techs) != 2 {
		t.Fatalf("expected 2 techniques, got %d", len(techs))
	}
	// Relationship order, not name order: dump first, then phish.
	if techs[0].Name != "Credential Dumping" || techs[1].Name != "Spearphishing" {
		t.Errorf("technique order = %s, %s", techs[0].Name, techs[1].Name)
	}
	if techs[0].Platforms != "N/A" {
		t.Errorf("missing platforms should read N/A, got %q", techs[0].Platforms)
	}
	if techs[1].Platforms != "Windows, Linux" {
		t.Errorf("platforms join = %q", techs[1].Platforms)
	}
	if techs[0].KillChain != "credential-access" {
		t.Errorf("kill chain = %q", techs[0].KillChain)
	}
	// Description stays multi-line for the actor view.
	if techs[0].Description != "Dumping credentials\nfrom memory." {
		t.Errorf("description altered: %q", techs[0].Description)
	}
}

func TestTechniquesForActorNoRelationships(t *testing.T) {
	c := testCatalog()
	if techs := c.TechniquesForActor("intrusion-set--alpha"); len(techs) != 0 {
		t.Errorf("expected no techniques, got %d", len(techs))
	}
}

func TestTechniquesForTool(t *testing.T) {
	c := testCatalog()
	techs := c.TechniquesForTool("tool--net")
	if len(techs) != 2 {
		t.Fatalf("expected 2 techniques, got %d", len(techs))
	}
	// Sorted by kill-chain string: credential-access before initial-access.
	if techs[0].KillChain != "credential-access" || techs[1].KillChain != "initial-access" {
		t.Errorf("kill-chain sort broken: %q, %q", techs[0].KillChain, techs[1].KillChain)
	}
	want := "Dumping credentials from memory. (ID: attack-pattern--dump)"
	if techs[0].Description != want {
		t.Errorf("description = %q, want %q", techs[0].Description, want)
	}
	// Spearphishing has no description; the default gets the suffix too.
	want = noDescription + " (ID: attack-pattern--phish)"
	if techs[1].Description != want {
		t.Errorf("description = %q, want %q", techs[1].Description, want)
	}
}

func TestActorsForTool(t *testing.T) {
	c := testCatalog()
	actors := c.ActorsForTool("tool--net")
	if len(actors) != 1 {
		t.Fatalf("expected 1 actor, got %d", len(actors))
	}
	if actors[0].Name != "Zeta Group" {
		t.Errorf("actor = %q", actors[0].Name)
	}
	wantPrefix := "Espionage group tied to Russia targeting government networks. (ID: intrusion-set--zeta)"
	if actors[0].Description != wantPrefix {
		t.Errorf("description = %q", actors[0].Description)
	}

	if refs := c.ActorsForTool("tool--bare"); len(refs) != 0 {
		t.Errorf("expected no actors for unused tool, got %d", len(refs))
	}
}

func TestGroupActors(t *testing.T) {
	actors := []Actor{
		{Name: "A", Region: "China"},
		{Name: "B", Region: "Unknown"},
		{Name: "C", Region: "China"},
		{Name: "D", Region: "Iran"},
	}
	groups := GroupActors(actors, CategoryRegion)
	want := []ActorGroup{
		{Label: "China", Actors: []Actor{{Name: "A", Region: "China"}, {Name: "C", Region: "China"}}},
		{Label: "Unknown", Actors: []Actor{{Name: "B", Region: "Unknown"}}},
		{Label: "Iran", Actors: []Actor{{Name: "D", Region: "Iran"}}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("GroupActors mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch(t *testing.T) {
	c := testCatalog()
	if got := c.SearchActors("zeta"); len(got) != 1 || got[0].Name != "Zeta Group" {
		t.Errorf("SearchActors(zeta) = %+v", got)
	}
	if got := c.SearchActors("G0900"); len(got) != 1 {
		t.Errorf("search by ATT&CK ID failed: %+v", got)
	}
	if got := c.SearchActors(""); len(got) != 2 {
		t.Errorf("empty query should return all actors, got %d", len(got))
	}
	if got := c.SearchTools("sweep"); len(got) != 1 || got[0].Name != "NetSweep" {
		t.Errorf("SearchTools(sweep) = %+v", got)
	}
}

func TestStats(t *testing.T) {
	c := testCatalog()
	stats := c.Stats()
	if stats.Actors != 2 || stats.Tools != 2 || stats.Techniques != 2 || stats.Relationships != 6 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByDomain["enterprise-attack"] != len(testObjects()) {
		t.Errorf("domain count = %d", stats.ByDomain["enterprise-attack"])
	}
}

func TestMultiDomainCatalog(t *testing.T) {
	ent := []stix.Object{
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--e", Name: "EntGroup"},
	}
	mob := []stix.Object{
		{Type: stix.TypeIntrusionSet, ID: "intrusion-set--m", Name: "MobGroup"},
	}
	c := NewCatalog(
		Source{Domain: "enterprise-attack", Objects: ent},
		Source{Domain: "mobile-attack", Objects: mob},
	)
	if len(c.Actors()) != 2 {
		t.Fatalf("expected actors from both domains, got %d", len(c.Actors()))
	}
	if c.Actors()[1].Domain != "mobile-attack" {
		t.Errorf("domain tag lost: %+v", c.Actors()[1])
	}
}
