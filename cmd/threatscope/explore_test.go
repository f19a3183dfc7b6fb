package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"threatscope/internal/attack"
	"threatscope/internal/config"
	"threatscope/internal/kb"
	"threatscope/internal/stix"
	"threatscope/internal/store"
	"threatscope/internal/watchlist"
)

func testEnv(t *testing.T) *appEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	st, err := store.Open(filepath.Join(root, "cache.db"), cfg.Cache.KeepSnapshots)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &appEnv{cfg: cfg, root: root, store: st}
}

// explorerObjects builds a bundle with two actors, one tool, and two
// techniques. Crimson Fox carries all the relationships; Amber Howl
// has none.
func explorerObjects() []stix.Object {
	return []stix.Object{
		{
			Type: stix.TypeIntrusionSet, ID: "intrusion-set--fox", Name: "Crimson Fox",
			Description: "Espionage group tied to Russia targeting government networks.",
			ExternalReferences: []stix.ExternalReference{
				{SourceName: "mitre-attack", ExternalID: "G0101"},
			},
		},
		{
			Type: stix.TypeIntrusionSet, ID: "intrusion-set--howl", Name: "Amber Howl",
			Description: "Financially motivated ransomware operators.",
		},
		{
			Type: stix.TypeTool, ID: "tool--probe", Name: "NetProbe",
			Description: "A network scanner staged before lateral movement.",
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
			Description: "Dumping credentials from memory.",
			KillChainPhases: []stix.KillChainPhase{
				{KillChainName: "mitre-attack", PhaseName: "credential-access"},
			},
		},
		{Type: stix.TypeRelationship, ID: "relationship--1", RelationshipType: "uses",
			SourceRef: "intrusion-set--fox", TargetRef: "attack-pattern--phish"},
		{Type: stix.TypeRelationship, ID: "relationship--2", RelationshipType: "uses",
			SourceRef: "intrusion-set--fox", TargetRef: "attack-pattern--dump"},
		{Type: stix.TypeRelationship, ID: "relationship--3", RelationshipType: "uses",
			SourceRef: "intrusion-set--fox", TargetRef: "tool--probe"},
		{Type: stix.TypeRelationship, ID: "relationship--4", RelationshipType: "uses",
			SourceRef: "tool--probe", TargetRef: "attack-pattern--phish"},
	}
}

func explorerCatalog() *attack.Catalog {
	return attack.NewCatalog(attack.Source{Domain: "enterprise-attack", Objects: explorerObjects()})
}

func applyMsg(t *testing.T, m explorerModel, msg tea.Msg) explorerModel {
	t.Helper()
	model, _ := m.Update(msg)
	next, ok := model.(explorerModel)
	if !ok {
		t.Fatalf("Update returned %T, want explorerModel", model)
	}
	return next
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// readyExplorer returns a model sized to 120x40 with the catalog
// injected, sitting on the main menu.
func readyExplorer(t *testing.T, env *appEnv, wl *watchlist.Watchlist) explorerModel {
	t.Helper()
	m := newExplorer(context.Background(), env, wl, nil)
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = applyMsg(t, m, catalogMsg{catalog: explorerCatalog()})
	return m
}

func TestExplorerStartupSequence(t *testing.T) {
	env := testEnv(t)
	m := newExplorer(context.Background(), env, nil, nil)

	if v := m.View(); v != "Initializing..." {
		t.Fatalf("pre-size view = %q", v)
	}

	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if v := m.View(); !strings.Contains(v, "Fetching data from MITRE ATT&CK...") {
		t.Fatalf("loading view missing spinner text:\n%s", v)
	}

	m = applyMsg(t, m, catalogMsg{catalog: explorerCatalog()})
	v := m.View()
	for _, want := range []string{"Threat Scope", "SELECT AN OPTION", "Threat Actors", "Tools", "Watchlist", "Status", "Exit"} {
		if !strings.Contains(v, want) {
			t.Errorf("menu view missing %q", want)
		}
	}
	if !strings.Contains(v, "2 actors  1 tools  2 techniques") {
		t.Errorf("menu view missing catalog stats:\n%s", v)
	}
}

func TestExplorerFatalError(t *testing.T) {
	env := testEnv(t)
	m := newExplorer(context.Background(), env, nil, nil)
	m = applyMsg(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = applyMsg(t, m, catalogErrMsg{errors.New("connection refused")})

	v := m.View()
	if !strings.Contains(v, "Error fetching MITRE ATT&CK content: connection refused") {
		t.Errorf("error view missing cause:\n%s", v)
	}
	if !strings.Contains(v, "Failed to load attack STIX content.") {
		t.Errorf("error view missing load failure line:\n%s", v)
	}

	model, cmd := m.Update(keyRune('x'))
	if _, ok := model.(explorerModel); !ok {
		t.Fatalf("Update returned %T", model)
	}
	if cmd == nil {
		t.Fatal("any key on the error screen should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected quit, got %T", cmd())
	}
}

func TestExplorerActorSelection(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v := m.View()
	if !strings.Contains(v, "Geographical Region") || !strings.Contains(v, "Back to Main Menu") {
		t.Fatalf("category view wrong:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v = m.View()
	if !strings.Contains(v, "Threat Actors by Geographical Region") {
		t.Fatalf("actors view missing header:\n%s", v)
	}
	if !strings.Contains(v, "Enter the number of the Threat Actor: ") {
		t.Fatalf("actors view missing prompt:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('2'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v = m.View()
	if !strings.Contains(v, "Techniques for Crimson Fox - Total Techniques: 2") {
		t.Fatalf("techniques view wrong:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if v := m.View(); !strings.Contains(v, "Enter the number of the Threat Actor: ") {
		t.Errorf("esc should return to the actor list:\n%s", v)
	}
}

func TestExplorerActorErrors(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = applyMsg(t, m, keyRune('9'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if v := m.View(); !strings.Contains(v, "Invalid choice. Please enter a valid number.") {
		t.Errorf("out-of-range number should report invalid choice:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('1'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if v := m.View(); !strings.Contains(v, "No techniques found for the selected actor: Amber Howl.") {
		t.Errorf("actor without techniques should say so:\n%s", v)
	}
}

func TestExplorerTechniqueDetailAndReference(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('2'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = applyMsg(t, m, keyRune('x'))
	if v := m.View(); !strings.Contains(v, "open a technique detail") {
		t.Errorf("reference fetch outside the detail view should hint:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.techPage.DetailOpen() {
		t.Fatal("enter on a highlighted row should open the detail")
	}

	m = applyMsg(t, m, referenceMsg{content: "ReferencePayload"})
	if v := m.View(); !strings.Contains(v, "ReferencePayload") {
		t.Errorf("fetched reference should append to the detail:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.techPage.DetailOpen() {
		t.Error("esc should close the detail first")
	}
	if v := m.View(); !strings.Contains(v, "Techniques for Crimson Fox") {
		t.Errorf("closing the detail should land on the table:\n%s", v)
	}
}

func TestExplorerOverlapScreen(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	engine, err := kb.NewEngine(kb.DefaultConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	m = applyMsg(t, m, kbMsg{engine})

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('2'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = applyMsg(t, m, overlapMsg{
		actor: "Crimson Fox",
		overlaps: []kb.Overlap{
			{ActorID: "intrusion-set--howl", ActorName: "Amber Howl", SharedTechniques: 3, SharedTools: 1},
		},
	})
	v := m.View()
	if !strings.Contains(v, "Shared Tradecraft: Crimson Fox") {
		t.Fatalf("overlap view missing header:\n%s", v)
	}
	if !strings.Contains(v, "Amber Howl") || !strings.Contains(v, "4") {
		t.Errorf("overlap view missing row data:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if v := m.View(); !strings.Contains(v, "Techniques for Crimson Fox") {
		t.Errorf("esc should return to the techniques table:\n%s", v)
	}
}

func TestExplorerToolsPanel(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v := m.View()
	if !strings.Contains(v, "Select a tool to see which actors are known to use it:") {
		t.Fatalf("tools view missing prompt:\n%s", v)
	}
	if !strings.Contains(v, "NetProbe") {
		t.Fatalf("tools view missing tool:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('1'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v = m.View()
	if !strings.Contains(v, "Tool: NetProbe") {
		t.Fatalf("panel view missing header:\n%s", v)
	}
	if !strings.Contains(v, "Correlated Actors:") || !strings.Contains(v, "Crimson Fox") {
		t.Errorf("panel view missing correlated actors:\n%s", v)
	}
	if !strings.Contains(v, "Press Enter to see another tool or 'q' to return to the main menu: ") {
		t.Errorf("panel view missing footer prompt:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if v := m.View(); !strings.Contains(v, "Enter the number of the Tool: ") {
		t.Errorf("enter should return to the tool list:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if v := m.View(); !strings.Contains(v, "SELECT AN OPTION") {
		t.Errorf("esc should return to the menu:\n%s", v)
	}
}

func TestExplorerWatchToggle(t *testing.T) {
	env := testEnv(t)
	wl, err := watchlist.Load(filepath.Join(env.root, "watchlist.yaml"))
	if err != nil {
		t.Fatalf("load watchlist: %v", err)
	}
	m := readyExplorer(t, env, wl)

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = applyMsg(t, m, keyRune('w'))

	if !wl.Contains("Amber Howl") {
		t.Fatal("w should add the highlighted actor to the watchlist")
	}
	if v := m.View(); !strings.Contains(v, "added Amber Howl to the watchlist") {
		t.Errorf("toggle should confirm in the footer:\n%s", v)
	}
	if v := m.View(); !strings.Contains(v, "★") {
		t.Errorf("watched actor should carry a star:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('w'))
	if wl.Contains("Amber Howl") {
		t.Error("second toggle should remove the actor")
	}
}

func TestExplorerWatchScreen(t *testing.T) {
	env := testEnv(t)
	wl, err := watchlist.Load(filepath.Join(env.root, "watchlist.yaml"))
	if err != nil {
		t.Fatalf("load watchlist: %v", err)
	}
	m := readyExplorer(t, env, wl)

	// Visit an actor so the watch screen has a last selection to add.
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('2'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = applyMsg(t, m, keyRune('q'))
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if v := m.View(); !strings.Contains(v, "Nothing tracked yet.") {
		t.Fatalf("empty watchlist view wrong:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('a'))
	v := m.View()
	if !strings.Contains(v, "Crimson Fox") {
		t.Fatalf("a should add the last selected actor:\n%s", v)
	}
	if !wl.Contains("Crimson Fox") {
		t.Error("watchlist should persist the added actor")
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = applyMsg(t, m, keyRune('d'))
	if wl.Contains("Crimson Fox") {
		t.Error("d should remove the highlighted entry")
	}
}

func TestExplorerStatusScreen(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	for i := 0; i < 3; i++ {
		m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	v := m.View()
	if !strings.Contains(v, "No snapshots cached yet. Run threatscope update.") {
		t.Fatalf("empty cache status wrong:\n%s", v)
	}
	if !strings.Contains(v, "2 actors, 1 tools, 2 techniques") {
		t.Errorf("status should summarize the catalog:\n%s", v)
	}

	m = applyMsg(t, m, keyRune('r'))
	if v := m.View(); !strings.Contains(v, "Refreshing ATT&CK data...") {
		t.Fatalf("r should start a refresh:\n%s", v)
	}

	m = applyMsg(t, m, refreshErrMsg{errors.New("dial tcp: timeout")})
	v = m.View()
	if !strings.Contains(v, "refresh failed: dial tcp: timeout") {
		t.Errorf("failed refresh should surface in the footer:\n%s", v)
	}
	if !strings.Contains(v, "2 actors, 1 tools, 2 techniques") {
		t.Errorf("failed refresh must keep the loaded catalog:\n%s", v)
	}

	m = applyMsg(t, m, catalogMsg{catalog: explorerCatalog(), refreshed: true})
	if v := m.View(); !strings.Contains(v, "ATT&CK data refreshed") {
		t.Errorf("completed refresh should confirm in the footer:\n%s", v)
	}

	m = applyMsg(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if v := m.View(); !strings.Contains(v, "SELECT AN OPTION") {
		t.Errorf("esc should return to the menu:\n%s", v)
	}
}

func TestExplorerHelpToggle(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	m = applyMsg(t, m, keyRune('?'))
	if v := m.View(); !strings.Contains(v, "toggle this help") {
		t.Fatalf("help view missing:\n%s", v)
	}
	m = applyMsg(t, m, keyRune('?'))
	if v := m.View(); !strings.Contains(v, "SELECT AN OPTION") {
		t.Errorf("second ? should close help:\n%s", v)
	}
}

func TestExplorerKBErrorInFooter(t *testing.T) {
	env := testEnv(t)
	m := readyExplorer(t, env, nil)

	m = applyMsg(t, m, kbErrMsg{errors.New("load failed")})
	if v := m.View(); !strings.Contains(v, "overlap analysis unavailable: load failed") {
		t.Errorf("kb failure should surface in the footer:\n%s", v)
	}
}
