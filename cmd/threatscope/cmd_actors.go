package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"threatscope/cmd/threatscope/ui"
	"threatscope/internal/attack"
	"threatscope/internal/logging"
	"threatscope/internal/watchlist"
)

// listRenderWidth is the layout width for non-interactive listings,
// where no terminal size negotiation happens.
const listRenderWidth = 120

var (
	actorsCategory string
	actorsJSON     bool
)

var actorsCmd = &cobra.Command{
	Use:   "actors",
	Short: "List threat actors grouped by category",
	Long: `Actors prints every threat actor in the cached ATT&CK data, grouped
by geographical region, activity type, or target sector. Actors on the
watchlist are marked with a star.`,
	RunE: runActors,
}

func init() {
	actorsCmd.Flags().StringVar(&actorsCategory, "category", "region",
		"grouping axis: region, activity, or sector")
	actorsCmd.Flags().BoolVar(&actorsJSON, "json", false, "emit JSON instead of columns")
}

func parseCategory(name string) (attack.Category, error) {
	switch name {
	case "region":
		return attack.CategoryRegion, nil
	case "activity":
		return attack.CategoryActivity, nil
	case "sector":
		return attack.CategorySector, nil
	}
	return "", fmt.Errorf("unknown category: %s (valid: region, activity, sector)", name)
}

func runActors(cmd *cobra.Command, args []string) error {
	cat, err := parseCategory(actorsCategory)
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	catalog, err := env.loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	groups := attack.GroupActors(catalog.Actors(), cat)

	if actorsJSON {
		return writeActorsJSON(groups)
	}

	wl, err := watchlist.Load(env.cfg.WatchlistPath(env.root))
	if err != nil {
		logging.Watchlist("load failed: %v", err)
	}
	watched := func(name string) bool { return wl != nil && wl.Contains(name) }

	s := ui.DefaultStyles()
	fmt.Println(s.Title.Render(fmt.Sprintf("Threat Actors by %s", cat.Title())))
	fmt.Println()
	out, _ := ui.RenderActorColumns(groups, listRenderWidth, env.cfg.Display.MaxColumns, s, watched, -1)
	fmt.Println(out)
	return nil
}

type actorJSON struct {
	Name     string `json:"name"`
	AttackID string `json:"attack_id,omitempty"`
	Region   string `json:"region,omitempty"`
	Activity string `json:"activity,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Revoked  bool   `json:"revoked,omitempty"`
}

type actorGroupJSON struct {
	Label  string      `json:"label"`
	Actors []actorJSON `json:"actors"`
}

func writeActorsJSON(groups []attack.ActorGroup) error {
	out := make([]actorGroupJSON, 0, len(groups))
	for _, g := range groups {
		entry := actorGroupJSON{Label: g.Label, Actors: make([]actorJSON, 0, len(g.Actors))}
		for _, a := range g.Actors {
			entry.Actors = append(entry.Actors, actorJSON{
				Name:     a.Name,
				AttackID: a.AttackID,
				Region:   a.Region,
				Activity: a.Activity,
				Sector:   a.Sector,
				Domain:   a.Domain,
				Revoked:  a.Revoked,
			})
		}
		out = append(out, entry)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
