package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"threatscope/cmd/threatscope/ui"
	"threatscope/internal/kb"
	"threatscope/internal/logging"
	"threatscope/internal/watchlist"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache, catalog, and watchlist health",
	Long: `Status reports on local state only: which snapshots are cached per
domain and whether they are stale, the catalog and knowledge-base
counts derived from them, and the watchlist. It never touches the
network, so it is safe to run offline and exits 0 even when the cache
is stale.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	s := ui.DefaultStyles()

	counts, snaps, err := env.store.GetStats(ctx)
	if err != nil {
		return err
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots cached yet. Run threatscope update.")
		return nil
	}

	maxAge := env.cfg.GetCacheMaxAge()
	rows := make([][]string, 0, len(snaps))
	for _, snap := range snaps {
		freshness := "fresh"
		if snap.Age() > maxAge {
			freshness = "stale"
		}
		rows = append(rows, []string{
			string(snap.Domain),
			shortID(snap.ID),
			snap.FetchedAt.Format("2006-01-02 15:04"),
			strconv.Itoa(snap.ObjectCount),
			freshness,
		})
	}
	fmt.Print(ui.RenderTable(s, "Snapshots",
		[]string{"Domain", "ID", "Fetched", "Objects", "Freshness"}, rows))
	fmt.Println()
	fmt.Printf("Cache: %s (%s, %d snapshots, %d objects)\n",
		env.store.Path(), cacheFileSize(env.store.Path()), counts["snapshots"], counts["objects"])

	catalog, err := env.cachedCatalog(ctx)
	if err != nil {
		fmt.Printf("Catalog: unavailable (%v)\n", err)
	} else {
		stats := catalog.Stats()
		fmt.Printf("Catalog: %d actors, %d tools, %d techniques, %d relationships\n",
			stats.Actors, stats.Tools, stats.Techniques, stats.Relationships)

		engine, kbErr := kb.NewEngine(kb.Config{
			FactLimit:    env.cfg.KB.FactLimit,
			QueryTimeout: env.cfg.GetQueryTimeout(),
		})
		if kbErr == nil {
			kbErr = engine.Load(catalog)
		}
		if kbErr != nil {
			fmt.Printf("Knowledge base: unavailable (%v)\n", kbErr)
		} else {
			fmt.Printf("Knowledge base: %d facts\n", engine.GetStats().TotalFacts)
		}
	}

	wl, err := watchlist.Load(env.cfg.WatchlistPath(env.root))
	if err != nil {
		logging.Watchlist("load failed: %v", err)
		fmt.Printf("Watchlist: unavailable (%v)\n", err)
	} else {
		fmt.Printf("Watchlist: %d actors tracked in %s\n", wl.Len(), wl.Path())
	}

	fmt.Printf("Feed: %s\n", env.cfg.Feed.BaseURL)
	return nil
}

func cacheFileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}
	size := info.Size()
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	}
	return fmt.Sprintf("%d B", size)
}
