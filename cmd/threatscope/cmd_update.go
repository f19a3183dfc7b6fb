package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"threatscope/cmd/threatscope/ui"
	"threatscope/internal/feed"
	"threatscope/internal/stix"
)

var updateDomainFlags []string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch fresh ATT&CK bundles into the local cache",
	Long: `Update downloads the configured ATT&CK domain bundles from the STIX
feed and stores each one as a new snapshot in the cache database. The
explorer and the other subcommands read the newest snapshot per domain,
so run this whenever the cache has gone stale.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringArrayVar(&updateDomainFlags, "domain", nil,
		"domain to fetch (enterprise-attack, mobile-attack, ics-attack); repeatable")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	domains, err := resolveDomains(updateDomainFlags, env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var mu sync.Mutex
	durations := make(map[feed.Domain]time.Duration, len(domains))

	fetcher := env.newFetcher()
	fetcher.SetProgress(feed.Progress{
		Start: func(d feed.Domain) {
			fmt.Printf("Fetching %s...\n", d)
		},
		Done: func(d feed.Domain, objects int, took time.Duration, err error) {
			mu.Lock()
			durations[d] = took
			mu.Unlock()
			if err != nil {
				fmt.Printf("  %s failed after %s: %v\n", d, took.Round(time.Millisecond), err)
				return
			}
			fmt.Printf("  %s: %d objects in %s\n", d, objects, took.Round(time.Millisecond))
		},
	})

	bundles, err := fetcher.FetchAll(ctx, domains)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(domains))
	for _, d := range domains {
		snap, err := env.store.SaveSnapshot(ctx, d, d.URL(env.cfg.Feed.BaseURL), bundles[d])
		if err != nil {
			return fmt.Errorf("save %s snapshot: %w", d, err)
		}
		logger.Debug("snapshot saved",
			zap.String("domain", string(d)),
			zap.String("id", snap.ID),
			zap.Int("objects", snap.ObjectCount))
		actors, tools, techniques := bundleCounts(bundles[d].Objects)
		rows = append(rows, []string{
			string(d),
			strconv.Itoa(snap.ObjectCount),
			strconv.Itoa(actors),
			strconv.Itoa(tools),
			strconv.Itoa(techniques),
			durations[d].Round(time.Millisecond).String(),
			shortID(snap.ID),
		})
	}

	fmt.Println()
	fmt.Print(ui.RenderTable(ui.DefaultStyles(), "Snapshots",
		[]string{"Domain", "Objects", "Actors", "Tools", "Techniques", "Took", "Snapshot"}, rows))
	return nil
}

func bundleCounts(objs []stix.Object) (actors, tools, techniques int) {
	for _, obj := range objs {
		switch obj.Type {
		case stix.TypeIntrusionSet:
			actors++
		case stix.TypeTool:
			tools++
		case stix.TypeAttackPattern:
			techniques++
		}
	}
	return actors, tools, techniques
}

func resolveDomains(names []string, env *appEnv) ([]feed.Domain, error) {
	if len(names) == 0 {
		return env.configuredDomains()
	}
	domains := make([]feed.Domain, 0, len(names))
	for _, name := range names {
		d, err := feed.ParseDomain(name)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, nil
}
