package main

import (
	"context"
	"errors"
	"fmt"

	"threatscope/internal/attack"
	"threatscope/internal/config"
	"threatscope/internal/feed"
	"threatscope/internal/logging"
	"threatscope/internal/store"
)

// appEnv bundles what every command needs: the resolved config, the
// workspace root, and the open snapshot store.
type appEnv struct {
	cfg     *config.Config
	root    string
	store   *store.Store
	refresh bool
	offline bool
}

func openEnv() (*appEnv, error) {
	root, err := config.FindWorkspaceRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to locate workspace: %w", err)
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.CachePath(root), cfg.Cache.KeepSnapshots)
	if err != nil {
		return nil, err
	}

	return &appEnv{cfg: cfg, root: root, store: st, refresh: refreshFlag, offline: offlineFlag}, nil
}

func (e *appEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// configuredDomains parses the config's domain list.
func (e *appEnv) configuredDomains() ([]feed.Domain, error) {
	out := make([]feed.Domain, 0, len(e.cfg.Feed.Domains))
	for _, d := range e.cfg.Feed.Domains {
		dom, err := feed.ParseDomain(d)
		if err != nil {
			return nil, err
		}
		out = append(out, dom)
	}
	return out, nil
}

func (e *appEnv) newFetcher() *feed.Fetcher {
	return feed.NewFetcher(feed.Config{
		BaseURL:   e.cfg.Feed.BaseURL,
		Timeout:   e.cfg.GetFeedTimeout(),
		UserAgent: e.cfg.Feed.UserAgent,
	})
}

// loadCatalog builds the catalog from the freshest cached snapshot of
// each configured domain, honoring the --refresh and --offline flags.
func (e *appEnv) loadCatalog(ctx context.Context) (*attack.Catalog, error) {
	return e.loadCatalogForce(ctx, e.refresh)
}

// loadCatalogForce builds the catalog from the freshest cached
// snapshot of each configured domain. Domains with no snapshot, or
// whose snapshot has aged past the freshness window, are fetched and
// saved first; a stale snapshot still serves when the refresh fetch
// fails. force treats every snapshot as stale. In offline mode no
// fetch ever happens and a stale or missing snapshot is an error.
func (e *appEnv) loadCatalogForce(ctx context.Context, force bool) (*attack.Catalog, error) {
	domains, err := e.configuredDomains()
	if err != nil {
		return nil, err
	}

	fetcher := e.newFetcher()
	maxAge := e.cfg.GetCacheMaxAge()

	var sources []attack.Source
	for _, dom := range domains {
		snap, snapErr := e.store.LatestSnapshot(ctx, dom)
		fresh := snapErr == nil && snap.Age() <= maxAge

		if e.offline {
			if !fresh {
				return nil, fmt.Errorf("offline: no fresh %s snapshot in the cache (run threatscope update first)", dom)
			}
		} else if force || !fresh {
			bundle, fetchErr := fetcher.Fetch(ctx, dom)
			switch {
			case fetchErr == nil:
				saved, saveErr := e.store.SaveSnapshot(ctx, dom, dom.URL(e.cfg.Feed.BaseURL), bundle)
				if saveErr != nil {
					// Serve the fetched bundle even when persisting it
					// failed; the cache catches up on the next run.
					logging.Store("snapshot save failed for %s: %v", dom, saveErr)
					sources = append(sources, attack.Source{Domain: string(dom), Objects: bundle.Objects})
					continue
				}
				snap = saved
			case snapErr != nil:
				return nil, fetchErr
			default:
				logging.Feed("refresh failed for %s, serving stale snapshot: %v", dom, fetchErr)
			}
		}

		objs, loadErr := e.store.LoadObjects(ctx, snap.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		sources = append(sources, attack.Source{Domain: string(dom), Objects: objs})
	}

	if len(sources) == 0 {
		return nil, errors.New("no ATT&CK content available")
	}
	return attack.NewCatalog(sources...), nil
}

// cachedCatalog builds the catalog from whatever snapshots are on
// disk, regardless of age and without touching the network. Used by
// reporting paths that must not trigger a fetch.
func (e *appEnv) cachedCatalog(ctx context.Context) (*attack.Catalog, error) {
	snaps, err := e.store.LatestSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	var sources []attack.Source
	for _, snap := range snaps {
		objs, err := e.store.LoadObjects(ctx, snap.ID)
		if err != nil {
			return nil, err
		}
		sources = append(sources, attack.Source{Domain: string(snap.Domain), Objects: objs})
	}
	if len(sources) == 0 {
		return nil, errors.New("no ATT&CK content available")
	}
	return attack.NewCatalog(sources...), nil
}
