package watchlist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"threatscope/internal/logging"
)

// Watcher reloads a Watchlist after its file changes on disk. Events are
// debounced so editors that write in bursts trigger a single reload.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	list        *Watchlist
	onReload    func()
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       WatcherStats
}

// WatcherStats tracks what the watcher has seen and done.
type WatcherStats struct {
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// NewWatcher builds a watcher that reloads list after its file changes
// settle. onReload runs after every successful reload and may be nil.
func NewWatcher(list *Watchlist, onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		watcher:     fsw,
		list:        list,
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Editors fire bursts of writes per save
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start watches the directory containing the watchlist file and returns
// immediately. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: most editors replace the file
	// on save, which would drop an inode-level watch.
	dir := filepath.Dir(w.list.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryWatchlist).Warn("failed to create watch directory %s: %v", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryWatchlist).Warn("failed to watch %s: %v", dir, err)
	}

	go w.run(ctx)
	logging.Watchlist("watching %s for changes", dir)
	return nil
}

// Stop shuts the event loop down and releases the underlying watcher.
// A stopped watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			logging.Get(logging.CategoryWatchlist).Warn("watch error: %v", err)
		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "created"
	case event.Op&fsnotify.Write != 0:
		eventType = "modified"
	case event.Op&fsnotify.Remove != 0:
		eventType = "deleted"
	case event.Op&fsnotify.Rename != 0:
		eventType = "renamed"
	default:
		return // Chmod carries no content change
	}

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()

	logging.WatchlistDebug("%s %s", event.Name, eventType)
}

// processDebounced reloads once for all events that settled past the
// debounce window.
func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled++
		}
	}
	w.mu.Unlock()

	if settled == 0 {
		return
	}

	if err := w.list.Reload(); err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		logging.Get(logging.CategoryWatchlist).Warn("reload failed: %v", err)
		return
	}

	w.mu.Lock()
	w.stats.Reloads++
	w.mu.Unlock()
	logging.Watchlist("reloaded %s (%d entries)", w.list.Path(), w.list.Len())

	if w.onReload != nil {
		w.onReload()
	}
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a copy of the watcher counters.
func (w *Watcher) GetStats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// WatchedDirs lists the directories under watch.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
