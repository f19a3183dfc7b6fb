// Package watchlist persists the set of tracked threat actors and keeps
// it in sync with edits made outside the program. The list lives in a
// small YAML file; a filesystem watcher reloads it after changes settle.
package watchlist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"threatscope/internal/logging"
)

// Entry is one tracked actor.
type Entry struct {
	Name string `yaml:"name"`
	Note string `yaml:"note,omitempty"`
}

// fileFormat is the on-disk shape of the watchlist.
type fileFormat struct {
	Actors []Entry `yaml:"actors"`
}

// Watchlist holds the tracked actors behind a lock so the watcher can
// swap entries while the UI reads them.
type Watchlist struct {
	mu      sync.RWMutex
	path    string
	entries []Entry
}

// Load reads the watchlist at path. A missing file yields an empty
// watchlist, not an error.
func Load(path string) (*Watchlist, error) {
	entries, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	logging.WatchlistDebug("loaded %d entries from %s", len(entries), path)
	return &Watchlist{path: path, entries: entries}, nil
}

func parseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(f.Actors))
	for i, e := range f.Actors {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("watchlist entry %d has an empty name", i+1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate watchlist entry %q", e.Name)
		}
		seen[key] = struct{}{}
		f.Actors[i].Name = name
	}
	return f.Actors, nil
}

// Path returns the file the watchlist was loaded from.
func (w *Watchlist) Path() string {
	return w.path
}

// Len returns the number of tracked actors.
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Contains reports whether name is tracked. Matching ignores case.
func (w *Watchlist) Contains(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.indexOfLocked(name) >= 0
}

// Note returns the note stored for name, if any.
func (w *Watchlist) Note(name string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i := w.indexOfLocked(name); i >= 0 {
		return w.entries[i].Note, true
	}
	return "", false
}

func (w *Watchlist) indexOfLocked(name string) int {
	for i, e := range w.entries {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

// Add tracks a new actor. The name must be non-empty and not already
// tracked under any casing.
func (w *Watchlist) Add(name, note string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("watchlist entries need a name")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.indexOfLocked(name) >= 0 {
		return fmt.Errorf("%s is already on the watchlist", name)
	}
	w.entries = append(w.entries, Entry{Name: name, Note: strings.TrimSpace(note)})
	return nil
}

// Remove drops an actor from the list. It reports whether the name was
// present.
func (w *Watchlist) Remove(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOfLocked(name)
	if i < 0 {
		return false
	}
	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	return true
}

// Entries returns a copy of the tracked actors sorted by name.
func (w *Watchlist) Entries() []Entry {
	w.mu.RLock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	w.mu.RUnlock()
	sortEntries(out)
	return out
}

// Save writes the current entries back to the watchlist file, creating
// the containing directory when needed. Entries are written sorted so
// repeated saves produce identical files.
func (w *Watchlist) Save() error {
	w.mu.RLock()
	f := fileFormat{Actors: make([]Entry, len(w.entries))}
	copy(f.Actors, w.entries)
	w.mu.RUnlock()
	sortEntries(f.Actors)

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode watchlist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create watchlist directory: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write watchlist: %w", err)
	}
	logging.WatchlistDebug("saved %d entries to %s", len(f.Actors), w.path)
	return nil
}

// Reload re-reads the watchlist file and swaps in its entries. When the
// file fails to parse the previous entries stay in place.
func (w *Watchlist) Reload() error {
	entries, err := parseFile(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.entries = entries
	w.mu.Unlock()
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		li, lj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if li != lj {
			return li < lj
		}
		return entries[i].Name < entries[j].Name
	})
}
