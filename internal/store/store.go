// Package store caches fetched ATT&CK bundles in SQLite.
//
// Each fetch becomes a snapshot: one row in the snapshots table plus
// one row per STIX object, keyed by a generated snapshot ID. The
// explorer loads the newest snapshot per domain at startup, so normal
// runs never touch the network. Older snapshots of the same domain are
// pruned past a keep count.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"threatscope/internal/feed"
	"threatscope/internal/logging"
	"threatscope/internal/stix"
)

const defaultKeepSnapshots = 3

// Snapshot describes one saved bundle.
type Snapshot struct {
	ID          string
	Domain      feed.Domain
	FetchedAt   time.Time
	ObjectCount int
	SourceURL   string
}

// Age returns how long ago the snapshot was fetched.
func (s Snapshot) Age() time.Duration {
	return time.Since(s.FetchedAt)
}

// Store is the SQLite-backed snapshot cache.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	keep   int
}

// Open initializes the cache database at the given path. A keep count
// below one falls back to the default.
func Open(path string, keep int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if keep < 1 {
		keep = defaultKeepSnapshots
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path, keep: keep}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("snapshot cache ready at %s (keep %d per domain)", path, keep)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		object_count INTEGER NOT NULL,
		source_url TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_domain ON snapshots(domain, fetched_at);

	CREATE TABLE IF NOT EXISTS objects (
		snapshot_id TEXT NOT NULL,
		stix_id TEXT NOT NULL,
		stix_type TEXT NOT NULL,
		name TEXT,
		document BLOB NOT NULL,
		PRIMARY KEY (snapshot_id, stix_id)
	);
	CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(snapshot_id, stix_type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveSnapshot stores a bundle as a new snapshot in one transaction
// and prunes older snapshots of the same domain past the keep count.
func (s *Store) SaveSnapshot(ctx context.Context, domain feed.Domain, sourceURL string, bundle *stix.Bundle) (Snapshot, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SaveSnapshot")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          uuid.NewString(),
		Domain:      domain,
		FetchedAt:   time.Now().UTC(),
		ObjectCount: len(bundle.Objects),
		SourceURL:   sourceURL,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, domain, fetched_at, object_count, source_url) VALUES (?, ?, ?, ?, ?)",
		snap.ID, string(snap.Domain), snap.FetchedAt, snap.ObjectCount, snap.SourceURL,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO objects (snapshot_id, stix_id, stix_type, name, document) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to prepare object insert: %w", err)
	}
	defer stmt.Close()

	for i := range bundle.Objects {
		obj := &bundle.Objects[i]
		doc := []byte(obj.Raw)
		if len(doc) == 0 {
			doc, err = json.Marshal(obj)
			if err != nil {
				return Snapshot{}, fmt.Errorf("failed to marshal object %s: %w", obj.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, obj.ID, obj.Type, obj.Name, doc); err != nil {
			return Snapshot{}, fmt.Errorf("failed to insert object %s: %w", obj.ID, err)
		}
	}

	// Prune past the keep count. Objects go first so the snapshot
	// subselect still sees the doomed rows.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM objects WHERE snapshot_id IN (
			SELECT id FROM snapshots WHERE domain = ?
			ORDER BY fetched_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, string(domain), s.keep)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to prune objects: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id IN (
			SELECT id FROM snapshots WHERE domain = ?
			ORDER BY fetched_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, string(domain), s.keep)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logging.Store("saved snapshot %s: %s, %d objects", snap.ID, domain, snap.ObjectCount)
	return snap, nil
}

// LatestSnapshot returns the newest snapshot for a domain. A missing
// domain yields an error wrapping sql.ErrNoRows.
func (s *Store) LatestSnapshot(ctx context.Context, domain feed.Domain) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain, fetched_at, object_count, source_url
		FROM snapshots WHERE domain = ?
		ORDER BY fetched_at DESC, rowid DESC LIMIT 1`, string(domain))

	snap, err := scanSnapshot(row)
	if err != nil {
		return Snapshot{}, fmt.Errorf("no snapshot for %s: %w", domain, err)
	}
	return snap, nil
}

// LatestSnapshots returns the newest snapshot per domain, ordered by
// domain name. Domains never fetched are simply absent.
func (s *Store) LatestSnapshots(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, fetched_at, object_count, source_url
		FROM snapshots ORDER BY fetched_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	seen := make(map[feed.Domain]bool)
	var latest []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		if seen[snap.Domain] {
			continue
		}
		seen[snap.Domain] = true
		latest = append(latest, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}

	sort.Slice(latest, func(i, j int) bool { return latest[i].Domain < latest[j].Domain })
	return latest, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot
	var domain string
	if err := row.Scan(&snap.ID, &domain, &snap.FetchedAt, &snap.ObjectCount, &snap.SourceURL); err != nil {
		return Snapshot{}, err
	}
	snap.Domain = feed.Domain(domain)
	return snap, nil
}

// LoadObjects returns a snapshot's objects in their original bundle
// order. A missing snapshot yields an error wrapping sql.ErrNoRows.
func (s *Store) LoadObjects(ctx context.Context, snapshotID string) ([]stix.Object, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadObjects")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM snapshots WHERE id = ?", snapshotID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT document FROM objects WHERE snapshot_id = ? ORDER BY rowid", snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objects []stix.Object
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		var obj stix.Object
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode stored object: %w", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan objects: %w", err)
	}

	logging.StoreDebug("loaded %d objects from snapshot %s", len(objects), snapshotID)
	return objects, nil
}

// GetStats reports table row counts and the newest snapshot per domain.
func (s *Store) GetStats(ctx context.Context) (map[string]int64, []Snapshot, error) {
	s.mu.RLock()
	tables := []string{"snapshots", "objects"}
	stats := make(map[string]int64)
	for _, table := range tables {
		var count int64
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			logging.StoreDebug("Table %s count failed: %v", table, err)
			continue
		}
		stats[table] = count
	}
	s.mu.RUnlock()

	latest, err := s.LatestSnapshots(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stats, latest, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
