// query-cache is a standalone inspector for the snapshot cache
// database. Useful when the explorer shows stale or missing data and
// you want to see what is actually on disk without opening the TUI.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := filepath.Join(".threatscope", "cache.db")
	limit := 5
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 1 {
			fmt.Printf("Bad limit %q, using %d\n", os.Args[2], limit)
		} else {
			limit = n
		}
	}

	if _, err := os.Stat(dbPath); err != nil {
		fmt.Printf("No cache database at %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	queryDB(dbPath, limit)
}

func queryDB(dbPath string, limit int) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Printf("Error opening DB: %v\n", err)
		return
	}
	defer db.Close()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		fmt.Printf("Error querying tables: %v\n", err)
		return
	}
	var tables []string
	for rows.Next() {
		var name string
		rows.Scan(&name)
		tables = append(tables, name)
	}
	rows.Close()
	fmt.Printf("Tables: %v\n", tables)

	fmt.Println("\nSnapshots:")
	snapRows, err := db.Query(`SELECT id, domain, fetched_at, object_count FROM snapshots ORDER BY fetched_at DESC`)
	if err != nil {
		fmt.Printf("No snapshots table: %v\n", err)
		return
	}
	for snapRows.Next() {
		var id, domain, fetchedAt string
		var objectCount int
		snapRows.Scan(&id, &domain, &fetchedAt, &objectCount)
		fmt.Printf("  %s  %-18s %s  %d objects\n", shorten(id, 8), domain, fetchedAt, objectCount)
	}
	snapRows.Close()

	fmt.Println("\nObject types:")
	typeRows, err := db.Query(`SELECT stix_type, COUNT(*) FROM objects GROUP BY stix_type ORDER BY COUNT(*) DESC`)
	if err != nil {
		fmt.Printf("Error counting object types: %v\n", err)
		return
	}
	for typeRows.Next() {
		var typ string
		var count int
		typeRows.Scan(&typ, &count)
		fmt.Printf("  %-24s %d\n", typ, count)
	}
	typeRows.Close()

	fmt.Printf("\nSample objects:\n")
	fmt.Println("─────────────────────────────────────────────────────────────")
	objRows, err := db.Query(`SELECT stix_id, stix_type, name FROM objects ORDER BY snapshot_id, stix_id LIMIT ?`, limit)
	if err != nil {
		fmt.Printf("Error querying objects: %v\n", err)
		return
	}
	i := 0
	for objRows.Next() {
		var stixID, stixType, name string
		if err := objRows.Scan(&stixID, &stixType, &name); err != nil {
			fmt.Printf("Scan error: %v\n", err)
			continue
		}
		i++
		fmt.Printf("%d. %s  %s  %s\n", i, shorten(stixID, 40), stixType, shorten(name, 60))
	}
	objRows.Close()

	var snapCount, objCount int
	db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&snapCount)
	db.QueryRow("SELECT COUNT(*) FROM objects").Scan(&objCount)
	fmt.Printf("\nTotal snapshots: %d\n", snapCount)
	fmt.Printf("Total objects: %d\n", objCount)
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
