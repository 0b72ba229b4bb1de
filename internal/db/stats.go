package db

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// TableStats describes one table in the database file.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb,omitempty"`
}

// DatabaseStats summarises the database file for the admin page.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	PageCount   int64        `json:"page_count"`
	PageSize    int64        `json:"page_size"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats reports the database file size and per-table row
// counts. Per-table sizes come from the dbstat virtual table and are
// zero when the build does not include it.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := db.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to query page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to query page_size: %w", err)
	}
	stats.TotalSizeMB = float64(stats.PageCount*stats.PageSize) / (1024 * 1024)

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	for _, name := range names {
		table := TableStats{Name: name}

		// Table names can't be bound as parameters; they come from
		// sqlite_master, not from user input.
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %q", name)
		if err := db.QueryRow(countQuery).Scan(&table.RowCount); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}

		var sizeBytes int64
		if err := db.QueryRow("SELECT COALESCE(SUM(pgsize), 0) FROM dbstat WHERE name = ?", name).Scan(&sizeBytes); err == nil {
			table.SizeMB = float64(sizeBytes) / (1024 * 1024)
		}

		stats.Tables = append(stats.Tables, table)
	}

	return stats, nil
}

// handleDBStats serves the stats summary as JSON on the debug mux.
func (db *DB) handleDBStats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetDatabaseStats()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get database stats: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode stats: %v", err), http.StatusInternalServerError)
	}
}
