package coverage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// measuredFile is one row of the coverage.py `file` table with the lines
// that ran, before statement analysis.
type measuredFile struct {
	id       int64
	path     string
	executed LineSet
}

// readSQLiteData reads a coverage.py data file (schema 7). The caller has
// already checked that path exists, so opening never creates a database.
// Files are returned in row id order, which is the order coverage.py
// first measured them.
func readSQLiteData(ctx context.Context, path string) ([]measuredFile, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open coverage database: %w", err)
	}
	defer db.Close()

	hasArcs, err := readHasArcs(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, path FROM file ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked files: %w", err)
	}
	var files []measuredFile
	byID := make(map[int64]int)
	for rows.Next() {
		var f measuredFile
		if err := rows.Scan(&f.id, &f.path); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tracked file: %w", err)
		}
		byID[f.id] = len(files)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read tracked files: %w", err)
	}
	rows.Close()

	executed := make(map[int64][]int)
	if hasArcs {
		err = collectArcs(ctx, db, executed)
	} else {
		err = collectLineBits(ctx, db, executed)
	}
	if err != nil {
		return nil, err
	}

	for id, lines := range executed {
		if i, ok := byID[id]; ok {
			files[i].executed = NewLineSet(lines...)
		}
	}
	return files, nil
}

// readHasArcs reports whether the data was measured with branch coverage.
// Older data files without a meta table are line data.
func readHasArcs(ctx context.Context, db *sql.DB) (bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'has_arcs'`).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		var n int
		if probe := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'file'`).Scan(&n); probe != nil {
			return false, fmt.Errorf("failed to read coverage database: %w", probe)
		}
		if n == 0 {
			return false, fmt.Errorf("not a coverage.py data file: no file table")
		}
		return false, nil
	}
	return value == "true" || value == "1", nil
}

// collectLineBits unions the numbits of every measurement context.
func collectLineBits(ctx context.Context, db *sql.DB, into map[int64][]int) error {
	rows, err := db.QueryContext(ctx, `SELECT file_id, numbits FROM line_bits`)
	if err != nil {
		return fmt.Errorf("failed to query line data: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fileID int64
		var numbits []byte
		if err := rows.Scan(&fileID, &numbits); err != nil {
			return fmt.Errorf("failed to scan line data: %w", err)
		}
		into[fileID] = append(into[fileID], NumbitsToLines(numbits)...)
	}
	return rows.Err()
}

// collectArcs derives executed lines from branch arcs. Negative numbers
// mark function entry and exit and are not lines.
func collectArcs(ctx context.Context, db *sql.DB, into map[int64][]int) error {
	rows, err := db.QueryContext(ctx, `SELECT file_id, fromno, tono FROM arc`)
	if err != nil {
		return fmt.Errorf("failed to query arc data: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fileID int64
		var from, to int
		if err := rows.Scan(&fileID, &from, &to); err != nil {
			return fmt.Errorf("failed to scan arc data: %w", err)
		}
		if from > 0 {
			into[fileID] = append(into[fileID], from)
		}
		if to > 0 {
			into[fileID] = append(into[fileID], to)
		}
	}
	return rows.Err()
}
