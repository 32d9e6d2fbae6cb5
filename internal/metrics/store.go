// Package metrics persists a local history of gardener runs so operators can
// see what the bot has been doing across invocations.
package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Mode identifies which gardener function a run executed.
type Mode string

const (
	ModeChannels Mode = "channels"
	ModeProfiles Mode = "profiles"
	ModeExport   Mode = "export"
)

// RunRecord is one run's outcome.
type RunRecord struct {
	Mode     Mode
	Started  time.Time
	Scanned  int
	Warned   int
	Archived int
	Failed   int
	DryRun   bool
	Elapsed  time.Duration
}

// Store manages SQLite persistence for run history.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store with the database at ~/.gardener/stats.db. The
// directory and database file are created if they don't exist.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get user home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".gardener")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create .gardener directory: %w", err)
	}
	return NewStoreWithPath(filepath.Join(dir, "stats.db"))
}

// NewStoreWithPath creates a Store with a custom database path. This is
// useful for testing.
func NewStoreWithPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS runs (
			mode TEXT NOT NULL,
			started TEXT NOT NULL,
			scanned INTEGER DEFAULT 0,
			warned INTEGER DEFAULT 0,
			archived INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			dry_run INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one run to the history.
func (s *Store) Record(rec RunRecord) error {
	insertSQL := `
		INSERT INTO runs (mode, started, scanned, warned, archived, failed, dry_run, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	dryRun := 0
	if rec.DryRun {
		dryRun = 1
	}
	_, err := s.db.Exec(insertSQL,
		string(rec.Mode),
		rec.Started.UTC().Format(time.RFC3339),
		rec.Scanned, rec.Warned, rec.Archived, rec.Failed,
		dryRun, rec.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RunCount returns how many runs have been recorded for a mode.
func (s *Store) RunCount(mode Mode) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE mode = ?;`, string(mode)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

// Totals returns the summed scanned/warned/archived/failed counts for a mode.
func (s *Store) Totals(mode Mode) (RunRecord, error) {
	var totals RunRecord
	totals.Mode = mode
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(scanned), 0), COALESCE(SUM(warned), 0),
		       COALESCE(SUM(archived), 0), COALESCE(SUM(failed), 0)
		FROM runs WHERE mode = ?;
	`, string(mode)).Scan(&totals.Scanned, &totals.Warned, &totals.Archived, &totals.Failed)
	if err != nil {
		return RunRecord{}, fmt.Errorf("sum runs: %w", err)
	}
	return totals, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
