// Package rundb records prune runs in a local SQLite database so operators
// can review what was pruned, when, and with which parameters.
package rundb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed-width so that started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the run history database.
type DB struct {
	*sql.DB
}

// Run is one recorded prune invocation.
type Run struct {
	ID           string
	StartedAt    time.Time
	InputPath    string
	OutputPath   string
	Method       string
	KeepRatio    float64
	Seed         uint64
	InputPoints  int
	OutputPoints int
	InputBytes   int64
	OutputBytes  int64
	Elapsed      time.Duration
	CacheHit     bool
	ErrorKind    string
	ErrorMessage string
}

// Failed reports whether the run ended in an error.
func (r Run) Failed() bool { return r.ErrorKind != "" || r.ErrorMessage != "" }

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", path, err)
	}
	// Batch workers record concurrently; one connection serialises writes.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp applies all pending embedded migrations.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version and dirty flag.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RecordRun inserts r, assigning an ID when it has none, and returns the ID.
func (db *DB) RecordRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	query := `
		INSERT INTO prune_runs (
			run_id, started_at, input_path, output_path, method, keep_ratio, seed,
			input_points, output_points, input_bytes, output_bytes, elapsed_ms,
			cache_hit, error_kind, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		r.ID, r.StartedAt.UTC().Format(timeLayout), r.InputPath, r.OutputPath, r.Method, r.KeepRatio,
		int64(r.Seed), r.InputPoints, r.OutputPoints, r.InputBytes, r.OutputBytes, r.Elapsed.Milliseconds(),
		r.CacheHit, r.ErrorKind, r.ErrorMessage,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert prune run: %w", err)
	}
	return r.ID, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT run_id, started_at, input_path, output_path, method, keep_ratio, seed,
		       input_points, output_points, input_bytes, output_bytes, elapsed_ms,
		       cache_hit, error_kind, error_message
		FROM prune_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prune runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			startedAt string
			seed      int64
			elapsedMS int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &r.InputPath, &r.OutputPath, &r.Method, &r.KeepRatio, &seed,
			&r.InputPoints, &r.OutputPoints, &r.InputBytes, &r.OutputBytes, &elapsedMS,
			&r.CacheHit, &r.ErrorKind, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan prune run: %w", err)
		}
		r.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", r.ID, startedAt, err)
		}
		r.Seed = uint64(seed)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
