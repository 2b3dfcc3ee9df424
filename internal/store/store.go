// Package store owns the clipboard history: an embedded SQLite table with a
// soft-delete + sync-status lifecycle, type-aware dedup on insert, an
// in-memory change tracker consumed by the sync engine, and the retention
// and blob-cache sweeps. All writes go through this API; no other component
// issues raw SQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCorrupt reports a database that cannot be opened or prepared. Fatal to
// sync; ingestion is disabled until the user intervenes.
var ErrCorrupt = errors.New("store: database corrupt")

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("store: entry not found")

// walJournalSizeLimit caps the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// Store is the history database handle. Safe for concurrent use; SQL work
// happens on the caller's goroutine (calls are synchronous and cheap).
type Store struct {
	db      *sql.DB
	dataDir string
	logger  *slog.Logger

	// Tracker records ids whose content changed since the last successful
	// sync cycle. The sync engine consumes Snapshot(), not raw queries.
	Tracker *ChangeTracker

	// now returns the current wall clock in ms since epoch. Tests override
	// it to get deterministic timestamps.
	now func() int64
}

// Open opens (creating if needed) the history database at dbPath, applies
// pragmas and schema migrations, and returns a ready Store. dataDir is the
// root of the managed blob directories (images/, files/).
func Open(dbPath, dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening history database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrCorrupt, err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Store{
		db:      db,
		dataDir: dataDir,
		logger:  logger,
		Tracker: NewChangeTracker(),
		now:     nowMillis,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the migration engine, which must inspect
// and rewrite legacy schemas before the store API is usable.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DataDir returns the root of the managed blob directories.
func (s *Store) DataDir() string {
	return s.dataDir
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied schema migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
