package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/events"
)

// Result is the outcome of Perform.
type Result struct {
	MigratedItems int
	Duration      time.Duration
}

// Perform runs the one-shot migration. It writes a success=false marker
// first, transforms the database schema and data, upgrades the config
// document, then rewrites the marker with success=true. Any failure leaves
// the failed marker in place, which blocks further automated attempts.
// Running Perform after a successful migration is a no-op.
func Perform(dataDir string, dev bool, bus *events.Bus, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	check, err := Check(dataDir, dev)
	if err != nil {
		return nil, err
	}

	switch check.Status {
	case StatusUpToDate:
		return &Result{}, nil
	case StatusFailed:
		return nil, ErrMarkerBlocked
	}

	start := time.Now()

	if err := writeMarker(dataDir, dev, &Marker{
		Version: currentVersion,
		Type:    TypeFull,
		Success: false,
	}); err != nil {
		return nil, err
	}

	migrated, err := runMigrations(dataDir, dev, check, bus, logger)
	if err != nil {
		// Record the first error on the marker; subsequent starts refuse
		// automated retry until it is cleared manually.
		markerErr := writeMarker(dataDir, dev, &Marker{
			Version: currentVersion,
			Type:    TypeFull,
			Success: false,
			Error:   err.Error(),
		})
		if markerErr != nil {
			logger.Error("writing failure marker", slog.String("error", markerErr.Error()))
		}

		return nil, err
	}

	if err := writeMarker(dataDir, dev, &Marker{
		Version:       currentVersion,
		FromVersion:   check.OldVersion,
		Type:          TypeFull,
		MigratedItems: migrated,
		Success:       true,
	}); err != nil {
		return nil, err
	}

	result := &Result{MigratedItems: migrated, Duration: time.Since(start)}

	logger.Info("migration finished",
		slog.Int("migrated_items", migrated),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// runMigrations executes the required migration phases in order.
func runMigrations(dataDir string, dev bool, check *CheckResult, bus *events.Bus, logger *slog.Logger) (int, error) {
	var migrated int

	for _, kind := range check.RequiredMigrations {
		switch kind {
		case TypeDatabaseSchema:
			publishProgress(bus, "database", 0, check.ItemsToMigrate)

			n, err := migrateDatabase(config.DatabasePath(dataDir, dev), logger)
			if err != nil {
				return migrated, err
			}

			migrated += n

			publishProgress(bus, "database", n, check.ItemsToMigrate)

		case TypeConfigFormat:
			publishProgress(bus, "config", 0, 1)

			if err := migrateConfig(config.ConfigPath(dataDir, dev)); err != nil {
				return migrated, err
			}

			publishProgress(bus, "config", 1, 1)
		}
	}

	return migrated, nil
}

// migrateDatabase upgrades a legacy history table in one transaction:
// missing columns are added with safe defaults, createTime strings become
// epoch-ms time values, position is seeded from rowid, legacy sync
// statuses are remapped and NULL deleted flags zeroed.
func migrateDatabase(dbPath string, logger *slog.Logger) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("migrate: opening database: %w", err)
	}
	defer db.Close()

	columns, err := tableColumns(db, "history")
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("migrate: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	additions := []struct {
		column string
		ddl    string
	}{
		{"time", `ALTER TABLE history ADD COLUMN time INTEGER NOT NULL DEFAULT 0`},
		{"sourceAppName", `ALTER TABLE history ADD COLUMN sourceAppName TEXT`},
		{"sourceAppIcon", `ALTER TABLE history ADD COLUMN sourceAppIcon TEXT`},
		{"position", `ALTER TABLE history ADD COLUMN position INTEGER NOT NULL DEFAULT 0`},
	}

	for _, add := range additions {
		if columns[add.column] {
			continue
		}

		if _, err := tx.Exec(add.ddl); err != nil {
			return 0, fmt.Errorf("migrate: adding column %s: %w", add.column, err)
		}

		logger.Info("added column", slog.String("column", add.column))
	}

	migrated, err := backfillTimes(tx)
	if err != nil {
		return 0, err
	}

	statements := []string{
		`UPDATE history SET position = rowid WHERE position = 0 OR position IS NULL`,
		`UPDATE history SET syncStatus = 'not_synced' WHERE syncStatus IS NULL OR syncStatus IN ('none', 'error')`,
		`UPDATE history SET syncStatus = 'changed' WHERE syncStatus = 'syncing'`,
		`UPDATE history SET deleted = 0 WHERE deleted IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_history_deleted ON history(deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_history_favorite ON history(favorite)`,
		`CREATE INDEX IF NOT EXISTS idx_history_time ON history(time)`,
		`CREATE INDEX IF NOT EXISTS idx_history_syncStatus ON history(syncStatus)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return 0, fmt.Errorf("migrate: executing %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("migrate: committing: %w", err)
	}

	return migrated, nil
}

// backfillTimes converts legacy ISO-8601 createTime strings into epoch-ms
// time values for rows that have none. Unparsable strings fall back to the
// current time rather than failing the whole migration.
func backfillTimes(tx *sql.Tx) (int, error) {
	rows, err := tx.Query(`SELECT rowid, createTime FROM history WHERE (time = 0 OR time IS NULL) AND createTime IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("migrate: selecting legacy rows: %w", err)
	}
	defer rows.Close()

	type backfill struct {
		rowid int64
		ms    int64
	}

	var pending []backfill

	for rows.Next() {
		var (
			rowid      int64
			createTime string
		)

		if err := rows.Scan(&rowid, &createTime); err != nil {
			return 0, err
		}

		ms := time.Now().UnixMilli()
		if parsed, err := time.Parse(time.RFC3339, createTime); err == nil {
			ms = parsed.UnixMilli()
		}

		pending = append(pending, backfill{rowid: rowid, ms: ms})
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, b := range pending {
		if _, err := tx.Exec(`UPDATE history SET time = ? WHERE rowid = ?`, b.ms, b.rowid); err != nil {
			return 0, fmt.Errorf("migrate: backfilling time: %w", err)
		}
	}

	return len(pending), nil
}

// defaultSyncMode is the syncModeConfig block inserted into legacy config
// documents, before carry-overs are applied.
const defaultSyncMode = `{
	"onlyFavorites": false,
	"includeText": true,
	"includeHtml": true,
	"includeRtf": true,
	"includeMarkdown": true,
	"includeImages": true,
	"includeFiles": true,
	"conflictResolution": "merge"
}`

// migrateConfig inserts the syncModeConfig block, carrying over whatever
// includeImages/includeFiles/onlyFavorites flags the legacy document had.
func migrateConfig(configPath string) error {
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate: reading config: %w", err)
	}

	doc := string(data)

	if gjson.Get(doc, "globalStore.cloudSync.syncModeConfig").Exists() {
		return nil
	}

	doc, err = sjson.SetRaw(doc, "globalStore.cloudSync.syncModeConfig", defaultSyncMode)
	if err != nil {
		return fmt.Errorf("migrate: inserting sync mode block: %w", err)
	}

	// Legacy flags lived under syncSettings; carry them into the new block.
	carryOvers := map[string]string{
		"globalStore.cloudSync.syncSettings.includeImages": "globalStore.cloudSync.syncModeConfig.includeImages",
		"globalStore.cloudSync.syncSettings.includeFiles":  "globalStore.cloudSync.syncModeConfig.includeFiles",
		"globalStore.cloudSync.syncSettings.onlyFavorites": "globalStore.cloudSync.syncModeConfig.onlyFavorites",
	}

	for from, to := range carryOvers {
		if v := gjson.Get(doc, from); v.Exists() {
			doc, err = sjson.Set(doc, to, v.Bool())
			if err != nil {
				return fmt.Errorf("migrate: carrying over %s: %w", from, err)
			}
		}
	}

	if err := os.WriteFile(configPath, []byte(doc), 0o600); err != nil {
		return fmt.Errorf("migrate: writing config: %w", err)
	}

	return nil
}

// publishProgress emits migration.progress.
func publishProgress(bus *events.Bus, phase string, processed, total int) {
	percent := 100.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100
	}

	bus.Publish(events.MigrationProgress, events.MigrationPayload{
		Phase:     phase,
		Processed: processed,
		Total:     total,
		Percent:   percent,
	})
}
