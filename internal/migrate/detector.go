package migrate

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/Ruszero01/ecopaste-sync/internal/config"
)

// Migration statuses.
const (
	StatusUnknown       = "unknown"
	StatusNeedMigration = "need_migration"
	StatusUpToDate      = "up_to_date"
	StatusFailed        = "failed"
	StatusCompleted     = "completed"
)

// Migration types.
const (
	TypeDatabaseSchema = "database_schema"
	TypeConfigFormat   = "config_format"
	TypeFull           = "full"
)

// CheckResult is the outcome of Check.
type CheckResult struct {
	Status             string
	OldVersion         string
	RequiredMigrations []string
	ItemsToMigrate     int
	Warnings           []string
}

// Check inspects the data directory and reports whether a migration is
// needed. A marker with success=true short-circuits to UpToDate; one with
// success=false reports Failed (automated retry refused).
func Check(dataDir string, dev bool) (*CheckResult, error) {
	marker, err := readMarker(dataDir, dev)
	if err != nil {
		return nil, err
	}

	if marker != nil {
		if marker.Success {
			return &CheckResult{Status: StatusUpToDate}, nil
		}

		return &CheckResult{
			Status:   StatusFailed,
			Warnings: []string{"previous migration failed: " + marker.Error},
		}, nil
	}

	result := &CheckResult{Status: StatusUpToDate}

	legacyDB, items, err := detectLegacyDatabase(config.DatabasePath(dataDir, dev))
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	if legacyDB {
		result.Status = StatusNeedMigration
		result.OldVersion = "1.x"
		result.RequiredMigrations = append(result.RequiredMigrations, TypeDatabaseSchema)
		result.ItemsToMigrate = items
	}

	if detectLegacyConfig(config.ConfigPath(dataDir, dev)) {
		result.Status = StatusNeedMigration
		result.RequiredMigrations = append(result.RequiredMigrations, TypeConfigFormat)
	}

	return result, nil
}

// detectLegacyDatabase reports whether the history table carries the
// legacy shape: a createTime column present while the current
// sourceAppName/sourceAppIcon/position columns are absent.
func detectLegacyDatabase(dbPath string) (bool, int, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, 0, nil
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return false, 0, fmt.Errorf("migrate: opening database: %w", err)
	}
	defer db.Close()

	columns, err := tableColumns(db, "history")
	if err != nil {
		return false, 0, err
	}

	if len(columns) == 0 {
		return false, 0, nil
	}

	legacy := columns["createTime"] &&
		!(columns["sourceAppName"] && columns["sourceAppIcon"] && columns["position"])

	if !legacy {
		return false, 0, nil
	}

	var items int
	if err := db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&items); err != nil {
		return true, 0, fmt.Errorf("migrate: counting rows: %w", err)
	}

	return true, items, nil
}

// tableColumns lists a table's column names; an absent table yields an
// empty map.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("migrate: reading table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		columns[name] = true
	}

	return columns, rows.Err()
}

// detectLegacyConfig reports whether the config document predates the
// syncModeConfig block.
func detectLegacyConfig(configPath string) bool {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return false
	}

	if !gjson.ValidBytes(data) {
		return false
	}

	return !gjson.GetBytes(data, "globalStore.cloudSync.syncModeConfig").Exists()
}
