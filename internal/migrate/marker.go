// Package migrate upgrades legacy on-disk stores and config documents to
// the current shape. It runs once at startup, before the store opens for
// writes, and is gated by a durable marker file: a marker with success=true
// means nothing to do, success=false means a previous attempt failed and
// automated retry is refused until the marker is cleared by hand.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
)

// currentVersion stamps markers written by this engine.
const currentVersion = "2.0"

// ErrMarkerBlocked reports a failed prior migration whose marker must be
// cleared manually before another attempt.
var ErrMarkerBlocked = errors.New("migrate: previous migration failed; clear the marker to retry")

// Marker is the durable migration record (.migration / .migration.dev).
type Marker struct {
	Version       string `json:"version"`
	Timestamp     int64  `json:"timestamp"`
	FromVersion   string `json:"from_version,omitempty"`
	Type          string `json:"type"`
	MigratedItems int    `json:"migrated_items"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// readMarker loads the marker; absence returns (nil, nil).
func readMarker(dataDir string, dev bool) (*Marker, error) {
	data, err := os.ReadFile(config.MigrationMarkerPath(dataDir, dev))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migrate: reading marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("migrate: parsing marker: %w", err)
	}

	return &m, nil
}

// writeMarker persists the marker.
func writeMarker(dataDir string, dev bool, m *Marker) error {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("migrate: encoding marker: %w", err)
	}

	if err := os.WriteFile(config.MigrationMarkerPath(dataDir, dev), data, 0o644); err != nil {
		return fmt.Errorf("migrate: writing marker: %w", err)
	}

	return nil
}

// ClearMarker removes the marker so a failed migration can be retried.
// The manual escape hatch; never called automatically.
func ClearMarker(dataDir string, dev bool) error {
	err := os.Remove(config.MigrationMarkerPath(dataDir, dev))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("migrate: clearing marker: %w", err)
	}

	return nil
}
