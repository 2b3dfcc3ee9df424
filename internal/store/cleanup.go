package store

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
)

// CleanupResult reports what one retention sweep removed.
type CleanupResult struct {
	ExpiredRows   int
	ExcessRows    int
	OrphanedBlobs int
}

// Cleanup applies the retention rule and sweeps the blob cache:
//
//  1. With a positive retention window, soft-delete every non-favorite row
//     older than the window.
//  2. With a positive count cap, soft-delete the oldest non-favorites past
//     the cap.
//  3. Regardless of the rule, remove every file under the blob directories
//     that no live image/files row references.
//
// Favorites are never touched. Zero values in the rule disable the
// corresponding sweep.
func (s *Store) Cleanup(rule config.Retention) (CleanupResult, error) {
	var result CleanupResult

	if maxAge := rule.MaxAge(); maxAge > 0 {
		n, err := s.expireOldRows(maxAge)
		if err != nil {
			return result, err
		}

		result.ExpiredRows = n
	}

	if rule.RetainCount > 0 {
		n, err := s.trimToCount(rule.RetainCount)
		if err != nil {
			return result, err
		}

		result.ExcessRows = n
	}

	result.OrphanedBlobs = s.sweepOrphanedBlobs()

	s.logger.Info("history cleanup finished",
		slog.Int("expired", result.ExpiredRows),
		slog.Int("excess", result.ExcessRows),
		slog.Int("orphaned_blobs", result.OrphanedBlobs),
	)

	return result, nil
}

// expireOldRows soft-deletes non-favorites older than maxAge.
func (s *Store) expireOldRows(maxAge time.Duration) (int, error) {
	cutoff := s.now() - maxAge.Milliseconds()

	rows, err := s.Query(QueryOptions{
		ExcludeDeleted: true,
		Where:          "favorite = 0 AND time < ?",
		WhereArgs:      []any{cutoff},
	})
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}

	if err := s.DeleteAuto(ids); err != nil {
		return 0, err
	}

	return len(ids), nil
}

// trimToCount soft-deletes the oldest non-favorites past the cap.
func (s *Store) trimToCount(limit int) (int, error) {
	var active int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM history WHERE deleted = 0 AND favorite = 0`,
	).Scan(&active); err != nil {
		return 0, err
	}

	excess := active - limit
	if excess <= 0 {
		return 0, nil
	}

	rows, err := s.Query(QueryOptions{
		ExcludeDeleted: true,
		Where:          "favorite = 0",
		OrderBy:        "time ASC",
		Limit:          excess,
	})
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}

	if err := s.DeleteAuto(ids); err != nil {
		return 0, err
	}

	return len(ids), nil
}

// sweepOrphanedBlobs removes files under images/ and files/ that no live
// row references. Unreadable directories are treated as empty: warn and
// continue, never fail the sweep.
func (s *Store) sweepOrphanedBlobs() int {
	referenced, err := s.referencedBlobPaths()
	if err != nil {
		s.logger.Warn("skipping blob sweep", slog.String("error", err.Error()))
		return 0
	}

	var removed int
	for _, dir := range []string{config.ImagesDir(s.dataDir), config.FilesDir(s.dataDir)} {
		removed += s.sweepDir(dir, referenced)
	}

	return removed
}

// referencedBlobPaths collects the absolute paths referenced by live image
// and files rows.
func (s *Store) referencedBlobPaths() (map[string]bool, error) {
	rows, err := s.Query(QueryOptions{
		ExcludeDeleted: true,
		Types:          []string{TypeImage, TypeFiles},
	})
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool)

	for _, e := range rows {
		if e.Type == TypeImage {
			referenced[filepath.Clean(e.Value)] = true
			continue
		}

		for _, p := range e.FilePaths() {
			referenced[filepath.Clean(p)] = true
		}
	}

	return referenced, nil
}

// sweepDir walks dir recursively and removes unreferenced files.
func (s *Store) sweepDir(dir string, referenced map[string]bool) int {
	var removed int

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("unreadable cache path, treating as empty",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			return nil
		}

		if d.IsDir() || referenced[filepath.Clean(path)] {
			return nil
		}

		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("removing orphaned blob",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)

			return nil
		}

		removed++

		return nil
	})
	if err != nil {
		s.logger.Warn("blob sweep aborted", slog.String("dir", dir), slog.String("error", err.Error()))
	}

	return removed
}
