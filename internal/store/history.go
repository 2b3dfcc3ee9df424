package store

import (
	"crypto/md5" //nolint:gosec // content addressing, not cryptography
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ruszero01/ecopaste-sync/internal/detect"
)

// nowMillis is the production clock.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// entryColumns is the canonical SELECT column list, kept in one place so
// scanEntry stays in lockstep with it.
const entryColumns = `id, type, subtype, [group], value, search, count,
	width, height, favorite, note, time, deleted, syncStatus,
	sourceAppName, sourceAppIcon, position`

// semanticFields are the fields whose update bumps time, marks the change
// tracker, and moves synced rows to changed.
var semanticFields = map[string]bool{
	"favorite": true,
	"note":     true,
	"value":    true,
	"type":     true,
	"subtype":  true,
}

// updatableFields whitelists UpdateField targets; anything else is a
// programmer error surfaced as a plain error.
var updatableFields = map[string]bool{
	"favorite": true, "note": true, "value": true, "type": true,
	"subtype": true, "search": true, "width": true, "height": true,
	"count": true, "position": true, "sourceAppName": true,
	"sourceAppIcon": true,
}

// scanEntry reads one row in entryColumns order.
func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var (
		e                                       Entry
		subtype, search, note, appName, appIcon sql.NullString
		width, height                           sql.NullInt64
		favorite, deleted                       int64
	)

	err := row.Scan(
		&e.ID, &e.Type, &subtype, &e.Group, &e.Value, &search, &e.Count,
		&width, &height, &favorite, &note, &e.Time, &deleted, &e.SyncStatus,
		&appName, &appIcon, &e.Position,
	)
	if err != nil {
		return nil, err
	}

	e.Subtype = subtype.String
	e.Search = search.String
	e.Note = note.String
	e.SourceAppName = appName.String
	e.SourceAppIcon = appIcon.String
	e.Width = width.Int64
	e.Height = height.Int64
	e.Favorite = favorite != 0
	e.Deleted = deleted != 0

	return &e, nil
}

// GetByID fetches a single row, including soft-deleted ones.
func (s *Store) GetByID(id string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM history WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}

	return e, nil
}

// Query returns rows matching the filter, newest first unless OrderBy says
// otherwise.
func (s *Store) Query(opts QueryOptions) ([]*Entry, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`SELECT ` + entryColumns + ` FROM history WHERE 1=1`)

	if opts.ExcludeDeleted {
		sb.WriteString(` AND deleted = 0`)
	}

	if opts.OnlyFavorites {
		sb.WriteString(` AND favorite = 1`)
	}

	if len(opts.Types) > 0 {
		sb.WriteString(` AND type IN (?` + strings.Repeat(",?", len(opts.Types)-1) + `)`)
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}

	if opts.Where != "" {
		sb.WriteString(` AND (` + opts.Where + `)`)
		args = append(args, opts.WhereArgs...)
	}

	if opts.OrderBy != "" {
		sb.WriteString(` ORDER BY ` + opts.OrderBy)
	} else {
		sb.WriteString(` ORDER BY time DESC`)
	}

	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)

		if opts.Offset > 0 {
			sb.WriteString(` OFFSET ?`)
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			s.logger.Warn("skipping unscannable row", slog.String("error", err.Error()))
			continue
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query rows: %w", err)
	}

	return entries, nil
}

// InsertWithDedup inserts a new entry unless a semantically equal row
// already exists. The match is type-specific: text-likes by exact value,
// colours by RGB distance, images by blob content hash, file lists by
// sorted path equality. On a hit the existing row's time is bumped, its
// count accumulates the new event's count, and it is marked changed; the
// returned bool is true. Otherwise a new row is inserted with status
// not_synced.
func (s *Store) InsertWithDedup(e *Entry) (string, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	if e.Group == "" {
		e.Group = GroupForType(e.Type)
	}

	if e.Time == 0 {
		e.Time = s.now()
	}

	existing, err := s.findDuplicate(e)
	if err != nil {
		return "", false, err
	}

	if existing != nil {
		if err := s.touchDuplicate(existing, e); err != nil {
			return "", false, err
		}

		return existing.ID, true, nil
	}

	if err := s.insert(e); err != nil {
		return "", false, err
	}

	return e.ID, false, nil
}

// findDuplicate locates a prior non-deleted row semantically equal to e.
func (s *Store) findDuplicate(e *Entry) (*Entry, error) {
	// Colours match by distance in RGB space, not by literal value, so
	// "#ff0000" and "rgb(255, 0, 0)" land on the same row.
	if e.Subtype == detect.SubtypeColor && e.Search != "" {
		id, err := s.FindSimilarColor(e.Search)
		if err != nil {
			return nil, err
		}

		if id != "" {
			return s.GetByID(id)
		}

		return nil, nil
	}

	switch e.Type {
	case TypeText, TypeCode, TypeFormatted:
		return s.findByValue(e.Type, e.Value)

	case TypeImage:
		hash, err := fileMD5(e.Value)
		if err != nil {
			// Unreadable blob: fall back to exact path match.
			return s.findByValue(e.Type, e.Value)
		}

		e.Search = hash

		return s.findBySearch(TypeImage, hash)

	case TypeFiles:
		key := sortedPathKey(e.FilePaths())

		candidates, err := s.Query(QueryOptions{ExcludeDeleted: true, Types: []string{TypeFiles}})
		if err != nil {
			return nil, err
		}

		for _, c := range candidates {
			if sortedPathKey(c.FilePaths()) == key {
				return c, nil
			}
		}

		return nil, nil
	}

	return nil, nil
}

// findByValue matches on exact type and value. Colours never reach it;
// findDuplicate matches them by RGB distance first.
func (s *Store) findByValue(entryType, value string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT `+entryColumns+` FROM history WHERE deleted = 0 AND type = ? AND value = ? LIMIT 1`,
		entryType, value,
	)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: dedup lookup: %w", err)
	}

	return e, nil
}

// findBySearch matches on the normalised search column (image hashes).
func (s *Store) findBySearch(entryType, search string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT `+entryColumns+` FROM history WHERE deleted = 0 AND type = ? AND search = ? LIMIT 1`,
		entryType, search,
	)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: dedup lookup: %w", err)
	}

	return e, nil
}

// FindSimilarColor returns the id of an existing colour entry within the
// dedup tolerance of normalized ("R, G, B"), or "" when none matches.
func (s *Store) FindSimilarColor(normalized string) (string, error) {
	rows, err := s.db.Query(
		`SELECT id, search FROM history WHERE deleted = 0 AND subtype = ? AND search IS NOT NULL`,
		detect.SubtypeColor,
	)
	if err != nil {
		return "", fmt.Errorf("store: color lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, search string
		if err := rows.Scan(&id, &search); err != nil {
			continue
		}

		if detect.SimilarColor(normalized, search) {
			return id, nil
		}
	}

	return "", rows.Err()
}

// touchDuplicate applies a dedup hit: bump time, accumulate count, mark
// changed.
func (s *Store) touchDuplicate(existing, incoming *Entry) error {
	now := s.now()

	_, err := s.db.Exec(
		`UPDATE history SET time = ?, count = count + ?, syncStatus = ? WHERE id = ?`,
		now, incoming.Count, StatusChanged, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("store: touching duplicate %s: %w", existing.ID, err)
	}

	s.Tracker.Mark(existing.ID)

	// The incoming event's blob is redundant; the existing row keeps its
	// file. Remove the new one so the cache doesn't accumulate orphans.
	if incoming.Type == TypeImage && incoming.Value != existing.Value && incoming.Value != "" {
		if err := os.Remove(incoming.Value); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing redundant blob", slog.String("path", incoming.Value), slog.String("error", err.Error()))
		}
	}

	return nil
}

// insert writes a brand-new row and initialises position from rowid.
func (s *Store) insert(e *Entry) error {
	e.SyncStatus = StatusNotSynced

	_, err := s.db.Exec(
		`INSERT INTO history (id, type, subtype, [group], value, search, count,
			width, height, favorite, note, time, deleted, syncStatus,
			sourceAppName, sourceAppIcon, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, 0)`,
		e.ID, e.Type, nullIfEmpty(e.Subtype), e.Group, e.Value, nullIfEmpty(e.Search),
		e.Count, nullIfZero(e.Width), nullIfZero(e.Height), boolToInt(e.Favorite),
		nullIfEmpty(e.Note), e.Time, e.SyncStatus,
		nullIfEmpty(e.SourceAppName), nullIfEmpty(e.SourceAppIcon),
	)
	if err != nil {
		return fmt.Errorf("store: inserting %s: %w", e.ID, err)
	}

	// Position is a stable ordering key seeded from rowid.
	if _, err := s.db.Exec(`UPDATE history SET position = rowid WHERE id = ?`, e.ID); err != nil {
		return fmt.Errorf("store: seeding position for %s: %w", e.ID, err)
	}

	return nil
}

// UpdateField updates a single column. Semantic fields additionally bump
// time, move synced rows to changed, and mark the change tracker.
func (s *Store) UpdateField(id, field string, value any) error {
	if !updatableFields[field] {
		return fmt.Errorf("store: field %q is not updatable", field)
	}

	if b, ok := value.(bool); ok {
		value = boolToInt(b)
	}

	if !semanticFields[field] {
		_, err := s.db.Exec(`UPDATE history SET `+field+` = ? WHERE id = ?`, value, id)
		if err != nil {
			return fmt.Errorf("store: updating %s.%s: %w", id, field, err)
		}

		return nil
	}

	res, err := s.db.Exec(
		`UPDATE history SET `+field+` = ?, time = ?,
			syncStatus = CASE WHEN syncStatus = ? THEN ? ELSE syncStatus END
		WHERE id = ?`,
		value, s.now(), StatusSynced, StatusChanged, id,
	)
	if err != nil {
		return fmt.Errorf("store: updating %s.%s: %w", id, field, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.Tracker.Mark(id)

	return nil
}

// SoftDelete marks a row deleted, bumps time, and marks the tracker so the
// next sync cycle propagates the removal. Image blobs are removed from the
// cache immediately; the row survives until a cycle deletes it remotely.
func (s *Store) SoftDelete(id string) error {
	return s.BatchSoftDelete([]string{id})
}

// BatchSoftDelete soft-deletes several rows in one statement.
func (s *Store) BatchSoftDelete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.removeBlobs(ids)

	args := make([]any, 0, len(ids)+1)
	args = append(args, s.now())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(
		`UPDATE history SET deleted = 1, time = ? WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: soft delete: %w", err)
	}

	for _, id := range ids {
		s.Tracker.Mark(id)
	}

	return nil
}

// HardDelete removes a row outright.
func (s *Store) HardDelete(id string) error {
	return s.BatchHardDelete([]string{id})
}

// BatchHardDelete removes several rows outright.
func (s *Store) BatchHardDelete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.removeBlobs(ids)

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(
		`DELETE FROM history WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: hard delete: %w", err)
	}

	for _, id := range ids {
		s.Tracker.Clear(id)
	}

	return nil
}

// DeleteAuto picks the delete strategy per row: synced rows are
// soft-deleted (the removal must still propagate to the server), everything
// else is hard-deleted because it never reached the server.
func (s *Store) DeleteAuto(ids []string) error {
	var soft, hard []string

	for _, id := range ids {
		e, err := s.GetByID(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if e.SyncStatus == StatusSynced {
			soft = append(soft, id)
		} else {
			hard = append(hard, id)
		}
	}

	if err := s.BatchSoftDelete(soft); err != nil {
		return err
	}

	return s.BatchHardDelete(hard)
}

// removeBlobs best-effort deletes the cached blob files of image rows.
func (s *Store) removeBlobs(ids []string) {
	for _, id := range ids {
		e, err := s.GetByID(id)
		if err != nil || e.Type != TypeImage || e.Value == "" {
			continue
		}

		if err := os.Remove(e.Value); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing blob", slog.String("path", e.Value), slog.String("error", err.Error()))
		}
	}
}

// UpdateSyncStatus sets the sync status of a single row.
func (s *Store) UpdateSyncStatus(id, status string) error {
	return s.BatchUpdateSyncStatus([]string{id}, status)
}

// BatchUpdateSyncStatus sets the sync status of several rows.
func (s *Store) BatchUpdateSyncStatus(ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(
		`UPDATE history SET syncStatus = ? WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("store: updating sync status: %w", err)
	}

	return nil
}

// UpsertFromCloud merges a remote item by id. Existing rows are overwritten
// and revived (deleted=0); missing rows are inserted. Either way the row
// lands in synced and its change flag is cleared — the remote copy is
// canonical at this instant.
func (s *Store) UpsertFromCloud(item SyncItem) error {
	now := item.Time
	if now == 0 {
		now = s.now()
	}

	res, err := s.db.Exec(
		`UPDATE history SET type = ?, subtype = ?, value = ?, favorite = ?,
			note = ?, time = ?, syncStatus = ?, deleted = 0
		WHERE id = ?`,
		item.Type, nullIfEmpty(item.Subtype), item.Value, boolToInt(item.Favorite),
		nullIfEmpty(item.Note), now, StatusSynced, item.ID,
	)
	if err != nil {
		return fmt.Errorf("store: upserting %s: %w", item.ID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		e := &Entry{
			ID:       item.ID,
			Type:     item.Type,
			Subtype:  item.Subtype,
			Group:    GroupForType(item.Type),
			Value:    item.Value,
			Count:    int64(len(item.Value)),
			Favorite: item.Favorite,
			Note:     item.Note,
			Time:     now,
		}

		if err := s.insert(e); err != nil {
			return err
		}

		if err := s.UpdateSyncStatus(item.ID, StatusSynced); err != nil {
			return err
		}
	}

	s.Tracker.Clear(item.ID)

	return nil
}

// Statistics returns store-level counts.
func (s *Store) Statistics() (Statistics, error) {
	var stats Statistics

	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM history`, &stats.Total},
		{`SELECT COUNT(*) FROM history WHERE deleted = 0`, &stats.Active},
		{`SELECT COUNT(*) FROM history WHERE syncStatus = 'synced'`, &stats.Synced},
		{`SELECT COUNT(*) FROM history WHERE favorite = 1 AND deleted = 0`, &stats.Favorites},
	}

	for _, q := range queries {
		if err := s.db.QueryRow(q.sql).Scan(q.dest); err != nil {
			return Statistics{}, fmt.Errorf("store: statistics: %w", err)
		}
	}

	return stats, nil
}

// boolToInt renders a bool as the 0/1 SQLite convention.
func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

// fileMD5 hashes a file's contents for image dedup and blob envelopes.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("store: opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // content addressing, not cryptography
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("store: hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileMD5 exposes the blob hash used for dedup and envelope checksums.
func FileMD5(path string) (string, error) {
	return fileMD5(path)
}
