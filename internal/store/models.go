package store

import (
	"database/sql"
	"encoding/json"
	"sort"
)

// Entry types.
const (
	TypeText      = "text"
	TypeFormatted = "formatted"
	TypeCode      = "code"
	TypeImage     = "image"
	TypeFiles     = "files"
)

// Presentation groups, derived from the entry type.
const (
	GroupText  = "text"
	GroupImage = "image"
	GroupFiles = "files"
)

// Sync statuses. See the state machine in the Store docs: new rows start
// not_synced, a successful upload moves them to synced, any semantic write
// moves synced rows to changed.
const (
	StatusNotSynced = "not_synced"
	StatusSynced    = "synced"
	StatusChanged   = "changed"
)

// Entry is one clipboard history row.
type Entry struct {
	ID      string
	Type    string
	Subtype string
	Group   string
	// Value holds the content for text-like entries, the local blob path
	// for images, and a JSON array of paths for file lists.
	Value  string
	Search string
	// Count is the character count for text entries and the byte size for
	// image and file entries. Dedup hits accumulate it.
	Count    int64
	Width    int64
	Height   int64
	Favorite bool
	Note     string
	// Time is the last-modified wall clock in ms since epoch; it doubles as
	// the row order and bumps on every semantic change.
	Time          int64
	Deleted       bool
	SyncStatus    string
	SourceAppName string
	SourceAppIcon string
	Position      int64
}

// GroupForType derives the presentation bucket from the primary type.
func GroupForType(entryType string) string {
	switch entryType {
	case TypeImage:
		return GroupImage
	case TypeFiles:
		return GroupFiles
	default:
		return GroupText
	}
}

// SyncItem is the wire form stored in the remote index. The remote index
// carries no deleted entries; deletion is expressed by absence.
type SyncItem struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	Value    string `json:"value"`
	Favorite bool   `json:"favorite"`
	Note     string `json:"note,omitempty"`
	Time     int64  `json:"time"`
}

// ToSyncItem projects an entry onto its wire form.
func (e *Entry) ToSyncItem() SyncItem {
	return SyncItem{
		ID:       e.ID,
		Type:     e.Type,
		Subtype:  e.Subtype,
		Value:    e.Value,
		Favorite: e.Favorite,
		Note:     e.Note,
		Time:     e.Time,
	}
}

// FilePaths decodes the JSON path array of a files entry. A bare string
// value is treated as a single path for resilience against hand-edited
// stores.
func (e *Entry) FilePaths() []string {
	if e.Value == "" {
		return nil
	}

	if e.Value[0] == '[' {
		var paths []string
		if err := json.Unmarshal([]byte(e.Value), &paths); err == nil {
			return paths
		}
	}

	return []string{e.Value}
}

// sortedPathKey renders a files value as a canonical comparison key:
// the sorted path list re-encoded as JSON.
func sortedPathKey(paths []string) string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	b, err := json.Marshal(sorted)
	if err != nil {
		return ""
	}

	return string(b)
}

// QueryOptions filters a history query.
type QueryOptions struct {
	OnlyFavorites  bool
	ExcludeDeleted bool
	// Where is an extra raw condition ANDed into the query. Values must be
	// passed through WhereArgs, never interpolated.
	Where     string
	WhereArgs []any
	OrderBy   string
	Limit     int
	Offset    int
	// Types restricts results to the given entry types when non-empty.
	Types []string
}

// Statistics summarises the store contents.
type Statistics struct {
	Total     int
	Active    int
	Synced    int
	Favorites int
}

// nullIfEmpty maps "" to SQL NULL so optional text columns stay NULL
// instead of accumulating empty strings.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullIfZero maps 0 to SQL NULL for optional integer columns.
func nullIfZero(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
