package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrUnavailable reports a missing or malformed config document. Callers
// are expected to fall back to defaults; the engine never refuses to start
// over config problems.
var ErrUnavailable = errors.New("config: document unavailable")

// Document provides cached, thread-safe access to the user-editable JSON
// config file. Reads resolve dot-paths against an in-memory snapshot;
// writes go through a save-then-invalidate path so the next read reloads
// from disk. The document is intentionally untyped: users edit it by hand
// and partial documents are normal, so typed structs exist only at the
// specific consumption points that need defaulting.
type Document struct {
	mu     sync.RWMutex
	path   string
	raw    string // cached JSON; empty means not loaded
	logger *slog.Logger
}

// NewDocument creates a Document backed by the file at path. The file is
// not touched until the first read or write.
func NewDocument(path string, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}

	return &Document{path: path, logger: logger}
}

// Path returns the config file path. Immutable after construction.
func (d *Document) Path() string {
	return d.path
}

// load returns the cached document, reading it from disk on first use.
// Missing or unparsable files fall back to the default document with a
// warning; the returned error wraps ErrUnavailable in that case so callers
// that care can tell, but the result is always usable.
func (d *Document) load() (string, error) {
	d.mu.RLock()
	if d.raw != "" {
		raw := d.raw
		d.mu.RUnlock()
		return raw, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Another goroutine may have loaded while we waited for the write lock.
	if d.raw != "" {
		return d.raw, nil
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		d.logger.Warn("config file unreadable, using defaults",
			slog.String("path", d.path),
			slog.String("error", err.Error()),
		)
		d.raw = defaultDocument

		return d.raw, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !gjson.ValidBytes(data) {
		d.logger.Warn("config file malformed, using defaults", slog.String("path", d.path))
		d.raw = defaultDocument

		return d.raw, fmt.Errorf("%w: invalid JSON", ErrUnavailable)
	}

	d.raw = string(data)

	return d.raw, nil
}

// Invalidate drops the cached snapshot so the next read reloads from disk.
// Called after writes and by the fsnotify watcher on external edits.
func (d *Document) Invalidate() {
	d.mu.Lock()
	d.raw = ""
	d.mu.Unlock()
}

// Get resolves a dot-path (e.g. "clipboardStore.content.copyPlain") against
// the document. A missing key yields a result with Exists() == false.
func (d *Document) Get(path string) gjson.Result {
	raw, _ := d.load()
	return gjson.Get(raw, path)
}

// GetPath resolves a path given as components, mirroring the nested-lookup
// shape the UI layer uses (["clipboardStore", "window", "position"]).
func (d *Document) GetPath(keys ...string) gjson.Result {
	return d.Get(strings.Join(keys, "."))
}

// Bool reads a boolean at path, returning def when absent.
func (d *Document) Bool(path string, def bool) bool {
	if r := d.Get(path); r.Exists() {
		return r.Bool()
	}

	return def
}

// Int reads an integer at path, returning def when absent.
func (d *Document) Int(path string, def int64) int64 {
	if r := d.Get(path); r.Exists() {
		return r.Int()
	}

	return def
}

// String reads a string at path, returning def when absent.
func (d *Document) String(path, def string) string {
	if r := d.Get(path); r.Exists() {
		return r.String()
	}

	return def
}

// Strings reads a string array at path. Absent paths yield nil.
func (d *Document) Strings(path string) []string {
	r := d.Get(path)
	if !r.Exists() || !r.IsArray() {
		return nil
	}

	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}

	return out
}

// Set writes value at the dot-path and persists the document. The cache is
// invalidated after a successful save so subsequent reads observe the new
// file contents (save-then-invalidate).
func (d *Document) Set(path string, value any) error {
	raw, _ := d.load()

	updated, err := sjson.Set(raw, path, value)
	if err != nil {
		return fmt.Errorf("config: setting %s: %w", path, err)
	}

	return d.Replace(updated)
}

// SetRaw writes a pre-encoded JSON fragment at the dot-path and persists.
func (d *Document) SetRaw(path, json string) error {
	raw, _ := d.load()

	updated, err := sjson.SetRaw(raw, path, json)
	if err != nil {
		return fmt.Errorf("config: setting %s: %w", path, err)
	}

	return d.Replace(updated)
}

// Replace persists a whole new document (used by config download, which
// overwrites the local file wholesale) and invalidates the cache.
func (d *Document) Replace(raw string) error {
	if !gjson.Valid(raw) {
		return fmt.Errorf("config: refusing to write invalid JSON to %s", d.path)
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("config: creating config dir: %w", err)
	}

	if err := os.WriteFile(d.path, []byte(raw), 0o600); err != nil {
		return fmt.Errorf("config: writing %s: %w", d.path, err)
	}

	d.Invalidate()

	return nil
}

// Raw returns the full document text (loading it if needed).
func (d *Document) Raw() string {
	raw, _ := d.load()
	return raw
}

// transientPaths are runtime fields stripped before the document is mirrored
// to the remote store-config.json. They describe this process, not the
// user's preferences.
var transientPaths = []string{
	"env",
	"globalStore.cloudSync.isSyncing",
	"globalStore.cloudSync.lastSyncTime",
	"clipboardStore.internalCopy",
}

// ExportForUpload returns the document with transient and environment
// fields removed, ready for upload as store-config.json.
func (d *Document) ExportForUpload() (string, error) {
	raw, _ := d.load()

	var err error
	for _, p := range transientPaths {
		raw, err = sjson.Delete(raw, p)
		if err != nil {
			return "", fmt.Errorf("config: stripping %s: %w", p, err)
		}
	}

	return raw, nil
}
