package clipboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"  // registered for decoding copied images
	_ "image/jpeg" // registered for decoding copied images
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/detect"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
)

// Ingester turns clipboard snapshots into history entries. Stateless apart
// from its handles; the Watcher drives it.
type Ingester struct {
	store  *store.Store
	doc    *config.Document
	source SourceTracker
	logger *slog.Logger
}

// NewIngester wires an Ingester. source may be nil for platforms without a
// window API.
func NewIngester(st *store.Store, doc *config.Document, source SourceTracker, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}

	if source == nil {
		source = NoopTracker{}
	}

	return &Ingester{store: st, doc: doc, source: source, logger: logger}
}

// Ingest classifies one snapshot in format priority order, deduplicates it
// into the store, and returns (id, isUpdate). Dropped events return
// ErrRejected.
func (in *Ingester) Ingest(ctx context.Context, snap Snapshot) (string, bool, error) {
	entry, err := in.buildEntry(ctx, snap)
	if err != nil {
		return "", false, err
	}

	id, isUpdate, err := in.store.InsertWithDedup(entry)
	if err != nil {
		return "", false, err
	}

	return id, isUpdate, nil
}

// buildEntry walks the format priority ladder: image, file list, RTF,
// HTML, plain text.
func (in *Ingester) buildEntry(ctx context.Context, snap Snapshot) (*store.Entry, error) {
	opts := in.doc.ContentOptions()

	appName, appIcon := in.sourceApp(ctx, opts)
	if appName != "" && in.blacklisted(appName) {
		return nil, fmt.Errorf("%w: source app %q blacklisted", ErrRejected, appName)
	}

	base := &store.Entry{
		ID:            uuid.NewString(),
		SourceAppName: appName,
		SourceAppIcon: appIcon,
	}

	switch {
	case len(snap.Image) > 0:
		return in.imageEntry(base, snap.Image)

	case len(snap.Files) > 0:
		if allImageFiles(snap.Files) {
			data, err := os.ReadFile(snap.Files[0])
			if err == nil {
				return in.imageEntry(base, data)
			}

			in.logger.Warn("unreadable copied image file, treating as file list",
				slog.String("path", snap.Files[0]),
				slog.String("error", err.Error()),
			)
		}

		return in.filesEntry(base, snap.Files)

	case snap.RTF != "" && !opts.CopyPlain:
		base.Type = store.TypeFormatted
		base.Subtype = "rtf"
		base.Value = snap.RTF
		base.Count = int64(len(snap.RTF))

		return base, nil

	case snap.HTML != "" && !opts.CopyPlain:
		base.Type = store.TypeFormatted
		base.Subtype = "html"
		base.Value = snap.HTML
		base.Count = int64(len(snap.HTML))

		return base, nil

	case strings.TrimSpace(snap.Text) != "":
		return in.textEntry(base, snap.Text, opts)
	}

	return nil, fmt.Errorf("%w: no supported format present", ErrRejected)
}

// sourceApp captures the foreground app when the toggle is on.
func (in *Ingester) sourceApp(ctx context.Context, opts config.Content) (string, string) {
	if !opts.ShowSourceApp {
		return "", ""
	}

	info, err := in.source.CurrentWindow(ctx)
	if err != nil {
		in.logger.Debug("source app capture failed", slog.String("error", err.Error()))
		return "", ""
	}

	return info.Name, info.Icon
}

// blacklisted checks the app name against clipboardStore.shortcutBlacklist.
func (in *Ingester) blacklisted(appName string) bool {
	lower := strings.ToLower(appName)
	for _, entry := range in.doc.ShortcutBlacklist() {
		if strings.ToLower(entry) == lower {
			return true
		}
	}

	return false
}

// textEntry builds a text entry, running subtype detection.
func (in *Ingester) textEntry(base *store.Entry, text string, opts config.Content) (*store.Entry, error) {
	detection := detect.Detect(text, detect.Options{
		URL:           true,
		Email:         true,
		Path:          true,
		Color:         opts.ColorDetection,
		Code:          opts.CodeDetection,
		Markdown:      true,
		CodeMinLength: 10,
	})

	base.Type = store.TypeText
	base.Value = text
	base.Count = int64(len(text))

	switch {
	case detection.IsCode:
		base.Type = store.TypeCode
		base.Subtype = detection.CodeLanguage

	case detection.IsMarkdown:
		base.Type = store.TypeFormatted
		base.Subtype = detect.SubtypeMarkdown

	case detection.Subtype != "":
		base.Subtype = detection.Subtype
		base.Search = detection.ColorNormalized
	}

	base.Group = store.GroupForType(base.Type)

	return base, nil
}

// imageEntry re-encodes the raster data to PNG inside the managed cache
// and records pixel dimensions and byte size.
func (in *Ingester) imageEntry(base *store.Entry, data []byte) (*store.Entry, error) {
	dir := config.ImagesDir(in.store.DataDir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clipboard: creating image dir: %w", err)
	}

	path := filepath.Join(dir, base.ID+".png")

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image data: %v", ErrRejected, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("clipboard: encoding png: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("clipboard: writing image blob: %w", err)
	}

	bounds := img.Bounds()

	base.Type = store.TypeImage
	base.Group = store.GroupImage
	base.Value = path
	base.Count = int64(buf.Len())
	base.Width = int64(bounds.Dx())
	base.Height = int64(bounds.Dy())

	return base, nil
}

// filesEntry records a copied file list: value is the JSON path array,
// search the space-joined list, count the first file's size.
func (in *Ingester) filesEntry(base *store.Entry, paths []string) (*store.Entry, error) {
	encoded, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("clipboard: encoding file list: %w", err)
	}

	var firstSize int64
	if info, err := os.Stat(paths[0]); err == nil {
		firstSize = info.Size()
	}

	base.Type = store.TypeFiles
	base.Group = store.GroupFiles
	base.Value = string(encoded)
	base.Search = strings.Join(paths, " ")
	base.Count = firstSize

	return base, nil
}
