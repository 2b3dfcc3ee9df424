package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	stdsync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
)

// blobParallelism caps concurrent blob transfers per cycle.
const blobParallelism = 5

// Sentinel errors for blob transfer outcomes.
var (
	// ErrBlobMissing reports a local blob file absent at upload time.
	ErrBlobMissing = errors.New("sync: local blob missing")
	// ErrChecksumMismatch reports a downloaded blob whose hash differs
	// from its envelope.
	ErrChecksumMismatch = errors.New("sync: blob checksum mismatch")
)

// Envelope is the small JSON object embedded in a blob entry's index
// value, carrying the remote path and content address.
type Envelope struct {
	RemotePath string `json:"remotePath"`
	Checksum   string `json:"checksum"`
	FileSize   int64  `json:"fileSize,omitempty"`
	Width      int64  `json:"width,omitempty"`
	Height     int64  `json:"height,omitempty"`
}

// parseEnvelope decodes an index value as an Envelope. Local path values
// and JSON path arrays fail the parse, which is how blob entries are told
// apart from plain ones.
func parseEnvelope(value string) (Envelope, bool) {
	if len(value) == 0 || value[0] != '{' {
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil || env.RemotePath == "" {
		return Envelope{}, false
	}

	return env, true
}

// remoteBlobPath derives the remote location for an entry's blob.
func remoteBlobPath(id, localPath string) string {
	return path.Join(blobDir, id+"_"+filepath.Base(localPath))
}

// isBlobEntry reports whether the entry type carries a file blob.
func isBlobEntry(entryType string) bool {
	return entryType == store.TypeImage || entryType == store.TypeFiles
}

// localBlobPath extracts the local file backing an entry: the value itself
// for images, the first listed path for file lists.
func localBlobPath(e *store.Entry) string {
	if e.Type == store.TypeFiles {
		paths := e.FilePaths()
		if len(paths) == 0 {
			return ""
		}

		return paths[0]
	}

	return e.Value
}

// uploadBlobs uploads the blob of every image/files entry in the upload
// set and rewrites that entry's index value to an envelope. Plain entries
// pass through untouched. A failed item is dropped from the result — it
// stays pending (a missing local file resets it to not_synced) and retries
// next cycle — and its error recorded.
func (e *Engine) uploadBlobs(ctx context.Context, uploads []*store.Entry) ([]store.SyncItem, []string) {
	var (
		mu      stdsync.Mutex
		items   []store.SyncItem
		errMsgs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobParallelism)

	for _, entry := range uploads {
		if !isBlobEntry(entry.Type) {
			mu.Lock()
			items = append(items, entry.ToSyncItem())
			mu.Unlock()

			continue
		}

		entry := entry
		g.Go(func() error {
			item, err := e.uploadOneBlob(gctx, entry)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errMsgs = append(errMsgs, err.Error())
				return nil // per-item failure, not a cycle failure
			}

			items = append(items, item)

			return nil
		})
	}

	_ = g.Wait()

	return items, errMsgs
}

// uploadOneBlob uploads a single entry's blob and builds its envelope.
func (e *Engine) uploadOneBlob(ctx context.Context, entry *store.Entry) (store.SyncItem, error) {
	localPath := localBlobPath(entry)
	if localPath == "" {
		return store.SyncItem{}, fmt.Errorf("%w: %s has no local path", ErrBlobMissing, entry.ID)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		// The row stays pending; drop it back to not_synced so nothing
		// assumes the server has it.
		if statusErr := e.store.UpdateSyncStatus(entry.ID, store.StatusNotSynced); statusErr != nil {
			e.logger.Warn("resetting status for missing blob", slog.String("id", entry.ID), slog.String("error", statusErr.Error()))
		}

		return store.SyncItem{}, fmt.Errorf("%w: %s: %v", ErrBlobMissing, localPath, err)
	}

	checksum, err := store.FileMD5(localPath)
	if err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: hashing blob %s: %w", localPath, err)
	}

	remotePath := remoteBlobPath(entry.ID, localPath)

	if err := e.remote.Upload(ctx, remotePath, data, "application/octet-stream"); err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: uploading blob %s: %w", remotePath, err)
	}

	env := Envelope{
		RemotePath: remotePath,
		Checksum:   checksum,
		FileSize:   int64(len(data)),
		Width:      entry.Width,
		Height:     entry.Height,
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: encoding envelope for %s: %w", entry.ID, err)
	}

	item := entry.ToSyncItem()
	item.Value = string(encoded)

	return item, nil
}

// downloadBlobs fetches the blob of every envelope-valued item in the
// download set and rewrites the item's value to the local cache path.
// Plain items pass through. Failed items are dropped (retried next cycle).
func (e *Engine) downloadBlobs(ctx context.Context, downloads []store.SyncItem) ([]store.SyncItem, []string) {
	var (
		mu      stdsync.Mutex
		items   []store.SyncItem
		errMsgs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobParallelism)

	for _, item := range downloads {
		env, ok := parseEnvelope(item.Value)
		if !ok {
			mu.Lock()
			items = append(items, item)
			mu.Unlock()

			continue
		}

		item := item
		g.Go(func() error {
			localItem, err := e.downloadOneBlob(gctx, item, env)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errMsgs = append(errMsgs, err.Error())
				return nil
			}

			items = append(items, localItem)

			return nil
		})
	}

	_ = g.Wait()

	return items, errMsgs
}

// downloadOneBlob fetches one blob, verifies its checksum, and rewrites
// the item value to the cached local path. A corrupt download is removed
// so the next cycle re-fetches it.
func (e *Engine) downloadOneBlob(ctx context.Context, item store.SyncItem, env Envelope) (store.SyncItem, error) {
	data, err := e.remote.Download(ctx, env.RemotePath)
	if err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: downloading blob %s: %w", env.RemotePath, err)
	}

	dir := config.FilesDir(e.store.DataDir())
	if item.Type == store.TypeImage {
		dir = config.ImagesDir(e.store.DataDir())
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: creating blob dir: %w", err)
	}

	localPath := filepath.Join(dir, path.Base(env.RemotePath))

	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return store.SyncItem{}, fmt.Errorf("sync: writing blob %s: %w", localPath, err)
	}

	if env.Checksum != "" {
		actual, err := store.FileMD5(localPath)
		if err != nil {
			return store.SyncItem{}, err
		}

		if actual != env.Checksum {
			if rmErr := os.Remove(localPath); rmErr != nil {
				e.logger.Warn("removing corrupt blob", slog.String("path", localPath), slog.String("error", rmErr.Error()))
			}

			return store.SyncItem{}, fmt.Errorf("%w: %s: want %s got %s", ErrChecksumMismatch, env.RemotePath, env.Checksum, actual)
		}
	}

	item.Value = localPath

	return item, nil
}
