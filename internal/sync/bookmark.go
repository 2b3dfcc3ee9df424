package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/webdav"
)

// BookmarkGroup is one named, coloured bookmark bucket.
type BookmarkGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// BookmarkSet is the bookmark-sync.json document: the groups plus a
// modification timestamp used for last-writer-wins reconciliation.
type BookmarkSet struct {
	Groups []BookmarkGroup `json:"groups"`
	Time   int64           `json:"time"`
}

// SyncBookmarks runs the independent single-file bookmark exchange: when
// the remote file is absent the local set is uploaded; otherwise the
// higher timestamp wins, and a tie with differing content goes to the
// remote copy.
func (e *Engine) SyncBookmarks(ctx context.Context) error {
	localPath := config.BookmarksPath(e.store.DataDir())

	local, localExists, err := readBookmarks(localPath)
	if err != nil {
		return err
	}

	remoteData, err := e.remote.Download(ctx, bookmarkFile)
	if errors.Is(err, webdav.ErrNotFound) {
		if !localExists {
			return nil
		}

		return e.uploadBookmarks(ctx, local)
	}
	if err != nil {
		return fmt.Errorf("sync: downloading bookmarks: %w", err)
	}

	var remote BookmarkSet
	if err := json.Unmarshal(remoteData, &remote); err != nil {
		return fmt.Errorf("sync: parsing remote bookmarks: %w", err)
	}

	switch {
	case !localExists || remote.Time > local.Time:
		return writeBookmarks(localPath, remote)

	case local.Time > remote.Time:
		return e.uploadBookmarks(ctx, local)

	default:
		// Equal timestamps: if the contents differ the remote copy is
		// canonical and overwrites the local file.
		if contentHash(string(remoteData)) != contentHash(mustEncode(local)) {
			e.logger.Info("bookmark tie broken by remote copy")
			return writeBookmarks(localPath, remote)
		}

		return nil
	}
}

// uploadBookmarks serialises and uploads the local set.
func (e *Engine) uploadBookmarks(ctx context.Context, set BookmarkSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("sync: encoding bookmarks: %w", err)
	}

	if err := e.remote.Upload(ctx, bookmarkFile, data, "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("sync: uploading bookmarks: %w", err)
	}

	e.logger.Info("bookmarks uploaded", slog.Int("groups", len(set.Groups)))

	return nil
}

// readBookmarks loads the local bookmark cache; absence is not an error.
func readBookmarks(path string) (BookmarkSet, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return BookmarkSet{}, false, nil
	}
	if err != nil {
		return BookmarkSet{}, false, fmt.Errorf("sync: reading bookmarks: %w", err)
	}

	var set BookmarkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return BookmarkSet{}, false, fmt.Errorf("sync: parsing bookmarks: %w", err)
	}

	return set, true, nil
}

// writeBookmarks persists the set locally.
func writeBookmarks(path string, set BookmarkSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("sync: encoding bookmarks: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sync: writing bookmarks: %w", err)
	}

	return nil
}

// mustEncode renders a BookmarkSet for hashing; marshal cannot fail on
// this shape.
func mustEncode(set BookmarkSet) string {
	data, _ := json.Marshal(set)
	return string(data)
}
