package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ruszero01/ecopaste-sync/internal/webdav"
)

// UploadConfig mirrors the local config document to the remote
// store-config.json after stripping transient and environment fields.
// Manual operation, triggered from the UI.
func (e *Engine) UploadConfig(ctx context.Context) error {
	exported, err := e.doc.ExportForUpload()
	if err != nil {
		return err
	}

	if err := e.remote.Upload(ctx, configFile, []byte(exported), "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("sync: uploading config: %w", err)
	}

	e.logger.Info("config uploaded")

	return nil
}

// DownloadConfig overwrites the local config document wholesale with the
// remote store-config.json. Manual operation, triggered from the UI.
func (e *Engine) DownloadConfig(ctx context.Context) error {
	data, err := e.remote.Download(ctx, configFile)
	if errors.Is(err, webdav.ErrNotFound) {
		return fmt.Errorf("sync: no remote config to download: %w", err)
	}
	if err != nil {
		return fmt.Errorf("sync: downloading config: %w", err)
	}

	if err := e.doc.Replace(string(data)); err != nil {
		return err
	}

	e.logger.Info("config downloaded and applied")

	return nil
}
