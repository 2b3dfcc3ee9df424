package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates the document cache whenever the config file changes on
// disk, so edits made by the user (or by config download) are picked up
// without a restart. Watches the parent directory because editors replace
// the file via rename, which drops a watch on the file itself. Blocks until
// ctx is cancelled.
func (d *Document) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	base := filepath.Base(d.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != base {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				d.logger.Debug("config file changed, invalidating cache",
					slog.String("op", event.Op.String()),
				)
				d.Invalidate()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			d.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
