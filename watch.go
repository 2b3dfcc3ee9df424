package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ruszero01/ecopaste-sync/internal/clipboard"
	"github.com/Ruszero01/ecopaste-sync/internal/sync"
)

// newWatchCmd runs the long-lived agent: clipboard watcher, auto-sync
// scheduler, and config-file watcher, until SIGINT/SIGTERM.
func newWatchCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the clipboard and keep history in sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(app)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Config edits made while running invalidate the cache.
			go func() {
				if err := app.doc.Watch(ctx); err != nil {
					app.logger.Warn("config watcher exited", slog.String("error", err.Error()))
				}
			}()

			ingester := clipboard.NewIngester(st, app.doc, nil, app.logger)
			watcher := clipboard.NewWatcher(clipboard.CommandProvider{}, ingester, app.bus, app.logger)

			watcher.Start()
			defer watcher.Stop()

			var scheduler *sync.Scheduler

			if !noSync {
				engine, err := newEngine(app, st)
				if err != nil {
					app.logger.Warn("cloud sync disabled", slog.String("reason", err.Error()))
				} else {
					scheduler = sync.NewScheduler(func(ctx context.Context) error {
						_, err := engine.RunCycle(ctx)
						if errors.Is(err, sync.ErrBusy) {
							return nil
						}

						return err
					}, app.bus, app.logger)

					if settings := app.doc.AutoSyncSettings(); settings.Enabled {
						if err := scheduler.Start(settings.Interval); err != nil {
							return err
						}
					}
				}
			}

			if scheduler != nil {
				defer scheduler.Stop()
			}

			// On-demand retention sweep at startup; favorites survive.
			if _, err := st.Cleanup(app.doc.RetentionRule()); err != nil {
				app.logger.Warn("startup cleanup failed", slog.String("error", err.Error()))
			}

			app.logger.Info("agent running; press Ctrl-C to stop")
			<-ctx.Done()
			app.logger.Info("shutting down")

			return nil
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "watch and record only; never talk to the server")

	return cmd
}
