package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Ruszero01/ecopaste-sync/internal/config"
	"github.com/Ruszero01/ecopaste-sync/internal/events"
	"github.com/Ruszero01/ecopaste-sync/internal/migrate"
	"github.com/Ruszero01/ecopaste-sync/internal/store"
	"github.com/Ruszero01/ecopaste-sync/internal/sync"
	"github.com/Ruszero01/ecopaste-sync/internal/webdav"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagDataDir string
	flagDev     bool
	flagVerbose bool
	flagDebug   bool
	flagQuiet   bool
)

// appContext bundles the resolved data directory, config document and
// logger. Created once in PersistentPreRunE.
type appContext struct {
	dataDir string
	dev     bool
	doc     *config.Document
	bus     *events.Bus
	logger  *slog.Logger
}

// app is populated by PersistentPreRunE before any RunE executes.
var app *appContext

// newRootCmd builds the fully-assembled root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ecopaste-sync",
		Short:   "Cross-device clipboard synchronization agent",
		Long:    "Watches the OS clipboard, records history in an embedded store, and reconciles it with a WebDAV server.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			slog.SetDefault(logger)

			dataDir := flagDataDir
			if dataDir == "" {
				dataDir = config.DataDir()
			}

			if dataDir == "" {
				return fmt.Errorf("cannot resolve a data directory; pass --data-dir")
			}

			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("creating data dir %s: %w", dataDir, err)
			}

			app = &appContext{
				dataDir: dataDir,
				dev:     flagDev,
				doc:     config.NewDocument(config.ConfigPath(dataDir, flagDev), logger),
				bus:     events.NewBus(logger),
				logger:  logger,
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: per-OS application data dir)")
	cmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "use the dev-mode store and config files")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "log warnings and errors only")

	cmd.AddCommand(
		newWatchCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newCleanupCmd(),
		newMigrateCmd(),
		newConfigCmd(),
	)

	return cmd
}

// buildLogger selects handler and level from the flags and the terminal:
// human-readable text on TTYs, JSON elsewhere.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// openStore runs the startup sequence shared by every store-touching
// command: the migration gate first, then the store itself.
func openStore(ac *appContext) (*store.Store, error) {
	check, err := migrate.Check(ac.dataDir, ac.dev)
	if err != nil {
		return nil, err
	}

	switch check.Status {
	case migrate.StatusFailed:
		return nil, migrate.ErrMarkerBlocked

	case migrate.StatusNeedMigration:
		ac.logger.Info("legacy store detected, migrating",
			slog.Int("items", check.ItemsToMigrate),
		)

		if _, err := migrate.Perform(ac.dataDir, ac.dev, ac.bus, ac.logger); err != nil {
			return nil, err
		}
	}

	return store.Open(config.DatabasePath(ac.dataDir, ac.dev), ac.dataDir, ac.logger)
}

// newEngine assembles the sync engine from the configured WebDAV target.
func newEngine(ac *appContext, st *store.Store) (*sync.Engine, error) {
	server := ac.doc.Server()
	if server.URL == "" {
		return nil, fmt.Errorf("no WebDAV server configured; set globalStore.cloudSync.serverConfig.url")
	}

	client := webdav.NewClient(webdav.Config{
		URL:      server.URL,
		Username: server.Username,
		Password: server.Password,
		Path:     server.Path,
		Timeout:  server.Timeout,
	}, ac.logger)

	return sync.NewEngine(st, client, ac.doc, ac.bus, ac.logger), nil
}
