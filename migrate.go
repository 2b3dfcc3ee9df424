package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ruszero01/ecopaste-sync/internal/migrate"
)

// newMigrateCmd groups the migration subcommands: check, run, clear.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or run the legacy store migration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Report whether a migration is needed",
			RunE: func(_ *cobra.Command, _ []string) error {
				result, err := migrate.Check(app.dataDir, app.dev)
				if err != nil {
					return err
				}

				fmt.Println("status:", result.Status)

				if result.OldVersion != "" {
					fmt.Println("old version:", result.OldVersion)
				}

				if len(result.RequiredMigrations) > 0 {
					fmt.Println("required:", strings.Join(result.RequiredMigrations, ", "))
					fmt.Println("items:", result.ItemsToMigrate)
				}

				for _, w := range result.Warnings {
					fmt.Println("warning:", w)
				}

				return nil
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the migration now",
			RunE: func(_ *cobra.Command, _ []string) error {
				result, err := migrate.Perform(app.dataDir, app.dev, app.bus, app.logger)
				if err != nil {
					return err
				}

				fmt.Printf("migrated %d item(s) in %s\n", result.MigratedItems, result.Duration.Round(timeRound))

				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Clear a failed migration marker so the next start retries",
			RunE: func(_ *cobra.Command, _ []string) error {
				return migrate.ClearMarker(app.dataDir, app.dev)
			},
		},
	)

	return cmd
}
