package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSyncCmd runs one reconciliation cycle, optionally including the
// bookmark exchange and the manual config mirror.
func newSyncCmd() *cobra.Command {
	var (
		withBookmarks  bool
		uploadConfig   bool
		downloadConfig bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the configured WebDAV server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(app)
			if err != nil {
				return err
			}
			defer st.Close()

			engine, err := newEngine(app, st)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			switch {
			case uploadConfig:
				return engine.UploadConfig(ctx)
			case downloadConfig:
				return engine.DownloadConfig(ctx)
			}

			report, err := engine.RunCycle(ctx)
			if err != nil {
				return err
			}

			if withBookmarks {
				if err := engine.SyncBookmarks(ctx); err != nil {
					return err
				}
			}

			fmt.Printf("uploaded %d, downloaded %d, deleted %d (%s)\n",
				report.Uploaded, report.Downloaded, report.Deleted, report.Duration.Round(timeRound))

			if len(report.Conflicts) > 0 {
				fmt.Printf("%d conflict(s) deferred for review\n", len(report.Conflicts))
			}

			for _, msg := range report.Errors {
				fmt.Println("warning:", msg)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&withBookmarks, "bookmarks", false, "also run the bookmark exchange")
	cmd.Flags().BoolVar(&uploadConfig, "upload-config", false, "mirror the local config to the server and exit")
	cmd.Flags().BoolVar(&downloadConfig, "download-config", false, "overwrite the local config from the server and exit")

	return cmd
}
