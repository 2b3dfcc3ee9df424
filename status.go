package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// timeRound trims sub-millisecond noise from printed durations.
const timeRound = time.Millisecond

// newStatusCmd prints store statistics and probes the server.
func newStatusCmd() *cobra.Command {
	var skipConnection bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show history statistics and server reachability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(app)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Statistics()
			if err != nil {
				return err
			}

			fmt.Printf("entries:    %d total, %d active\n", stats.Total, stats.Active)
			fmt.Printf("synced:     %d\n", stats.Synced)
			fmt.Printf("favorites:  %d\n", stats.Favorites)
			fmt.Printf("pending:    %d changed since last sync\n", st.Tracker.Count())

			if last := app.doc.LastSyncTime(); last > 0 {
				fmt.Printf("last sync:  %s\n", time.UnixMilli(last).Format(time.RFC3339))
			} else {
				fmt.Println("last sync:  never")
			}

			if skipConnection {
				return nil
			}

			engine, err := newEngine(app, st)
			if err != nil {
				fmt.Println("server:     not configured")
				return nil
			}

			result := engine.TestConnection(cmd.Context())
			if result.Connected {
				fmt.Printf("server:     reachable (HTTP %d, %s)\n", result.Status, result.Latency.Round(timeRound))
			} else {
				fmt.Printf("server:     unreachable (%s)\n", result.Message)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipConnection, "no-probe", false, "skip the server connection test")

	return cmd
}
