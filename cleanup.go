package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCleanupCmd runs the retention and blob-cache sweep on demand.
func newCleanupCmd() *cobra.Command {
	var (
		retainDays  int
		retainCount int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention rule and remove orphaned blob files",
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := openStore(app)
			if err != nil {
				return err
			}
			defer st.Close()

			rule := app.doc.RetentionRule()

			// Flags override the configured rule for one-off sweeps.
			if retainDays >= 0 {
				rule.RetainDays = retainDays
			}

			if retainCount >= 0 {
				rule.RetainCount = retainCount
			}

			result, err := st.Cleanup(rule)
			if err != nil {
				return err
			}

			fmt.Printf("expired %d by age, %d over the cap, removed %d orphaned blob(s)\n",
				result.ExpiredRows, result.ExcessRows, result.OrphanedBlobs)

			return nil
		},
	}

	cmd.Flags().IntVar(&retainDays, "retain-days", -1, "override the configured retention window")
	cmd.Flags().IntVar(&retainCount, "retain-count", -1, "override the configured retention cap")

	return cmd
}