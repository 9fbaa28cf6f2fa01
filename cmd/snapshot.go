package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage the reference snapshot",
}

var snapshotSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull members, events and registrations from the membership database",
	Long: `Sync the local reference tables from the membership database replica.
The worker does this periodically on its own; this command runs one
sync by hand, typically after bootstrap or a membership data fix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.membership == nil {
			return errors.New("MEMBERSHIP_DATABASE_DSN environment variable is required")
		}

		bar := progressbar.Default(-1, "syncing events")
		err = a.refs.SyncFromMembership(context.Background(), a.membership, func() {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		if err != nil {
			return fmt.Errorf("syncing from membership database: %w", err)
		}

		fmt.Println("reference tables synced")
		return nil
	},
}

var snapshotInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the reference data counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		members, events, regs, encodings, err := a.refs.LoadAll(context.Background())
		if err != nil {
			return fmt.Errorf("loading reference data: %w", err)
		}
		fmt.Printf("members:       %d\n", len(members))
		fmt.Printf("events:        %d\n", len(events))
		fmt.Printf("registrations: %d\n", len(regs))
		fmt.Printf("encodings:     %d\n", len(encodings))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSyncCmd)
	snapshotCmd.AddCommand(snapshotInfoCmd)
}
