package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the processing queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth per state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := a.queue.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("reading queue stats: %w", err)
		}
		fmt.Printf("queued: %d\n", stats.Queued)
		fmt.Printf("leased: %d\n", stats.Leased)
		fmt.Printf("done:   %d\n", stats.Done)
		fmt.Printf("failed: %d\n", stats.Failed)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Requeue all permanently failed photos",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.queue.RetryFailed(context.Background())
		if err != nil {
			return fmt.Errorf("retrying failed entries: %w", err)
		}
		fmt.Printf("requeued %d failed entries\n", n)
		return nil
	},
}

var queueCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed queue entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		olderThan, err := time.ParseDuration(mustGetString(cmd, "older-than"))
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}

		n, err := a.queue.Cleanup(context.Background(), olderThan)
		if err != nil {
			return fmt.Errorf("cleaning up queue: %w", err)
		}
		fmt.Printf("deleted %d completed entries\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueCleanupCmd)

	queueCleanupCmd.Flags().String("older-than", "168h", "Age threshold for completed entries")
}
