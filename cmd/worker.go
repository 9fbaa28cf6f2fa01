package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clubgallery/photoflow/internal/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the processing worker",
	Long: `Start the photo processing worker.
The worker claims queued photos, extracts metadata, checks for
duplicates, matches events and faces, renders derivatives and
synthesizes tags. Several workers can run against the same database;
the queue lease keeps them off each other's photos.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor, err := a.newProcessor(ctx)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("shutdown signal received")
		cancel()
	}()

	go a.refresher.Run(ctx)

	worker := pipeline.NewWorker(a.logger, a.queue, processor, a.photos, &a.cfg.Worker)
	worker.Run(ctx)
	return nil
}
