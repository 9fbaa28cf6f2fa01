package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clubgallery/photoflow/internal/pipeline"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Inspect and manage individual photos",
}

var photoInfoCmd = &cobra.Command{
	Use:   "info <photo-id>",
	Short: "Print a photo's record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		photo, err := a.photos.GetByID(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id:           %s\n", photo.ID)
		fmt.Printf("status:       %s\n", photo.Status)
		fmt.Printf("filename:     %s\n", photo.OriginalFilename)
		fmt.Printf("content hash: %s\n", photo.ContentHash)
		if photo.CapturedAt != nil {
			source := "exif"
			if photo.CapturedFromMtime {
				source = "file mtime"
			}
			fmt.Printf("captured at:  %s (%s)\n", photo.CapturedAt.Format("2006-01-02 15:04:05"), source)
		}
		if photo.EventID != nil {
			fmt.Printf("event id:     %d\n", *photo.EventID)
		}
		if photo.DuplicateOf != nil {
			fmt.Printf("duplicate of: %s\n", *photo.DuplicateOf)
		}
		if photo.NearDuplicate {
			fmt.Printf("near duplicate: yes\n")
		}
		if photo.Caption != nil {
			fmt.Printf("caption:      %s\n", *photo.Caption)
		}

		faces, err := a.faces.FacesByPhoto(ctx, photo.ID)
		if err != nil {
			return err
		}
		fmt.Printf("faces:        %d\n", len(faces))
		for _, f := range faces {
			line := fmt.Sprintf("  #%d band=%s", f.FaceIndex, f.MatchBand)
			if f.ConfirmedMemberID != nil {
				line += fmt.Sprintf(" confirmed=%d", *f.ConfirmedMemberID)
			} else if f.MatchedMemberID != nil {
				line += fmt.Sprintf(" member=%d dist=%.3f", *f.MatchedMemberID, *f.MatchDistance)
			}
			if f.IsGuest {
				line += " guest"
			}
			fmt.Println(line)
		}

		tags, err := a.tags.TagsByPhoto(ctx, photo.ID)
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Printf("  tag %s (%s)\n", t.Tag, t.TagType)
		}
		return nil
	},
}

var photoReprocessCmd = &cobra.Command{
	Use:   "reprocess <photo-id>",
	Short: "Send a photo back through the processing pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force := mustGetBool(cmd, "force")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		photo, err := a.photos.GetByID(ctx, args[0])
		if err != nil {
			return err
		}

		current := pipeline.Status(photo.Status)
		allowed := current.CanTransitionTo(pipeline.StatusQueued)
		if !allowed && force {
			allowed = current.CanForceReprocess()
		}
		if !allowed {
			if current.Final() {
				return fmt.Errorf("photo in final status %s, use --force to discard the decision and reprocess", photo.Status)
			}
			return fmt.Errorf("photo in status %s cannot be reprocessed", photo.Status)
		}
		if err := a.photos.SetStatus(ctx, photo.ID, string(pipeline.StatusQueued)); err != nil {
			return err
		}
		if err := a.queue.Enqueue(ctx, photo.ID); err != nil {
			return err
		}
		fmt.Printf("photo %s queued for reprocessing\n", photo.ID)
		return nil
	},
}

func init() {
	photoReprocessCmd.Flags().Bool("force", false, "reprocess even an approved, rejected or duplicate photo")

	rootCmd.AddCommand(photoCmd)
	photoCmd.AddCommand(photoInfoCmd)
	photoCmd.AddCommand(photoReprocessCmd)
}
