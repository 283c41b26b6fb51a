package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/media"
)

// defaultRecoverMessage is recorded on dreams failed by recover.
const defaultRecoverMessage = "processing interrupted"

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fail dreams left in PROCESSING by a crashed worker",
	Long: `Mark every dream that has been PROCESSING for longer than --older-than as
FAILED and remove any image already generated for it. Run it after an unclean
shutdown, while no server is processing dreams against the same database.`,
	RunE: runRecover,
}

var (
	recoverOlderThan time.Duration
	recoverMessage   string
)

func init() {
	recoverCmd.Flags().DurationVar(&recoverOlderThan, "older-than", 30*time.Minute, "Minimum time since the dream's last update")
	recoverCmd.Flags().StringVarP(&recoverMessage, "message", "m", defaultRecoverMessage, "Error message recorded on recovered dreams")
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, _ []string) error {
	if recoverOlderThan < 0 {
		return fmt.Errorf("--older-than must not be negative")
	}
	return withStore(cmd, func(ctx context.Context, cfg *config.Config, store db.Store) error {
		processing, err := store.ListDreams(ctx, db.DreamFilters{Status: db.StatusProcessing})
		if err != nil {
			return fmt.Errorf("failed to list processing dreams: %w", err)
		}
		n, err := store.FailStale(ctx, time.Now().Add(-recoverOlderThan), recoverMessage)
		if err != nil {
			return err
		}
		if err := removeFailedImages(ctx, store, cfg.MediaDir, processing); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %d stale dream(s) as FAILED\n", n)
		return nil
	})
}

// removeFailedImages deletes the stored image of every candidate that is now FAILED.
func removeFailedImages(ctx context.Context, store db.Store, mediaDir string, candidates []db.Dream) error {
	var images *media.Store
	for _, candidate := range candidates {
		if candidate.GeneratedImage == nil {
			continue
		}
		dream, err := store.GetDream(ctx, candidate.ID)
		if err != nil {
			return fmt.Errorf("failed to reload dream %s: %w", candidate.ID, err)
		}
		if dream.Status != db.StatusFailed {
			continue
		}
		if images == nil {
			if images, err = media.NewStore(mediaDir); err != nil {
				return err
			}
		}
		if err := images.Remove(*candidate.GeneratedImage); err != nil {
			return err
		}
	}
	return nil
}
