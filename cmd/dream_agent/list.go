package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/observability"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's dreams",
	RunE:  runList,
}

var (
	listUser    string
	listStatus  string
	listEmotion string
	listDate    string
	listLimit   int
)

func init() {
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "User id (required)")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Restrict to one status (PENDING, PROCESSING, COMPLETED, FAILED)")
	listCmd.Flags().StringVarP(&listEmotion, "emotion", "e", "", "Restrict to one emotion")
	listCmd.Flags().StringVarP(&listDate, "date", "d", "", "Restrict to one day (YYYY-MM-DD)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "Maximum number of dreams")
	_ = listCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	userID, err := parseUserID(listUser)
	if err != nil {
		return err
	}
	filters := db.DreamFilters{OwnerID: userID, Limit: listLimit}
	if listStatus != "" {
		if filters.Status, err = db.ParseStatus(listStatus); err != nil {
			return err
		}
	}
	if filters.Emotion, err = parseEmotionFlag(listEmotion); err != nil {
		return err
	}
	if listDate != "" {
		day, err := db.ParseDate(listDate)
		if err != nil {
			return err
		}
		filters.Day = &day
	}

	return withStore(cmd, func(ctx context.Context, _ *config.Config, store db.Store) error {
		dreams, err := store.ListDreams(ctx, filters)
		if err != nil {
			return fmt.Errorf("failed to list dreams: %w", err)
		}
		if len(dreams) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No dreams found.")
			return nil
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintDreams(dreams)
		return nil
	})
}
