package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/observability"
	"github.com/jonathan/dream-bridge/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print dream statistics for a user",
	RunE:  runReport,
}

var (
	reportUser    string
	reportPeriod  string
	reportEmotion string
	reportJSON    bool
)

func init() {
	reportCmd.Flags().StringVarP(&reportUser, "user", "u", "", "User id (required)")
	reportCmd.Flags().StringVarP(&reportPeriod, "period", "p", "7d", "Period: 3d, 7d, 30d, 1m or all")
	reportCmd.Flags().StringVarP(&reportEmotion, "emotion", "e", "", "Restrict to one emotion")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the report as JSON")
	_ = reportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	userID, err := parseUserID(reportUser)
	if err != nil {
		return err
	}
	period, err := report.ParsePeriod(reportPeriod)
	if err != nil {
		return err
	}
	emotion, err := parseEmotionFlag(reportEmotion)
	if err != nil {
		return err
	}

	return withStore(cmd, func(ctx context.Context, _ *config.Config, store db.Store) error {
		rep, err := report.New(store, time.Now).Build(ctx, userID, period, emotion)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		if reportJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintReport(rep)
		return nil
	})
}

// parseEmotionFlag returns the emotion named by raw; empty means no filter.
func parseEmotionFlag(raw string) (db.Emotion, error) {
	if raw == "" {
		return "", nil
	}
	emotion, ok := db.ParseEmotion(raw)
	if !ok {
		return "", fmt.Errorf("unknown emotion %q", raw)
	}
	return emotion, nil
}
