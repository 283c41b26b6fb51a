package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/observability"
)

var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Run one recording through the pipeline and print the dream",
	Long: `Create a dream for the user, run every processing stage synchronously and
print the finished dream. The audio file is read but never removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var processUser string

func init() {
	processCmd.Flags().StringVarP(&processUser, "user", "u", "", "Owner user id (a new id is generated when empty)")
	processCmd.Flags().String("media-dir", "", "Directory for generated images")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	audioPath := args[0]
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	owner := uuid.New()
	if processUser != "" {
		var err error
		if owner, err = parseUserID(processUser); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	svc, err := newServices(ctx, cfg, logger, printer.PrintProgress)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	dream, err := svc.store.CreateDream(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to create dream: %w", err)
	}
	res := svc.pipeline.Process(ctx, dream.ID, audioPath)

	dream, err = svc.store.GetDream(ctx, dream.ID)
	if err != nil {
		return fmt.Errorf("failed to load dream: %w", err)
	}
	message := ""
	if dream.Status == db.StatusCompleted {
		message = svc.messages.DisplayMessage(ctx, dream)
	}
	printer.PrintDream(dream, message)

	if res.Status != db.StatusCompleted {
		return fmt.Errorf("dream %s %s: %s", dream.ID, res.Status, res.ErrorMessage)
	}
	return nil
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("user id must not be the nil uuid")
	}
	return id, nil
}
