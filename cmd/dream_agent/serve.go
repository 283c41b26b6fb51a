package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/dispatch"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts dream recordings and processes them on a
pool of background workers. The server stops gracefully on SIGINT or SIGTERM,
finishing the dreams already accepted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().Int("workers", 4, "Number of background workers")
	serveCmd.Flags().String("media-dir", "", "Directory for generated images")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.JWT.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to release resources", logging.Error(err))
		}
	}()

	dispatcher := dispatch.New(svc.pipeline, dispatch.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
	})
	if err := dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		Store:      svc.store,
		Dispatcher: dispatcher,
		Messages:   svc.messages,
		Tokens:     server.NewJWTService(&cfg.JWT),
		Logger:     logger,
	})
	if err != nil {
		_ = dispatcher.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("dream bridge ready",
		slog.Int("port", cfg.Port),
		slog.Int("workers", cfg.Workers),
		slog.Bool("simulation", cfg.Simulation),
	)
	runErr := srv.Run(ctx)

	logger.Info("waiting for queued dreams to finish")
	if err := dispatcher.Close(); err != nil {
		logger.Warn("dispatcher stopped with error", logging.Error(err))
	}
	return runErr
}
