package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/dream-bridge/internal/capability"
	"github.com/jonathan/dream-bridge/internal/config"
	"github.com/jonathan/dream-bridge/internal/daily"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/imagegen"
	"github.com/jonathan/dream-bridge/internal/llm"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/media"
	"github.com/jonathan/dream-bridge/internal/messages"
	"github.com/jonathan/dream-bridge/internal/pipeline"
	"github.com/jonathan/dream-bridge/internal/simulation"
	"github.com/jonathan/dream-bridge/internal/whisper"
)

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"database_url": "database-url",
	"simulation":   "simulation",
	"log.level":    "log-level",
	"port":         "port",
	"workers":      "workers",
	"media_dir":    "media-dir",
}

// loadConfig layers the config file, environment and any flags cmd defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(configPath)
	if err != nil {
		return nil, err
	}
	for key, name := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return config.Load(v)
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// services is everything a command needs to process dreams.
type services struct {
	store    db.Store
	media    *media.Store
	messages *messages.Service
	pipeline *pipeline.Orchestrator
	closers  []func() error
}

// newServices wires the store, providers, message service and pipeline.
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, onProgress pipeline.ProgressCallback) (*services, error) {
	if err := cfg.ValidateProviders(); err != nil {
		return nil, err
	}

	svc := &services{}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc.store = store
	svc.closers = append(svc.closers, store.Close)

	svc.media, err = media.NewStore(cfg.MediaDir)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	adapters, fixture, err := buildAdapters(ctx, cfg, svc)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	svc.messages = messages.New(messages.Options{
		Store:        store,
		Adapters:     adapters,
		TemplatePath: cfg.TemplatePath,
		Language:     cfg.Language,
		Logger:       logger,
	})
	svc.pipeline, err = pipeline.New(pipeline.Options{
		Store:       store,
		Media:       svc.media,
		Adapters:    adapters,
		Simulation:  fixture,
		Regenerator: svc.messages,
		Language:    cfg.Language,
		Logger:      logger,
		OnProgress:  onProgress,
	})
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

// Close releases resources in reverse order of acquisition.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// buildAdapters returns the guarded provider adapters, or the fixture
// adapters in simulation mode.
func buildAdapters(ctx context.Context, cfg *config.Config, svc *services) (capability.Set, *simulation.Fixture, error) {
	if cfg.Simulation {
		fixture, err := simulation.LoadFile(cfg.FixturePath)
		if err != nil {
			return capability.Set{}, nil, err
		}
		return fixture.Adapters(), fixture, nil
	}

	llmConfig := llm.DefaultConfig(llm.ParseProvider(cfg.LLM.Provider))
	if cfg.LLM.Model != "" {
		llmConfig = llmConfig.WithAllModels(cfg.LLM.Model)
	}
	if cfg.LLM.BaseURL != "" {
		llmConfig.BaseURL = cfg.LLM.BaseURL
	}
	client, err := llm.NewClient(ctx, llmConfig, cfg.LLM.APIKey)
	if err != nil {
		return capability.Set{}, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	svc.closers = append(svc.closers, client.Close)

	var translator daily.Translator = daily.NoopTranslator{}
	if cfg.TranslateAPIKey != "" {
		translator, err = daily.NewGoogleTranslator(ctx, cfg.TranslateAPIKey)
		if err != nil {
			return capability.Set{}, nil, err
		}
	}

	set := capability.Set{
		Transcriber: whisper.NewClient(cfg.Transcription.APIKey, cfg.Transcription.BaseURL, cfg.Transcription.Model),
		Emotion:     capability.NewLLMEmotionClassifier(client),
		Prompt:      capability.NewLLMPromptGenerator(client),
		Image: imagegen.NewClient(imagegen.Options{
			APIKey:  cfg.Image.APIKey,
			BaseURL: cfg.Image.BaseURL,
			Model:   cfg.Image.Model,
			Size:    cfg.Image.Size,
		}),
		Message: capability.NewLLMMessageGenerator(client),
		Daily: daily.NewProvider(
			daily.NewHoroscopeClient(cfg.Daily.HoroscopeURL),
			daily.NewQuoteClient(cfg.Daily.QuoteURL),
			translator,
			cfg.Language,
		),
	}
	guard := capability.Guard{Timeout: cfg.CallTimeout, Retry: capability.SingleRetry()}
	return guard.Wrap(set), nil, nil
}
