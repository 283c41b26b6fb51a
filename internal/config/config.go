// Package config loads and validates the service configuration from a file,
// DREAM_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DREAM"

// Config is the full service configuration.
type Config struct {
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	DatabaseURL string `mapstructure:"database_url" validate:"required"`
	MediaDir    string `mapstructure:"media_dir" validate:"required"`
	// TempDir holds uploaded audio until its job finishes. Empty uses the OS default.
	TempDir   string `mapstructure:"temp_dir"`
	Workers   int    `mapstructure:"workers" validate:"min=1,max=64"`
	QueueSize int    `mapstructure:"queue_size" validate:"min=1"`

	// Simulation replaces the transcription, prompt and image providers
	// with a replayed fixture.
	Simulation  bool   `mapstructure:"simulation"`
	FixturePath string `mapstructure:"fixture_path"`

	Language     string        `mapstructure:"language" validate:"required,min=2,max=10"`
	TemplatePath string        `mapstructure:"template_path"`
	CallTimeout  time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	MaxUploadMB  int           `mapstructure:"max_upload_mb" validate:"min=1,max=200"`

	LLM             LLMConfig      `mapstructure:"llm"`
	Transcription   ProviderConfig `mapstructure:"transcription"`
	Image           ImageConfig    `mapstructure:"image"`
	Daily           DailyConfig    `mapstructure:"daily"`
	TranslateAPIKey string         `mapstructure:"translate_api_key"`

	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// LLMConfig selects the text model provider.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=gemini openai"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	Model    string `mapstructure:"model"`
}

// ProviderConfig points at an OpenAI-compatible HTTP provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `mapstructure:"model"`
}

// ImageConfig configures the image generation provider.
type ImageConfig struct {
	ProviderConfig `mapstructure:",squash"`
	Size           string `mapstructure:"size"`
}

// DailyConfig overrides the horoscope and quote endpoints.
type DailyConfig struct {
	HoroscopeURL string `mapstructure:"horoscope_url" validate:"omitempty,url"`
	QuoteURL     string `mapstructure:"quote_url" validate:"omitempty,url"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text console json"`
}

// RateLimitConfig bounds submissions per client.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SubmitPerHour limits POST /dreams per client.
	SubmitPerHour int `mapstructure:"submit_per_hour" validate:"min=0"`
	// RegeneratePerHour limits personal message regeneration per client.
	RegeneratePerHour int `mapstructure:"regenerate_per_hour" validate:"min=0"`
	// DefaultPerMinute limits every other route.
	DefaultPerMinute int `mapstructure:"default_per_minute" validate:"min=0"`
	Burst            int `mapstructure:"burst" validate:"min=0"`
}

// SetDefaults registers every key with its default so environment
// variables bind even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database_url", "sqlite://dreams.db")
	v.SetDefault("media_dir", "media")
	v.SetDefault("temp_dir", "")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_size", 64)
	v.SetDefault("simulation", false)
	v.SetDefault("fixture_path", "")
	v.SetDefault("language", "fr")
	v.SetDefault("template_path", "")
	v.SetDefault("call_timeout", "90s")
	v.SetDefault("max_upload_mb", 25)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("transcription.api_key", "")
	v.SetDefault("transcription.base_url", "")
	v.SetDefault("transcription.model", "")
	v.SetDefault("image.api_key", "")
	v.SetDefault("image.base_url", "")
	v.SetDefault("image.model", "")
	v.SetDefault("image.size", "")
	v.SetDefault("daily.horoscope_url", "")
	v.SetDefault("daily.quote_url", "")
	v.SetDefault("translate_api_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration_hours", 24)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.submit_per_hour", 20)
	v.SetDefault("rate_limit.regenerate_per_hour", 60)
	v.SetDefault("rate_limit.default_per_minute", 300)
	v.SetDefault("rate_limit.burst", 5)
}

// NewViper returns a viper instance with defaults, DREAM_* environment
// binding and, when path is set, the config file loaded.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("jwt.secret", EnvPrefix+"_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration_hours", EnvPrefix+"_JWT_EXPIRATION_HOURS", "JWT_EXPIRATION_HOURS")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillProviderKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillProviderKeys lets one OpenAI-compatible key serve every provider
// when the text model is reached through that API.
func (c *Config) fillProviderKeys() {
	if c.LLM.Provider != "openai" || c.LLM.APIKey == "" {
		return
	}
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = c.LLM.APIKey
	}
}

// Validate checks field constraints and the fixture path.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Simulation && c.FixturePath != "" {
		if _, err := os.Stat(c.FixturePath); err != nil {
			return fmt.Errorf("config error: fixture file not found: %s", c.FixturePath)
		}
	}
	return nil
}

// ValidateProviders checks that every external provider has a key.
// Commands that never reach a provider skip it.
func (c *Config) ValidateProviders() error {
	if c.Simulation {
		return nil
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config error: 'llm.api_key' is required unless simulation is enabled")
	}
	if c.Transcription.APIKey == "" {
		return fmt.Errorf("config error: 'transcription.api_key' is required unless simulation is enabled")
	}
	if c.Image.APIKey == "" {
		return fmt.Errorf("config error: 'image.api_key' is required unless simulation is enabled")
	}
	return nil
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
