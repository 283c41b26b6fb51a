package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, path string) (*Config, error) {
	t.Helper()
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DREAM_SIMULATION", "true")

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite://dreams.db", cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, "fr", cfg.Language)
	assert.Equal(t, 90*time.Second, cfg.CallTimeout)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 24, cfg.JWT.ExpirationHours)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes())
}

func TestLoad_YAMLFile(t *testing.T) {
	content := `
port: 9090
database_url: postgres://localhost/dreams
simulation: true
language: en
call_timeout: 15s
llm:
  provider: openai
  api_key: sk-test
image:
  model: dall-e-3
  size: 512x512
log:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "dream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := load(t, path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://localhost/dreams", cfg.DatabaseURL)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 15*time.Second, cfg.CallTimeout)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.Transcription.APIKey, "openai key is shared with transcription")
	assert.Equal(t, "dall-e-3", cfg.Image.Model)
	assert.Equal(t, "512x512", cfg.Image.Size)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dream.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"simulation": true, "workers": 2}`), 0o600))
	t.Setenv("DREAM_WORKERS", "8")
	t.Setenv("DREAM_LLM_MODEL", "gemini-2.0-flash")

	cfg, err := load(t, path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestLoad_LegacyJWTEnv(t *testing.T) {
	t.Setenv("DREAM_SIMULATION", "true")
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_EXPIRATION_HOURS", "48")

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, "test-secret-key", cfg.JWT.Secret)
	assert.Equal(t, 48, cfg.JWT.ExpirationHours)

	t.Setenv("DREAM_JWT_SECRET", "prefixed-secret")
	cfg, err = load(t, "")
	require.NoError(t, err)
	assert.Equal(t, "prefixed-secret", cfg.JWT.Secret)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := load(t, "/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:          8080,
			DatabaseURL:   "sqlite://:memory:",
			MediaDir:      "media",
			Workers:       1,
			QueueSize:     1,
			Language:      "fr",
			CallTimeout:   time.Second,
			MaxUploadMB:   1,
			LLM:           LLMConfig{Provider: "gemini", APIKey: "k"},
			Transcription: ProviderConfig{APIKey: "k"},
			Image:         ImageConfig{ProviderConfig: ProviderConfig{APIKey: "k"}},
			Log:           LogConfig{Level: "info", Format: "text"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }, "Port"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mistral" }, "Provider"},
		{"bad base url", func(c *Config) { c.LLM.BaseURL = "not a url" }, "BaseURL"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "Format"},
		{"missing fixture", func(c *Config) { c.Simulation = true; c.FixturePath = "/nope.yaml" }, "fixture file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

}

func TestValidateProviders(t *testing.T) {
	keyed := func() Config {
		return Config{
			LLM:           LLMConfig{Provider: "gemini", APIKey: "k"},
			Transcription: ProviderConfig{APIKey: "k"},
			Image:         ImageConfig{ProviderConfig: ProviderConfig{APIKey: "k"}},
		}
	}
	cfg := keyed()
	require.NoError(t, cfg.ValidateProviders())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing llm key", func(c *Config) { c.LLM.APIKey = "" }, "llm.api_key"},
		{"missing transcription key", func(c *Config) { c.Transcription.APIKey = "" }, "transcription.api_key"},
		{"missing image key", func(c *Config) { c.Image.APIKey = "" }, "image.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := keyed()
			tt.mutate(&cfg)
			err := cfg.ValidateProviders()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	sim := Config{Simulation: true}
	assert.NoError(t, sim.ValidateProviders())
}

func TestLoad_WithoutKeys(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateProviders())
}
