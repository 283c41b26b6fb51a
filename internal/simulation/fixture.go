// Package simulation provides deterministic stand-ins for every external
// capability, replaying a fixed dream so the whole pipeline can run offline.
package simulation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture is the replayed dream and the data the stand-in adapters serve.
type Fixture struct {
	Language      string              `yaml:"language"`
	Transcription string              `yaml:"transcription"`
	ImagePrompt   string              `yaml:"image_prompt"`
	Horoscope     string              `yaml:"horoscope"`
	Quote         QuoteFixture        `yaml:"quote"`
	Image         ImageFixture        `yaml:"image"`
	EmotionWords  map[string][]string `yaml:"emotion_lexicon"`
}

// QuoteFixture is the replayed quote of the day.
type QuoteFixture struct {
	Text   string `yaml:"text"`
	Author string `yaml:"author"`
}

// ImageFixture describes the generated placeholder image.
type ImageFixture struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Top    string `yaml:"top"`
	Bottom string `yaml:"bottom"`
	Accent string `yaml:"accent"`
}

// Load returns the embedded fixture.
func Load() (*Fixture, error) {
	return Parse(defaultFixture)
}

// LoadFile reads a fixture from path. An empty path loads the embedded fixture.
func LoadFile(path string) (*Fixture, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if strings.TrimSpace(f.Transcription) == "" {
		return nil, fmt.Errorf("fixture: transcription is required")
	}
	if strings.TrimSpace(f.ImagePrompt) == "" {
		return nil, fmt.Errorf("fixture: image_prompt is required")
	}
	if f.Image.Width <= 0 {
		f.Image.Width = 256
	}
	if f.Image.Height <= 0 {
		f.Image.Height = 256
	}
	return &f, nil
}
