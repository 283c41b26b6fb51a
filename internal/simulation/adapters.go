package simulation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/capability"
	"github.com/jonathan/dream-bridge/internal/prompts"
)

// Adapters returns stand-ins for every capability except message generation,
// which is left nil so the local fallback message is used.
func (f *Fixture) Adapters() capability.Set {
	return capability.Set{
		Transcriber: Transcriber{fixture: f},
		Emotion:     LexiconClassifier{fixture: f},
		Prompt:      PromptGenerator{fixture: f},
		Image:       ImageGenerator{fixture: f},
		Daily:       DailyMessages{fixture: f},
	}
}

// Transcriber ignores the audio and returns the fixture transcription.
type Transcriber struct{ fixture *Fixture }

// Transcribe returns the fixture transcription.
func (t Transcriber) Transcribe(ctx context.Context, _ []byte, _ string) (string, error) {
	return strings.TrimSpace(t.fixture.Transcription), ctx.Err()
}

// PromptGenerator returns the fixture image prompt.
type PromptGenerator struct{ fixture *Fixture }

// GeneratePrompt returns the fixture image prompt.
func (p PromptGenerator) GeneratePrompt(ctx context.Context, _, _ string) (string, error) {
	return strings.TrimSpace(p.fixture.ImagePrompt), ctx.Err()
}

// ImageGenerator renders the same PNG on every call.
type ImageGenerator struct{ fixture *Fixture }

// GenerateImage renders the fixture image.
func (g ImageGenerator) GenerateImage(ctx context.Context, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fixture.RenderImage()
}

// RenderImage draws a vertical gradient with a soft moon, deterministic for the fixture.
func (f *Fixture) RenderImage() ([]byte, error) {
	look := f.Image
	top, err := parseHex(look.Top, color.RGBA{R: 0x1b, G: 0x1f, B: 0x3b, A: 0xff})
	if err != nil {
		return nil, err
	}
	bottom, err := parseHex(look.Bottom, color.RGBA{R: 0x6d, G: 0x8f, B: 0xb3, A: 0xff})
	if err != nil {
		return nil, err
	}
	accent, err := parseHex(look.Accent, color.RGBA{R: 0xf4, G: 0xe3, B: 0xb2, A: 0xff})
	if err != nil {
		return nil, err
	}

	w, h := look.Width, look.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)*0.7, float64(h)*0.3
	radius := float64(min(w, h)) * 0.12

	for y := 0; y < h; y++ {
		t := float64(y) / float64(max(h-1, 1))
		row := lerp(top, bottom, t)
		for x := 0; x < w; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			switch {
			case d <= radius:
				img.SetRGBA(x, y, accent)
			case d <= radius*2:
				img.SetRGBA(x, y, lerp(accent, row, (d-radius)/radius))
			default:
				img.SetRGBA(x, y, row)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t)) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

func parseHex(s string, fallback color.RGBA) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return fallback, nil
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("fixture: invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("fixture: invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// LexiconClassifier scores emotions by counting fixture keywords in the text.
// It stands in for the remote classifier when none is configured.
type LexiconClassifier struct{ fixture *Fixture }

// Classify returns per-label scores normalized to the strongest label.
// Text with no keyword scores neutral.
func (c LexiconClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folded := astrology.Normalize(text)
	counts := make(map[string]float64, len(c.fixture.EmotionWords))
	best := 0.0
	for label, words := range c.fixture.EmotionWords {
		for _, w := range words {
			counts[label] += float64(strings.Count(folded, astrology.Normalize(w)))
		}
		best = math.Max(best, counts[label])
	}
	if best == 0 {
		return map[string]float64{"neutral": 1}, nil
	}
	scores := make(map[string]float64, len(counts))
	for label, n := range counts {
		scores[label] = math.Round(n/best*1000) / 1000
	}
	return scores, nil
}

// DailyMessages serves the fixture horoscope or quote.
type DailyMessages struct{ fixture *Fixture }

// DailyMessage returns the fixture horoscope for any sign, or the fixture quote.
func (d DailyMessages) DailyMessage(ctx context.Context, sign astrology.Sign, _ time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sign != "" {
		return strings.TrimSpace(d.fixture.Horoscope), nil
	}
	return prompts.Render(prompts.MessagesFile, "quote", d.fixture.Language, map[string]string{
		"Quote":  d.fixture.Quote.Text,
		"Author": d.fixture.Quote.Author,
	}), nil
}
