// Package capability defines the external capabilities the dream pipeline
// depends on, the guard that bounds every call, and the LLM-backed adapters.
package capability

import (
	"context"
	"errors"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
)

// ErrEmptyReply is returned when a provider answers with nothing usable.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// EmotionClassifier scores a text against emotion labels.
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) (map[string]float64, error)
}

// ImagePromptGenerator turns a dream narrative into an image prompt.
type ImagePromptGenerator interface {
	GeneratePrompt(ctx context.Context, system, text string) (string, error)
}

// ImageGenerator renders an image prompt to encoded image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// MessageGenerator writes a personal message from a system instruction and prompt.
type MessageGenerator interface {
	GenerateMessage(ctx context.Context, system, prompt string) (string, error)
}

// DailyMessageProvider returns the translated daily message: the horoscope
// for sign, or the quote of the day when sign is empty.
type DailyMessageProvider interface {
	DailyMessage(ctx context.Context, sign astrology.Sign, date time.Time) (string, error)
}

// Set bundles the adapters used by the pipeline and the message service.
// A nil field means the capability is not configured.
type Set struct {
	Transcriber Transcriber
	Emotion     EmotionClassifier
	Prompt      ImagePromptGenerator
	Image       ImageGenerator
	Message     MessageGenerator
	Daily       DailyMessageProvider
}
