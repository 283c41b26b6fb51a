package capability

import (
	"context"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 90 * time.Second

// Guard bounds adapter calls: every call gets Timeout, and idempotent reads
// (transcription, classification, daily message) are retried per Retry.
// Generation calls are never retried.
type Guard struct {
	Timeout time.Duration
	Retry   RetryConfig
}

// DefaultGuard returns the standard guard: per-call timeout and one retry.
func DefaultGuard() Guard {
	return Guard{Timeout: DefaultCallTimeout, Retry: SingleRetry()}
}

// Wrap returns a copy of s whose adapters are guarded. Nil adapters stay nil.
func (g Guard) Wrap(s Set) Set {
	out := Set{}
	if s.Transcriber != nil {
		out.Transcriber = guardedTranscriber{next: s.Transcriber, guard: g}
	}
	if s.Emotion != nil {
		out.Emotion = guardedClassifier{next: s.Emotion, guard: g}
	}
	if s.Prompt != nil {
		out.Prompt = guardedPrompt{next: s.Prompt, guard: g}
	}
	if s.Image != nil {
		out.Image = guardedImage{next: s.Image, guard: g}
	}
	if s.Message != nil {
		out.Message = guardedMessage{next: s.Message, guard: g}
	}
	if s.Daily != nil {
		out.Daily = guardedDaily{next: s.Daily, guard: g}
	}
	return out
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func withRetry[T any](ctx context.Context, g Guard, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := WithRetry(ctx, g.Retry, func() error {
		v, err := withTimeout(ctx, g.Timeout, fn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type guardedTranscriber struct {
	next  Transcriber
	guard Guard
}

func (t guardedTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return withRetry(ctx, t.guard, func(ctx context.Context) (string, error) {
		return t.next.Transcribe(ctx, audio, language)
	})
}

type guardedClassifier struct {
	next  EmotionClassifier
	guard Guard
}

func (c guardedClassifier) Classify(ctx context.Context, text string) (map[string]float64, error) {
	return withRetry(ctx, c.guard, func(ctx context.Context) (map[string]float64, error) {
		return c.next.Classify(ctx, text)
	})
}

type guardedPrompt struct {
	next  ImagePromptGenerator
	guard Guard
}

func (p guardedPrompt) GeneratePrompt(ctx context.Context, system, text string) (string, error) {
	return withTimeout(ctx, p.guard.Timeout, func(ctx context.Context) (string, error) {
		return p.next.GeneratePrompt(ctx, system, text)
	})
}

type guardedImage struct {
	next  ImageGenerator
	guard Guard
}

func (i guardedImage) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return withTimeout(ctx, i.guard.Timeout, func(ctx context.Context) ([]byte, error) {
		return i.next.GenerateImage(ctx, prompt)
	})
}

type guardedMessage struct {
	next  MessageGenerator
	guard Guard
}

func (m guardedMessage) GenerateMessage(ctx context.Context, system, prompt string) (string, error) {
	return withTimeout(ctx, m.guard.Timeout, func(ctx context.Context) (string, error) {
		return m.next.GenerateMessage(ctx, system, prompt)
	})
}

type guardedDaily struct {
	next  DailyMessageProvider
	guard Guard
}

func (d guardedDaily) DailyMessage(ctx context.Context, sign astrology.Sign, date time.Time) (string, error) {
	return withRetry(ctx, d.guard, func(ctx context.Context) (string, error) {
		return d.next.DailyMessage(ctx, sign, date)
	})
}
