package simulation

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedFixture(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, f.Transcription)
	assert.NotEmpty(t, f.ImagePrompt)
	assert.Equal(t, "fr", f.Language)
	assert.Contains(t, f.EmotionWords, "fear")
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("image_prompt: x"))
	assert.Error(t, err)

	_, err = Parse([]byte("transcription: x"))
	assert.Error(t, err)

	_, err = Parse([]byte(": : :"))
	assert.Error(t, err)

	f, err := Parse([]byte("transcription: x\nimage_prompt: y"))
	require.NoError(t, err)
	assert.Equal(t, 256, f.Image.Width)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transcription: I flew\nimage_prompt: wings\n"), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "I flew", f.Transcription)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAdapters_Deterministic(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	set := f.Adapters()
	ctx := context.Background()

	text, err := set.Transcriber.Transcribe(ctx, nil, "fr")
	require.NoError(t, err)
	assert.Equal(t, f.Transcription, text)

	prompt, err := set.Prompt.GeneratePrompt(ctx, "ignored", text)
	require.NoError(t, err)
	assert.Equal(t, f.ImagePrompt, prompt)

	first, err := set.Image.GenerateImage(ctx, prompt)
	require.NoError(t, err)
	second, err := set.Image.GenerateImage(ctx, prompt)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	assert.Nil(t, set.Message)
}

func TestLexiconClassifier(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	classifier := LexiconClassifier{fixture: f}

	scores, err := classifier.Classify(context.Background(), f.Transcription)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores["fear"])
	for label, score := range scores {
		assert.GreaterOrEqual(t, score, 0.0, label)
		assert.LessOrEqual(t, score, 1.0, label)
	}

	neutral, err := classifier.Classify(context.Background(), "the meeting was at noon")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"neutral": 1}, neutral)
}

func TestDailyMessages(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	daily := DailyMessages{fixture: f}

	horoscope, err := daily.DailyMessage(context.Background(), astrology.Leo, time.Now())
	require.NoError(t, err)
	assert.Equal(t, f.Horoscope, horoscope)

	quote, err := daily.DailyMessage(context.Background(), "", time.Now())
	require.NoError(t, err)
	assert.Contains(t, quote, f.Quote.Author)
	assert.Contains(t, quote, "«")
}

func TestRenderImage_InvalidColor(t *testing.T) {
	f := &Fixture{Image: ImageFixture{Width: 4, Height: 4, Top: "#12"}}
	_, err := f.RenderImage()
	assert.Error(t, err)
}

func TestAdapters_HonorCanceledContext(t *testing.T) {
	f, err := Load()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Adapters().Image.GenerateImage(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
