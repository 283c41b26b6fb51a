package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/dream-bridge/internal/capability"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/media"
	"github.com/jonathan/dream-bridge/internal/simulation"
	"github.com/jonathan/dream-bridge/internal/testsupport"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

type stubClassifier struct {
	scores map[string]float64
	err    error
}

func (s stubClassifier) Classify(context.Context, string) (map[string]float64, error) {
	return s.scores, s.err
}

type stubPrompt struct {
	prompt string
	err    error
	system string
}

func (s *stubPrompt) GeneratePrompt(_ context.Context, system, _ string) (string, error) {
	s.system = system
	return s.prompt, s.err
}

type stubImage struct {
	data  []byte
	err   error
	panic bool
}

func (s stubImage) GenerateImage(context.Context, string) ([]byte, error) {
	if s.panic {
		panic("renderer exploded")
	}
	return s.data, s.err
}

type stubRegenerator struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
	panic bool
}

func (s *stubRegenerator) Regenerate(_ context.Context, id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id)
	if s.panic {
		panic("template exploded")
	}
	return "message", s.err
}

type harness struct {
	store *db.SQLiteDB
	media *media.Store
	audio string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	mediaStore, err := media.NewStore(t.TempDir())
	require.NoError(t, err)
	return harness{
		store: testsupport.MustOpenStore(t),
		media: mediaStore,
		audio: testsupport.WriteAudio(t, t.TempDir()),
	}
}

func workingAdapters() capability.Set {
	return capability.Set{
		Transcriber: stubTranscriber{text: "I was flying over a city of glass"},
		Emotion:     stubClassifier{scores: map[string]float64{"joy": 0.8, "fear": 0.1}},
		Prompt:      &stubPrompt{prompt: "a city of glass seen from above"},
		Image:       stubImage{data: []byte("png")},
	}
}

func TestProcess_SimulationCompletes(t *testing.T) {
	h := newHarness(t)
	fixture, err := simulation.Load()
	require.NoError(t, err)
	regen := &stubRegenerator{}

	var events []ProgressEvent
	orch, err := New(Options{
		Store:       h.store,
		Media:       h.media,
		Simulation:  fixture,
		Regenerator: regen,
		OnProgress:  func(e ProgressEvent) { events = append(events, e) },
	})
	require.NoError(t, err)
	assert.True(t, orch.Simulated())

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, res.Status)
	assert.Empty(t, res.ErrorMessage)

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.Transcription)
	assert.Equal(t, db.EmotionFear, got.Emotion)
	assert.NotEmpty(t, got.ImagePrompt)
	require.NotNil(t, got.GeneratedImage)
	assert.Equal(t, media.RelativePath(dream.ID), *got.GeneratedImage)
	assert.True(t, testsupport.Exists(h.media.Path(*got.GeneratedImage)))
	assert.Empty(t, got.ErrorMessage)

	assert.Equal(t, []uuid.UUID{dream.ID}, regen.calls)
	require.NotEmpty(t, events)
	assert.Equal(t, StageMessage, events[len(events)-1].Stage)
}

func TestProcess_TranscriberFailure(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Transcriber = stubTranscriber{err: errors.New("speech service unavailable")}
	regen := &stubRegenerator{}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters, Regenerator: regen})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusFailed, res.Status)

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "speech service unavailable")
	assert.Contains(t, got.ErrorMessage, string(StageTranscription))
	assert.Empty(t, got.Transcription)
	assert.Empty(t, got.ImagePrompt)
	assert.Nil(t, got.GeneratedImage)
	assert.Empty(t, regen.calls)
}

func TestProcess_EmptyTranscriptionIsFatal(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Transcriber = stubTranscriber{text: "   "}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, capability.ErrEmptyReply.Error())
}

func TestProcess_MissingAudioFails(t *testing.T) {
	h := newHarness(t)
	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: workingAdapters()})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, "/nonexistent/audio.webm")
	assert.Equal(t, db.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "failed to read audio")
}

func TestProcess_EmotionFailureDegradesToNeutral(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Emotion = stubClassifier{err: errors.New("classifier down")}

	var emotionEvent ProgressEvent
	orch, err := New(Options{
		Store:    h.store,
		Media:    h.media,
		Adapters: adapters,
		OnProgress: func(e ProgressEvent) {
			if e.Stage == StageEmotion {
				emotionEvent = e
			}
		},
	})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, res.Status)

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Equal(t, db.EmotionNeutral, got.Emotion)
	assert.Equal(t, Degraded.String(), emotionEvent.Kind)
}

func TestProcess_EmotionPersistFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	store := &testsupport.FaultyStore{Store: h.store, SetEmotionErr: errors.New("disk full")}

	orch, err := New(Options{Store: store, Media: h.media, Adapters: workingAdapters()})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, res.Status)
}

func TestProcess_PromptFailure(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Prompt = &stubPrompt{err: errors.New("quota exceeded")}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusFailed, res.Status)

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Transcription)
	assert.Empty(t, got.ImagePrompt)
	assert.Contains(t, got.ErrorMessage, string(StageImagePrompt))
}

func TestProcess_ImageFailure(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Image = stubImage{err: errors.New("content policy")}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusFailed, res.Status)

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GeneratedImage)
	assert.Contains(t, got.ErrorMessage, "content policy")
	assert.False(t, testsupport.Exists(h.media.Path(media.RelativePath(dream.ID))))
}

func TestProcess_PanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	adapters.Image = stubImage{panic: true}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	var res Result
	assert.NotPanics(t, func() {
		res = orch.Process(context.Background(), dream.ID, h.audio)
	})
	assert.Equal(t, db.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "renderer exploded")
}

func TestProcess_RegenerationFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	regen := &stubRegenerator{err: errors.New("llm down")}

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: workingAdapters(), Regenerator: regen})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, res.Status)
	assert.Len(t, regen.calls, 1)
}

func TestProcess_RegenerationPanicDegrades(t *testing.T) {
	h := newHarness(t)
	var (
		mu     sync.Mutex
		events []ProgressEvent
	)
	orch, err := New(Options{
		Store:       h.store,
		Media:       h.media,
		Adapters:    workingAdapters(),
		Regenerator: &stubRegenerator{panic: true},
		OnProgress: func(e ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
		},
	})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, res.Status)
	assert.Empty(t, res.ErrorMessage)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StageMessage, last.Stage)
	assert.Equal(t, Degraded.String(), last.Kind)
	assert.Contains(t, last.Message, "template exploded")
	for _, e := range events {
		assert.NotEqual(t, Fatal.String(), e.Kind, "stage %s", e.Stage)
	}

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, got.Status)
	assert.NotNil(t, got.GeneratedImage)
}

func TestProcess_FinalizeFailureDropsImage(t *testing.T) {
	h := newHarness(t)
	store := &testsupport.FaultyStore{Store: h.store, MarkCompletedErr: errors.New("disk full")}
	orch, err := New(Options{Store: store, Media: h.media, Adapters: workingAdapters()})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	res := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "disk full")

	got, err := h.store.GetDream(context.Background(), dream.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, got.Status)
	assert.Nil(t, got.GeneratedImage)
	assert.False(t, testsupport.Exists(h.media.Path(media.RelativePath(dream.ID))))
}

func TestProcess_AlreadyProcessed(t *testing.T) {
	h := newHarness(t)
	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: workingAdapters()})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	first := orch.Process(context.Background(), dream.ID, h.audio)
	require.Equal(t, db.StatusCompleted, first.Status)

	second := orch.Process(context.Background(), dream.ID, h.audio)
	assert.Equal(t, db.StatusCompleted, second.Status)
	assert.Contains(t, second.ErrorMessage, db.ErrInvalidTransition.Error())

	missing := orch.Process(context.Background(), uuid.New(), h.audio)
	assert.Empty(t, missing.Status)
}

func TestProcess_PassesLocalizedSystemInstruction(t *testing.T) {
	h := newHarness(t)
	adapters := workingAdapters()
	prompt := &stubPrompt{prompt: "p"}
	adapters.Prompt = prompt

	orch, err := New(Options{Store: h.store, Media: h.media, Adapters: adapters, Language: "en"})
	require.NoError(t, err)

	dream := testsupport.NewDream(t, h.store, uuid.New())
	orch.Process(context.Background(), dream.ID, h.audio)
	assert.Contains(t, prompt.system, "dream artist")
}

func TestNew_RequiresAdapters(t *testing.T) {
	h := newHarness(t)

	_, err := New(Options{Media: h.media, Adapters: workingAdapters()})
	assert.Error(t, err)

	_, err = New(Options{Store: h.store, Adapters: workingAdapters()})
	assert.Error(t, err)

	adapters := workingAdapters()
	adapters.Image = nil
	_, err = New(Options{Store: h.store, Media: h.media, Adapters: adapters})
	assert.Error(t, err)

	fixture, err := simulation.Load()
	require.NoError(t, err)
	_, err = New(Options{Store: h.store, Media: h.media, Simulation: fixture})
	assert.NoError(t, err)
}
