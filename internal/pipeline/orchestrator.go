// Package pipeline turns a submitted dream recording into a finished dream:
// transcription, emotion, image prompt, image and personal message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/capability"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/media"
	"github.com/jonathan/dream-bridge/internal/prompts"
	"github.com/jonathan/dream-bridge/internal/simulation"
)

// ProgressEvent represents a progress update during dream processing
type ProgressEvent struct {
	DreamID uuid.UUID `json:"dream_id"`
	Stage   Stage     `json:"stage"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Content any       `json:"content,omitempty"`
}

// ProgressCallback is called when a stage finishes
type ProgressCallback func(event ProgressEvent)

// Regenerator rewrites the messages attached to a finished dream.
type Regenerator interface {
	Regenerate(ctx context.Context, dreamID uuid.UUID) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Store    db.Store
	Media    *media.Store
	Adapters capability.Set
	// Simulation, when set, replaces transcription, prompt and image
	// generation with the fixture. Emotion classification still runs on
	// the fixture transcription, using the lexicon when no classifier is set.
	Simulation  *simulation.Fixture
	Regenerator Regenerator
	Language    string
	Logger      *slog.Logger
	OnProgress  ProgressCallback
}

// Orchestrator runs the processing stages for one dream at a time per call.
// It is safe for concurrent use by multiple workers.
type Orchestrator struct {
	store       db.Store
	media       *media.Store
	adapters    capability.Set
	simulated   bool
	regenerator Regenerator
	language    string
	logger      *slog.Logger
	onProgress  ProgressCallback
}

// Result is the state a dream was left in by Process.
type Result struct {
	DreamID      uuid.UUID
	Status       db.Status
	ErrorMessage string
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if opts.Media == nil {
		return nil, errors.New("pipeline: media store is required")
	}

	adapters := opts.Adapters
	if opts.Simulation != nil {
		fixture := opts.Simulation.Adapters()
		adapters.Transcriber = fixture.Transcriber
		adapters.Prompt = fixture.Prompt
		adapters.Image = fixture.Image
		if adapters.Emotion == nil {
			adapters.Emotion = fixture.Emotion
		}
	}
	switch {
	case adapters.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case adapters.Prompt == nil:
		return nil, errors.New("pipeline: image prompt generator is required")
	case adapters.Image == nil:
		return nil, errors.New("pipeline: image generator is required")
	}

	language := opts.Language
	if language == "" {
		language = "fr"
	}
	return &Orchestrator{
		store:       opts.Store,
		media:       opts.Media,
		adapters:    adapters,
		simulated:   opts.Simulation != nil,
		regenerator: opts.Regenerator,
		language:    language,
		logger:      logging.Component(logging.OrNop(opts.Logger), "pipeline"),
		onProgress:  opts.OnProgress,
	}, nil
}

// Simulated reports whether the fixture replaces the external providers.
func (o *Orchestrator) Simulated() bool {
	return o.simulated
}

// Process runs every stage for the dream and always leaves it COMPLETED or
// FAILED. Failures are recorded on the dream rather than returned. The audio
// file is read but never removed here; the caller owns it.
func (o *Orchestrator) Process(ctx context.Context, dreamID uuid.UUID, audioPath string) (res Result) {
	logger := o.logger.With(logging.DreamID(dreamID))
	res = Result{DreamID: dreamID}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", slog.Any("panic", r))
			res = o.fail(ctx, logger, dreamID, &StageError{Stage: StageInternal, Err: fmt.Errorf("unexpected error: %v", r)})
		}
	}()

	if err := o.store.MarkProcessing(ctx, dreamID); err != nil {
		logger.Warn("dream cannot be processed", logging.Error(err))
		return o.current(ctx, dreamID, err)
	}
	logger.Info("processing dream", slog.Bool("simulated", o.simulated))

	transcription := o.transcribe(ctx, logger, dreamID, audioPath)
	if transcription.IsFatal() {
		return o.fail(ctx, logger, dreamID, transcription.Err)
	}

	emotion := o.classify(ctx, logger, transcription.Value)
	if err := o.store.SetEmotion(ctx, dreamID, emotion.Value); err != nil {
		logger.Warn("failed to save emotion", logging.Error(err))
	}
	o.emit(dreamID, StageEmotion, emotion.Kind, string(emotion.Value), nil)

	prompt := o.imagePrompt(ctx, dreamID, transcription.Value)
	if prompt.IsFatal() {
		return o.fail(ctx, logger, dreamID, prompt.Err)
	}

	image := o.image(ctx, dreamID, prompt.Value)
	if image.IsFatal() {
		return o.fail(ctx, logger, dreamID, image.Err)
	}

	if err := o.store.MarkCompleted(ctx, dreamID); err != nil {
		return o.fail(ctx, logger, dreamID, &StageError{Stage: StageFinalize, Err: err})
	}
	o.emit(dreamID, StageFinalize, Success, "Dream completed", nil)
	logger.Info("dream completed", slog.String("emotion", string(emotion.Value)))

	o.regenerate(ctx, logger, dreamID)
	return Result{DreamID: dreamID, Status: db.StatusCompleted}
}

func (o *Orchestrator) transcribe(ctx context.Context, logger *slog.Logger, dreamID uuid.UUID, audioPath string) Outcome[string] {
	started := time.Now()
	fatal := func(err error) Outcome[string] {
		return Fail[string](&StageError{Stage: StageTranscription, Err: err})
	}

	var audio []byte
	if !o.simulated {
		var err error
		audio, err = os.ReadFile(audioPath)
		if err != nil {
			return fatal(fmt.Errorf("failed to read audio: %w", err))
		}
	}

	text, err := o.adapters.Transcriber.Transcribe(ctx, audio, o.language)
	if err != nil {
		return fatal(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fatal(capability.ErrEmptyReply)
	}
	if err := o.store.SetTranscription(ctx, dreamID, text); err != nil {
		return fatal(fmt.Errorf("failed to save transcription: %w", err))
	}

	logger.Debug("transcribed audio", slog.Int("chars", len([]rune(text))), slog.Duration("took", time.Since(started)))
	o.emit(dreamID, StageTranscription, Success, "Transcribed audio", text)
	return Ok(text)
}

// classify never fails: any problem degrades to neutral.
func (o *Orchestrator) classify(ctx context.Context, logger *slog.Logger, text string) Outcome[db.Emotion] {
	if o.adapters.Emotion == nil {
		return Degrade(db.EmotionNeutral, errors.New("no emotion classifier configured"))
	}
	scores, err := o.adapters.Emotion.Classify(ctx, text)
	if err != nil {
		logger.Warn("emotion classification failed, using neutral", logging.Stage(string(StageEmotion)), logging.Error(err))
		return Degrade(db.EmotionNeutral, err)
	}
	return Ok(DominantEmotion(scores))
}

func (o *Orchestrator) imagePrompt(ctx context.Context, dreamID uuid.UUID, text string) Outcome[string] {
	fatal := func(err error) Outcome[string] {
		return Fail[string](&StageError{Stage: StageImagePrompt, Err: err})
	}

	system, err := prompts.Localized(prompts.PipelineFile, "image-prompt-system", o.language)
	if err != nil {
		return fatal(err)
	}
	prompt, err := o.adapters.Prompt.GeneratePrompt(ctx, system, text)
	if err != nil {
		return fatal(err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fatal(capability.ErrEmptyReply)
	}
	if err := o.store.SetImagePrompt(ctx, dreamID, prompt); err != nil {
		return fatal(fmt.Errorf("failed to save image prompt: %w", err))
	}
	o.emit(dreamID, StageImagePrompt, Success, "Wrote image prompt", prompt)
	return Ok(prompt)
}

func (o *Orchestrator) image(ctx context.Context, dreamID uuid.UUID, prompt string) Outcome[string] {
	fatal := func(err error) Outcome[string] {
		return Fail[string](&StageError{Stage: StageImage, Err: err})
	}

	data, err := o.adapters.Image.GenerateImage(ctx, prompt)
	if err != nil {
		return fatal(err)
	}
	if len(data) == 0 {
		return fatal(capability.ErrEmptyReply)
	}
	rel, err := o.media.SaveImage(dreamID, data)
	if err != nil {
		return fatal(err)
	}
	if err := o.store.SetGeneratedImage(ctx, dreamID, rel); err != nil {
		_ = o.media.Remove(rel)
		return fatal(fmt.Errorf("failed to save image reference: %w", err))
	}
	o.emit(dreamID, StageImage, Success, "Generated image", rel)
	return Ok(rel)
}

// regenerate is best effort: the dream is already COMPLETED.
func (o *Orchestrator) regenerate(ctx context.Context, logger *slog.Logger, dreamID uuid.UUID) {
	if o.regenerator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message regeneration panicked", logging.Stage(string(StageMessage)), slog.Any("panic", r))
			o.emit(dreamID, StageMessage, Degraded, fmt.Sprintf("unexpected error: %v", r), nil)
		}
	}()
	message, err := o.regenerator.Regenerate(ctx, dreamID)
	if err != nil {
		logger.Warn("message regeneration failed", logging.Stage(string(StageMessage)), logging.Error(err))
		o.emit(dreamID, StageMessage, Degraded, err.Error(), nil)
		return
	}
	o.emit(dreamID, StageMessage, Success, "Wrote personal message", message)
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, dreamID uuid.UUID, cause error) Result {
	message := cause.Error()
	stage, _ := FailedStage(cause)
	logger.Error("dream failed", logging.Stage(string(stage)), logging.Error(cause))
	o.emit(dreamID, stage, Fatal, message, nil)

	if err := o.store.MarkFailed(ctx, dreamID, message); err != nil {
		logger.Error("failed to record dream failure", logging.Error(err))
		return o.current(ctx, dreamID, err)
	}
	// Failed dreams keep no image.
	if err := o.media.Remove(media.RelativePath(dreamID)); err != nil {
		logger.Warn("failed to remove image of failed dream", logging.Error(err))
	}
	return Result{DreamID: dreamID, Status: db.StatusFailed, ErrorMessage: message}
}

// current reports the stored state of a dream Process could not move.
func (o *Orchestrator) current(ctx context.Context, dreamID uuid.UUID, cause error) Result {
	res := Result{DreamID: dreamID, ErrorMessage: cause.Error()}
	if dream, err := o.store.GetDream(ctx, dreamID); err == nil {
		res.Status = dream.Status
		if dream.ErrorMessage != "" {
			res.ErrorMessage = dream.ErrorMessage
		}
	}
	return res
}

func (o *Orchestrator) emit(dreamID uuid.UUID, stage Stage, kind Kind, message string, content any) {
	if o.onProgress == nil {
		return
	}
	o.onProgress(ProgressEvent{
		DreamID: dreamID,
		Stage:   stage,
		Kind:    kind.String(),
		Message: message,
		Content: content,
	})
}
