// Package messages writes the daily message and the personal message attached
// to a dream, falling back to locally composed text when providers fail.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/astrology"
	"github.com/jonathan/dream-bridge/internal/capability"
	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/pipeline"
	"github.com/jonathan/dream-bridge/internal/prompts"
)

// ExcerptLimit is the longest transcription excerpt quoted in a fallback message.
const ExcerptLimit = 120

var (
	errNoGenerator     = errors.New("no message generator configured")
	errNoDailyProvider = errors.New("no daily message provider configured")
	errNoBirthDate     = errors.New("astrology enabled but no birth date known")
)

// Options configures a Service.
type Options struct {
	Store db.Store
	// Message and Daily are taken from the set. Either may be nil.
	Adapters capability.Set
	// TemplatePath optionally points at a personal message template file.
	// The embedded template is used when it is empty or unreadable.
	TemplatePath string
	Language     string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service regenerates dream messages. Regeneration has no concurrency guard:
// concurrent calls for the same dream each write a full consistent set of
// message fields and the last write wins.
type Service struct {
	store        db.Store
	generator    capability.MessageGenerator
	daily        capability.DailyMessageProvider
	templatePath string
	language     string
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a message service.
func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	language := opts.Language
	if language == "" {
		language = "fr"
	}
	return &Service{
		store:        opts.Store,
		generator:    opts.Adapters.Message,
		daily:        opts.Adapters.Daily,
		templatePath: opts.TemplatePath,
		language:     language,
		logger:       logging.Component(logging.OrNop(opts.Logger), "messages"),
		now:          now,
	}
}

// DailyMessage computes the user's message of the day: their horoscope when
// they believe in astrology and a birth date is known, the quote of the day
// otherwise. The sign always comes from the birth date; a stored sign only
// flavours the personal message. It is recomputed on every call. Failures degrade to a fixed
// encouragement so the value is always usable.
func (s *Service) DailyMessage(ctx context.Context, userID uuid.UUID) pipeline.Outcome[string] {
	profile := s.profile(ctx, userID)

	var (
		sign    astrology.Sign
		signErr error
	)
	if profile != nil && profile.BelievesInAstrology {
		if born := profile.BirthTime(); born != nil {
			sign = astrology.ForDate(*born)
		} else {
			signErr = errNoBirthDate
		}
	}

	fallback := prompts.Render(prompts.MessagesFile, "daily-fallback", s.language, nil)
	if s.daily == nil {
		return pipeline.Degrade(fallback, errNoDailyProvider)
	}

	text, err := s.daily.DailyMessage(ctx, sign, s.now())
	if err != nil {
		s.logger.Warn("daily message unavailable", logging.UserID(userID), logging.Error(err))
		return pipeline.Degrade(fallback, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return pipeline.Degrade(fallback, capability.ErrEmptyReply)
	}

	if sign != "" {
		text = prompts.Render(prompts.MessagesFile, "horoscope", s.language, map[string]string{
			"Name": s.username(profile),
			"Sign": capitalize(sign.Name(s.language)),
			"Text": text,
		})
	}
	if signErr != nil {
		return pipeline.Degrade(text, signErr)
	}
	return pipeline.Ok(text)
}

// Regenerate rewrites the daily and personal messages of a dream and returns
// the personal message. A missing or failing generator yields the local
// fallback message; only a missing dream or a failed write is an error.
func (s *Service) Regenerate(ctx context.Context, dreamID uuid.UUID) (string, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return "", fmt.Errorf("failed to load dream %s: %w", dreamID, err)
	}
	return s.regenerate(ctx, dream)
}

// RegenerateFor is Regenerate restricted to the dream's owner. Other
// requesters get db.ErrNotFound.
func (s *Service) RegenerateFor(ctx context.Context, dreamID, requester uuid.UUID) (string, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return "", fmt.Errorf("failed to load dream %s: %w", dreamID, err)
	}
	if dream.OwnerID != requester {
		return "", db.ErrNotFound
	}
	return s.regenerate(ctx, dream)
}

func (s *Service) regenerate(ctx context.Context, dream *db.Dream) (string, error) {
	logger := s.logger.With(logging.DreamID(dream.ID))
	profile := s.profile(ctx, dream.OwnerID)

	daily := s.DailyMessage(ctx, dream.OwnerID)
	personal := s.personalMessage(ctx, dream, profile)
	if personal.Kind == pipeline.Degraded {
		logger.Info("using fallback personal message", logging.Error(personal.Err))
	}

	today := db.DateOf(s.now())
	err := s.store.SetMessages(ctx, dream.ID, db.Messages{
		Phrase:             daily.Value,
		PhraseDate:         today,
		PersonalPhrase:     personal.Value,
		PersonalPhraseDate: today,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save messages: %w", err)
	}
	return personal.Value, nil
}

// DisplayMessage picks the message shown with a dream: the personal message,
// then the stored daily message, then a freshly computed daily message.
func (s *Service) DisplayMessage(ctx context.Context, dream *db.Dream) string {
	if msg := strings.TrimSpace(dream.PersonalPhrase); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(dream.Phrase); msg != "" {
		return msg
	}
	return s.DailyMessage(ctx, dream.OwnerID).Value
}

func (s *Service) personalMessage(ctx context.Context, dream *db.Dream, profile *db.Profile) pipeline.Outcome[string] {
	fallback := FallbackMessage(dream, profile, s.language)
	if s.generator == nil {
		return pipeline.Degrade(fallback, errNoGenerator)
	}

	system, err := prompts.Localized(prompts.MessagesFile, "personal-message-system", s.language)
	if err != nil {
		return pipeline.Degrade(fallback, err)
	}
	msg, err := s.generator.GenerateMessage(ctx, system, s.BuildPrompt(dream, profile))
	if err != nil {
		return pipeline.Degrade(fallback, err)
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return pipeline.Degrade(fallback, capability.ErrEmptyReply)
	}
	return pipeline.Ok(msg)
}

// BuildPrompt fills the personal message template with the dream and profile.
func (s *Service) BuildPrompt(dream *db.Dream, profile *db.Profile) string {
	believes := profile != nil && profile.BelievesInAstrology
	var signName string
	if sign, ok := profileSign(profile); ok {
		signName = capitalize(sign.Name(s.language))
	}
	emotion := dream.Emotion
	if emotion == "" {
		emotion = db.EmotionNeutral
	}

	return prompts.Format(s.template(), map[string]string{
		"Username":            s.username(profile),
		"DreamTranscription":  strings.TrimSpace(dream.Transcription),
		"ImagePrompt":         strings.TrimSpace(dream.ImagePrompt),
		"DominantEmotion":     emotionLabel(emotion, s.language),
		"BelievesInAstrology": fmt.Sprintf("%t", believes),
		"ZodiacSign":          signName,
	})
}

// template reads the configured template file on every call so edits apply
// without a restart.
func (s *Service) template() string {
	if s.templatePath != "" {
		data, err := os.ReadFile(s.templatePath)
		if err == nil && strings.TrimSpace(string(data)) != "" {
			return string(data)
		}
		s.logger.Debug("personal message template unavailable, using embedded", logging.String("path", s.templatePath), logging.Error(err))
	}
	tmpl, err := prompts.Localized(prompts.MessagesFile, "personal-message-template", s.language)
	if err != nil {
		return ""
	}
	return tmpl
}

func (s *Service) profile(ctx context.Context, userID uuid.UUID) *db.Profile {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("failed to load profile", logging.UserID(userID), logging.Error(err))
		}
		return nil
	}
	return profile
}

func (s *Service) username(profile *db.Profile) string {
	if profile != nil && strings.TrimSpace(profile.DisplayName) != "" {
		return strings.TrimSpace(profile.DisplayName)
	}
	return prompts.Render(prompts.MessagesFile, "default-username", s.language, nil)
}

// FallbackMessage composes the local personal message: an emotion sentence,
// a short transcription excerpt, an astrology nuance for believers with a
// known sign, and a closing call to action.
func FallbackMessage(dream *db.Dream, profile *db.Profile, language string) string {
	var b strings.Builder

	emotion := dream.Emotion
	if emotion != "" && emotion != db.EmotionNeutral {
		b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-emotion", language, map[string]string{
			"Emotion": emotionLabel(emotion, language),
		}))
	} else {
		b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-neutral", language, nil))
	}

	if excerpt := Excerpt(dream.Transcription, ExcerptLimit); excerpt != "" {
		b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-excerpt", language, map[string]string{
			"Excerpt": excerpt,
		}))
	}
	b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-core", language, nil))

	if profile != nil && profile.BelievesInAstrology {
		if sign, ok := profileSign(profile); ok {
			b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-astrology", language, map[string]string{
				"Sign": sign.Name(language),
			}))
		}
	}
	b.WriteString(prompts.Render(prompts.MessagesFile, "fallback-action", language, nil))
	return b.String()
}

// Excerpt trims text to at most limit runes. Longer text is cut at the last
// word boundary before limit-3 runes and ends with an ellipsis.
func Excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:max(limit-3, 0)])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + "…"
}

// profileSign resolves the sign from the stored sign text, or from the birth
// date for astrology believers.
func profileSign(profile *db.Profile) (astrology.Sign, bool) {
	if profile == nil {
		return "", false
	}
	if sign, ok := astrology.Parse(profile.ZodiacSign); ok {
		return sign, true
	}
	if profile.BelievesInAstrology {
		return astrology.Resolve("", profile.BirthTime())
	}
	return "", false
}

func emotionLabel(emotion db.Emotion, language string) string {
	if label := prompts.Render(prompts.MessagesFile, "emotion-label-"+string(emotion), language, nil); label != "" {
		return label
	}
	return string(emotion)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
