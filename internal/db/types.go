package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a dream.
type Status string

// Dream lifecycle states. Transitions are PENDING -> PROCESSING -> COMPLETED|FAILED.
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Emotion is the dominant emotion detected in a dream.
type Emotion string

// Supported emotions.
const (
	EmotionNeutral  Emotion = "neutral"
	EmotionJoy      Emotion = "joy"
	EmotionSadness  Emotion = "sadness"
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionSurprise Emotion = "surprise"
	EmotionDisgust  Emotion = "disgust"
)

// emotionAliases accepts English labels plus the French labels classifiers
// tend to answer with when prompted in French.
var emotionAliases = map[string]Emotion{
	"neutral":   EmotionNeutral,
	"neutre":    EmotionNeutral,
	"joy":       EmotionJoy,
	"joie":      EmotionJoy,
	"happiness": EmotionJoy,
	"sadness":   EmotionSadness,
	"tristesse": EmotionSadness,
	"anger":     EmotionAnger,
	"colère":    EmotionAnger,
	"colere":    EmotionAnger,
	"fear":      EmotionFear,
	"peur":      EmotionFear,
	"surprise":  EmotionSurprise,
	"disgust":   EmotionDisgust,
	"dégoût":    EmotionDisgust,
	"degout":    EmotionDisgust,
}

// Emotions returns every supported emotion.
func Emotions() []Emotion {
	return []Emotion{EmotionNeutral, EmotionJoy, EmotionSadness, EmotionAnger, EmotionFear, EmotionSurprise, EmotionDisgust}
}

// ParseEmotion maps a classifier label to a supported emotion.
func ParseEmotion(label string) (Emotion, bool) {
	e, ok := emotionAliases[strings.ToLower(strings.TrimSpace(label))]
	return e, ok
}

// Dream is a submitted dream recording and everything derived from it.
type Dream struct {
	ID                 uuid.UUID `json:"id"`
	OwnerID            uuid.UUID `json:"owner_id"`
	Status             Status    `json:"status"`
	Transcription      string    `json:"transcription"`
	Emotion            Emotion   `json:"emotion"`
	ImagePrompt        string    `json:"image_prompt"`
	GeneratedImage     *string   `json:"generated_image,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	Phrase             string    `json:"phrase"`
	PhraseDate         *Date     `json:"phrase_date,omitempty"`
	PersonalPhrase     string    `json:"personal_phrase"`
	PersonalPhraseDate *Date     `json:"personal_phrase_date,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Messages is the set of message fields written together on regeneration.
type Messages struct {
	Phrase             string
	PhraseDate         Date
	PersonalPhrase     string
	PersonalPhraseDate Date
}

// Profile is the read-mostly user profile consulted for personalization.
type Profile struct {
	UserID              uuid.UUID `json:"user_id"`
	DisplayName         string    `json:"display_name"`
	BirthDate           *Date     `json:"birth_date,omitempty"`
	ZodiacSign          string    `json:"zodiac_sign"`
	BelievesInAstrology bool      `json:"believes_in_astrology"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// BirthTime returns the birth date as a time pointer, nil when unknown.
func (p *Profile) BirthTime() *time.Time {
	if p == nil || p.BirthDate == nil || p.BirthDate.IsZero() {
		return nil
	}
	t := p.BirthDate.Time
	return &t
}

// DreamFilters narrows ListDreams. Zero values do not filter.
type DreamFilters struct {
	OwnerID uuid.UUID
	Status  Status
	Emotion Emotion
	// Day restricts results to dreams created on this calendar day (UTC).
	Day   *Date
	Since time.Time
	Limit int
}

// Date is a calendar date stored as SQL DATE (YYYY-MM-DD)
type Date struct {
	time.Time
}

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Scan implements the Scanner interface. SQLite hands back text.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		d.Time = v
		return nil
	case string:
		parsed, err := parseDateText(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := parseDateText(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	return errors.New("failed to scan Date")
}

func parseDateText(s string) (Date, error) {
	if len(s) >= len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	return ParseDate(s)
}

// Value implements the Valuer interface
func (d *Date) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return d.Time, nil
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" || str == `""` {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
