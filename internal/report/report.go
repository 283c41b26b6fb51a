// Package report computes dream journal metrics for a user over a period.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/db"
)

// Period selects the window of dreams a report covers.
type Period string

// Supported periods. Month and ThirtyDays cover the same window.
const (
	ThreeDays  Period = "3d"
	SevenDays  Period = "7d"
	ThirtyDays Period = "30d"
	Month      Period = "1m"
	All        Period = "all"
)

// DefaultPeriod is used when none is requested.
const DefaultPeriod = SevenDays

// ParsePeriod parses a period name. An empty name is the default period.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return DefaultPeriod, nil
	case ThreeDays, SevenDays, ThirtyDays, Month, All:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q (want 3d, 7d, 30d, 1m or all)", s)
}

// Days is the window length in days, 0 for All.
func (p Period) Days() int {
	switch p {
	case ThreeDays:
		return 3
	case SevenDays:
		return 7
	case ThirtyDays, Month:
		return 30
	}
	return 0
}

// Since returns the first instant of the window ending today, or the zero
// time for All.
func (p Period) Since(now time.Time) time.Time {
	days := p.Days()
	if days == 0 {
		return time.Time{}
	}
	return db.DateOf(now.UTC()).AddDate(0, 0, -(days - 1))
}

// TrendPoint is the average transcription length of one day.
type TrendPoint struct {
	Date      string  `json:"date"`
	AvgLength float64 `json:"avg_length"`
}

// Report holds the metrics of one user for one period.
type Report struct {
	Period       Period                 `json:"period"`
	Emotion      db.Emotion             `json:"emotion,omitempty"`
	Total        int                    `json:"total_dreams"`
	Frequency    float64                `json:"dream_frequency"`
	Distribution map[db.Emotion]float64 `json:"emotion_distribution"`
	Trend        []TrendPoint           `json:"transcription_trend"`
	Emotions     []db.Emotion           `json:"available_emotions"`
}

// Service builds reports from the store.
type Service struct {
	store db.Store
	now   func() time.Time
}

// New creates a report service. A nil now uses time.Now.
func New(store db.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Build computes the report of userID's dreams for period, optionally
// restricted to one emotion.
func (s *Service) Build(ctx context.Context, userID uuid.UUID, period Period, emotion db.Emotion) (*Report, error) {
	now := s.now()
	dreams, err := s.store.ListDreams(ctx, db.DreamFilters{
		OwnerID: userID,
		Emotion: emotion,
		Since:   period.Since(now),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dreams: %w", err)
	}
	all, err := s.store.ListDreams(ctx, db.DreamFilters{OwnerID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load dreams: %w", err)
	}

	r := Compute(dreams, period)
	r.Emotion = emotion
	r.Emotions = DistinctEmotions(all)
	return &r, nil
}

// Compute derives the metrics of dreams, which must already be restricted
// to the period.
func Compute(dreams []db.Dream, period Period) Report {
	r := Report{
		Period:       period,
		Total:        len(dreams),
		Distribution: map[db.Emotion]float64{},
		Trend:        []TrendPoint{},
	}
	if len(dreams) == 0 {
		return r
	}

	days := map[string]bool{}
	counts := map[db.Emotion]int{}
	lengths := map[string][]int{}
	earliest, latest := dreams[0].CreatedAt, dreams[0].CreatedAt
	for _, d := range dreams {
		day := db.DateOf(d.CreatedAt.UTC()).String()
		days[day] = true
		if d.Emotion != "" {
			counts[d.Emotion]++
		}
		if d.Transcription != "" {
			lengths[day] = append(lengths[day], utf8.RuneCountInString(d.Transcription))
		}
		if d.CreatedAt.Before(earliest) {
			earliest = d.CreatedAt
		}
		if d.CreatedAt.After(latest) {
			latest = d.CreatedAt
		}
	}

	totalDays := period.Days()
	if totalDays == 0 {
		span := db.DateOf(latest.UTC()).Sub(db.DateOf(earliest.UTC()).Time)
		totalDays = max(1, int(span.Hours()/24)+1)
	}
	r.Frequency = round(math.Min(float64(len(days))/float64(totalDays)*100, 100), 2)

	var labelled int
	for _, n := range counts {
		labelled += n
	}
	for emotion, n := range counts {
		r.Distribution[emotion] = round(float64(n)/float64(labelled), 3)
	}

	dayKeys := make([]string, 0, len(lengths))
	for day := range lengths {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)
	for _, day := range dayKeys {
		sum := 0
		for _, n := range lengths[day] {
			sum += n
		}
		r.Trend = append(r.Trend, TrendPoint{Date: day, AvgLength: round(float64(sum)/float64(len(lengths[day])), 2)})
	}
	return r
}

// DistinctEmotions lists the emotions present in dreams, sorted.
func DistinctEmotions(dreams []db.Dream) []db.Emotion {
	seen := map[db.Emotion]bool{}
	var out []db.Emotion
	for _, d := range dreams {
		if d.Emotion != "" && !seen[d.Emotion] {
			seen[d.Emotion] = true
			out = append(out, d.Emotion)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
