package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/testsupport"
)

var now = time.Date(2026, time.May, 10, 15, 0, 0, 0, time.UTC)

func dreamAt(daysAgo int, emotion db.Emotion, transcription string) db.Dream {
	return db.Dream{
		CreatedAt:     now.AddDate(0, 0, -daysAgo),
		Emotion:       emotion,
		Transcription: transcription,
	}
}

func TestParsePeriod(t *testing.T) {
	for _, in := range []string{"3d", "7d", "30d", "1m", "all", "ALL"} {
		_, err := ParsePeriod(in)
		assert.NoError(t, err, in)
	}
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, SevenDays, p)

	_, err = ParsePeriod("2w")
	assert.Error(t, err)
}

func TestPeriodSince(t *testing.T) {
	assert.Equal(t, time.Date(2026, time.May, 8, 0, 0, 0, 0, time.UTC), ThreeDays.Since(now))
	assert.Equal(t, time.Date(2026, time.April, 11, 0, 0, 0, 0, time.UTC), Month.Since(now))
	assert.Equal(t, ThirtyDays.Since(now), Month.Since(now))
	assert.True(t, All.Since(now).IsZero())
}

func TestCompute(t *testing.T) {
	dreams := []db.Dream{
		dreamAt(0, db.EmotionJoy, "abcd"),
		dreamAt(1, db.EmotionJoy, "ab"),
		dreamAt(1, db.EmotionJoy, "abcdef"),
		dreamAt(5, db.EmotionFear, "été"),
	}
	r := Compute(dreams, SevenDays)

	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 42.86, r.Frequency)
	assert.Equal(t, map[db.Emotion]float64{db.EmotionJoy: 0.75, db.EmotionFear: 0.25}, r.Distribution)
	assert.Equal(t, []TrendPoint{
		{Date: "2026-05-05", AvgLength: 3},
		{Date: "2026-05-09", AvgLength: 4},
		{Date: "2026-05-10", AvgLength: 4},
	}, r.Trend)
}

func TestCompute_AllSpansObservedDays(t *testing.T) {
	r := Compute([]db.Dream{dreamAt(0, db.EmotionJoy, "x"), dreamAt(3, db.EmotionSadness, "")}, All)
	assert.Equal(t, 50.0, r.Frequency)
	assert.Len(t, r.Trend, 1)

	single := Compute([]db.Dream{dreamAt(0, db.EmotionJoy, "x")}, All)
	assert.Equal(t, 100.0, single.Frequency)
}

func TestCompute_Empty(t *testing.T) {
	r := Compute(nil, ThreeDays)
	assert.Zero(t, r.Total)
	assert.Zero(t, r.Frequency)
	assert.Empty(t, r.Distribution)
	assert.NotNil(t, r.Trend)
}

func TestCompute_DistributionRounding(t *testing.T) {
	r := Compute([]db.Dream{
		dreamAt(0, db.EmotionJoy, ""),
		dreamAt(0, db.EmotionFear, ""),
		dreamAt(0, db.EmotionAnger, ""),
	}, ThreeDays)
	assert.Equal(t, 0.333, r.Distribution[db.EmotionJoy])
	assert.Equal(t, 33.33, r.Frequency)
}

func TestDistinctEmotions(t *testing.T) {
	got := DistinctEmotions([]db.Dream{
		{Emotion: db.EmotionSadness}, {Emotion: db.EmotionJoy}, {Emotion: db.EmotionSadness}, {},
	})
	assert.Equal(t, []db.Emotion{db.EmotionJoy, db.EmotionSadness}, got)
}

func TestBuild(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	user := uuid.New()
	testsupport.CompletedDream(t, store, user, "un rêve", db.EmotionJoy)
	testsupport.CompletedDream(t, store, user, "un autre rêve", db.EmotionFear)
	testsupport.CompletedDream(t, store, uuid.New(), "pas à moi", db.EmotionAnger)

	svc := New(store, time.Now)
	r, err := svc.Build(context.Background(), user, SevenDays, "")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, []db.Emotion{db.EmotionFear, db.EmotionJoy}, r.Emotions)

	filtered, err := svc.Build(context.Background(), user, All, db.EmotionJoy)
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)
	assert.Equal(t, db.EmotionJoy, filtered.Emotion)
	assert.Equal(t, map[db.Emotion]float64{db.EmotionJoy: 1}, filtered.Distribution)
}
