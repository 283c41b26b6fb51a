package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())

	s, err := ParseStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)

	_, err = ParseStatus("DONE")
	assert.Error(t, err)
}

func TestParseEmotion(t *testing.T) {
	tests := []struct {
		in   string
		want Emotion
		ok   bool
	}{
		{"joy", EmotionJoy, true},
		{" Fear ", EmotionFear, true},
		{"peur", EmotionFear, true},
		{"Colère", EmotionAnger, true},
		{"dégoût", EmotionDisgust, true},
		{"neutre", EmotionNeutral, true},
		{"nostalgia", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEmotion(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, Emotions(), 7)
}

func TestDate(t *testing.T) {
	d := DateOf(time.Date(2024, 2, 29, 23, 59, 0, 0, time.FixedZone("CET", 3600)))
	assert.Equal(t, "2024-02-29", d.String())

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(data))

	var zero Date
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var parsed Date
	require.NoError(t, json.Unmarshal([]byte(`"1990-05-21"`), &parsed))
	assert.Equal(t, "1990-05-21", parsed.String())
	assert.Error(t, json.Unmarshal([]byte(`"21/05/1990"`), &parsed))
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2023-10-01"))
	assert.Equal(t, "2023-10-01", d.String())

	require.NoError(t, d.Scan([]byte("2023-10-02T00:00:00Z")))
	assert.Equal(t, "2023-10-02", d.String())

	require.NoError(t, d.Scan(time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-10-03", d.String())

	assert.Error(t, d.Scan(42))
}

func TestProfile_BirthTime(t *testing.T) {
	var p *Profile
	assert.Nil(t, p.BirthTime())

	birth, err := ParseDate("2000-01-01")
	require.NoError(t, err)
	p = &Profile{BirthDate: &birth}
	require.NotNil(t, p.BirthTime())
	assert.Equal(t, 2000, p.BirthTime().Year())
}
