package pipeline

import (
	"math"

	"github.com/jonathan/dream-bridge/internal/db"
)

// DominantEmotion picks the highest scoring supported emotion. Labels are
// normalized first, so "joy" and "joie" count as the same emotion and the
// larger of their scores is used. Ties go to the lexicographically smallest
// emotion. With no supported label the result is neutral.
func DominantEmotion(scores map[string]float64) db.Emotion {
	best := make(map[db.Emotion]float64, len(scores))
	for label, score := range scores {
		emotion, ok := db.ParseEmotion(label)
		if !ok || math.IsNaN(score) {
			continue
		}
		if prev, seen := best[emotion]; !seen || score > prev {
			best[emotion] = score
		}
	}

	winner := db.EmotionNeutral
	found := false
	var top float64
	for emotion, score := range best {
		switch {
		case !found, score > top, score == top && emotion < winner:
			winner, top, found = emotion, score, true
		}
	}
	return winner
}
