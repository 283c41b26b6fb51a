package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract shared by every backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		owner := uuid.New()

		dream, err := store.CreateDream(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, owner, dream.OwnerID)
		assert.Equal(t, StatusPending, dream.Status)
		assert.Equal(t, EmotionNeutral, dream.Emotion)
		assert.Nil(t, dream.GeneratedImage)
		assert.Empty(t, dream.ErrorMessage)

		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, dream.ID, got.ID)
	})

	t.Run("get unknown dream", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetDream(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("happy path transitions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		dream, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)

		require.NoError(t, store.MarkProcessing(ctx, dream.ID))
		require.NoError(t, store.SetTranscription(ctx, dream.ID, "I was flying"))
		require.NoError(t, store.SetEmotion(ctx, dream.ID, EmotionJoy))
		require.NoError(t, store.SetImagePrompt(ctx, dream.ID, "a sky of paper birds"))

		// Completion requires an image.
		assert.ErrorIs(t, store.MarkCompleted(ctx, dream.ID), ErrInvalidTransition)

		require.NoError(t, store.SetGeneratedImage(ctx, dream.ID, "dreams/images/dream_x.png"))
		require.NoError(t, store.MarkCompleted(ctx, dream.ID))

		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, "I was flying", got.Transcription)
		assert.Equal(t, EmotionJoy, got.Emotion)
		assert.Equal(t, "a sky of paper birds", got.ImagePrompt)
		require.NotNil(t, got.GeneratedImage)
		assert.Equal(t, "dreams/images/dream_x.png", *got.GeneratedImage)
		assert.Empty(t, got.ErrorMessage)
	})

	t.Run("transitions are monotonic", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		dream, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)

		// Stage fields need PROCESSING.
		assert.ErrorIs(t, store.SetTranscription(ctx, dream.ID, "early"), ErrInvalidTransition)

		require.NoError(t, store.MarkProcessing(ctx, dream.ID))
		assert.ErrorIs(t, store.MarkProcessing(ctx, dream.ID), ErrInvalidTransition)

		require.NoError(t, store.MarkFailed(ctx, dream.ID, "transcription failed: boom"))
		assert.ErrorIs(t, store.MarkFailed(ctx, dream.ID, "again"), ErrInvalidTransition)
		assert.ErrorIs(t, store.MarkProcessing(ctx, dream.ID), ErrInvalidTransition)
		assert.ErrorIs(t, store.SetGeneratedImage(ctx, dream.ID, "late.png"), ErrInvalidTransition)

		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "transcription failed: boom", got.ErrorMessage)
		assert.Nil(t, got.GeneratedImage)
	})

	t.Run("guarded update on unknown dream", func(t *testing.T) {
		store := newStore(t)
		assert.ErrorIs(t, store.MarkProcessing(context.Background(), uuid.New()), ErrNotFound)
	})

	t.Run("failed without reason gets default message", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		dream, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)

		require.NoError(t, store.MarkFailed(ctx, dream.ID, "  "))
		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, DefaultFailureMessage, got.ErrorMessage)
	})

	t.Run("failing after the image stage clears the image", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		failed, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessing(ctx, failed.ID))
		require.NoError(t, store.SetGeneratedImage(ctx, failed.ID, "dreams/images/a.png"))
		require.NoError(t, store.MarkFailed(ctx, failed.ID, "finalize failed"))

		got, err := store.GetDream(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Nil(t, got.GeneratedImage)

		stale, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessing(ctx, stale.ID))
		require.NoError(t, store.SetGeneratedImage(ctx, stale.ID, "dreams/images/b.png"))
		n, err := store.FailStale(ctx, time.Now().Add(time.Hour), "interrupted")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err = store.GetDream(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Nil(t, got.GeneratedImage)
	})

	t.Run("messages written together", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		dream, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)

		day := DateOf(time.Date(2025, 3, 4, 22, 0, 0, 0, time.UTC))
		require.NoError(t, store.SetMessages(ctx, dream.ID, Messages{
			Phrase: "daily", PhraseDate: day, PersonalPhrase: "personal", PersonalPhraseDate: day,
		}))

		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, "daily", got.Phrase)
		assert.Equal(t, "personal", got.PersonalPhrase)
		require.NotNil(t, got.PersonalPhraseDate)
		assert.Equal(t, "2025-03-04", got.PersonalPhraseDate.String())
		require.NotNil(t, got.PhraseDate)
		assert.Equal(t, "2025-03-04", got.PhraseDate.String())

		// An empty personal phrase clears its date.
		require.NoError(t, store.SetMessages(ctx, dream.ID, Messages{Phrase: "daily", PhraseDate: day}))
		got, err = store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Empty(t, got.PersonalPhrase)
		assert.Nil(t, got.PersonalPhraseDate)

		assert.ErrorIs(t, store.SetMessages(ctx, uuid.New(), Messages{}), ErrNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		owner, other := uuid.New(), uuid.New()

		completed := completeDream(t, store, owner, EmotionFear)
		_ = completeDream(t, store, owner, EmotionJoy)
		_, err := store.CreateDream(ctx, owner)
		require.NoError(t, err)
		_ = completeDream(t, store, other, EmotionFear)

		all, err := store.ListDreams(ctx, DreamFilters{OwnerID: owner})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		done, err := store.ListDreams(ctx, DreamFilters{OwnerID: owner, Status: StatusCompleted})
		require.NoError(t, err)
		assert.Len(t, done, 2)

		fear, err := store.ListDreams(ctx, DreamFilters{OwnerID: owner, Emotion: EmotionFear})
		require.NoError(t, err)
		require.Len(t, fear, 1)
		assert.Equal(t, completed.ID, fear[0].ID)

		today := DateOf(completed.CreatedAt.UTC())
		onDay, err := store.ListDreams(ctx, DreamFilters{OwnerID: owner, Day: &today})
		require.NoError(t, err)
		assert.Len(t, onDay, 3)

		limited, err := store.ListDreams(ctx, DreamFilters{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		future, err := store.ListDreams(ctx, DreamFilters{Since: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, future)
	})

	t.Run("fail stale processing dreams", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		dream, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessing(ctx, dream.ID))
		pending, err := store.CreateDream(ctx, uuid.New())
		require.NoError(t, err)

		n, err := store.FailStale(ctx, time.Now().Add(-time.Hour), "interrupted")
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = store.FailStale(ctx, time.Now().Add(time.Hour), "interrupted")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := store.GetDream(ctx, dream.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "interrupted", got.ErrorMessage)

		untouched, err := store.GetDream(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, untouched.Status)
	})

	t.Run("profiles", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		userID := uuid.New()

		_, err := store.GetProfile(ctx, userID)
		assert.ErrorIs(t, err, ErrNotFound)

		birth, err := ParseDate("1991-07-30")
		require.NoError(t, err)
		require.NoError(t, store.UpsertProfile(ctx, Profile{
			UserID: userID, DisplayName: "Camille", BirthDate: &birth, BelievesInAstrology: true,
		}))

		got, err := store.GetProfile(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Camille", got.DisplayName)
		assert.True(t, got.BelievesInAstrology)
		require.NotNil(t, got.BirthDate)
		assert.Equal(t, "1991-07-30", got.BirthDate.String())

		require.NoError(t, store.UpsertProfile(ctx, Profile{UserID: userID, DisplayName: "Cam", ZodiacSign: "Lion"}))
		got, err = store.GetProfile(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "Cam", got.DisplayName)
		assert.Equal(t, "Lion", got.ZodiacSign)
		assert.False(t, got.BelievesInAstrology)
		assert.Nil(t, got.BirthDate)
	})
}

func completeDream(t *testing.T, store Store, owner uuid.UUID, emotion Emotion) *Dream {
	t.Helper()
	ctx := context.Background()
	dream, err := store.CreateDream(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessing(ctx, dream.ID))
	require.NoError(t, store.SetEmotion(ctx, dream.ID, emotion))
	require.NoError(t, store.SetGeneratedImage(ctx, dream.ID, "dreams/images/dream_"+dream.ID.String()+".png"))
	require.NoError(t, store.MarkCompleted(ctx, dream.ID))
	return dream
}
