// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/db"
)

// MustOpenStore opens a migrated in-memory SQLite store and registers cleanup.
func MustOpenStore(t testing.TB) *db.SQLiteDB {
	t.Helper()

	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("db.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("store.Migrate: %v", err)
	}
	return store
}

// NewDream creates a PENDING dream owned by owner.
func NewDream(t testing.TB, store db.Store, owner uuid.UUID) *db.Dream {
	t.Helper()

	dream, err := store.CreateDream(context.Background(), owner)
	if err != nil {
		t.Fatalf("store.CreateDream: %v", err)
	}
	return dream
}

// CompletedDream walks a new dream through every stage to COMPLETED.
func CompletedDream(t testing.TB, store db.Store, owner uuid.UUID, transcription string, emotion db.Emotion) *db.Dream {
	t.Helper()

	ctx := context.Background()
	dream := NewDream(t, store, owner)
	steps := []func() error{
		func() error { return store.MarkProcessing(ctx, dream.ID) },
		func() error { return store.SetTranscription(ctx, dream.ID, transcription) },
		func() error { return store.SetEmotion(ctx, dream.ID, emotion) },
		func() error { return store.SetImagePrompt(ctx, dream.ID, "a calm sea at night") },
		func() error {
			return store.SetGeneratedImage(ctx, dream.ID, "dreams/images/dream_"+dream.ID.String()+".png")
		},
		func() error { return store.MarkCompleted(ctx, dream.ID) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("complete dream: %v", err)
		}
	}
	got, err := store.GetDream(ctx, dream.ID)
	if err != nil {
		t.Fatalf("store.GetDream: %v", err)
	}
	return got
}

// SaveProfile upserts a profile.
func SaveProfile(t testing.TB, store db.Store, profile db.Profile) {
	t.Helper()

	if err := store.UpsertProfile(context.Background(), profile); err != nil {
		t.Fatalf("store.UpsertProfile: %v", err)
	}
}

// FaultyStore wraps a Store and fails selected writes.
type FaultyStore struct {
	db.Store
	SetEmotionErr    error
	SetMessagesErr   error
	MarkCompletedErr error
	MarkFailedErr    error
}

// SetEmotion fails with SetEmotionErr when set.
func (s *FaultyStore) SetEmotion(ctx context.Context, id uuid.UUID, emotion db.Emotion) error {
	if s.SetEmotionErr != nil {
		return s.SetEmotionErr
	}
	return s.Store.SetEmotion(ctx, id, emotion)
}

// SetMessages fails with SetMessagesErr when set.
func (s *FaultyStore) SetMessages(ctx context.Context, id uuid.UUID, msgs db.Messages) error {
	if s.SetMessagesErr != nil {
		return s.SetMessagesErr
	}
	return s.Store.SetMessages(ctx, id, msgs)
}

// MarkCompleted fails with MarkCompletedErr when set.
func (s *FaultyStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	if s.MarkCompletedErr != nil {
		return s.MarkCompletedErr
	}
	return s.Store.MarkCompleted(ctx, id)
}

// MarkFailed fails with MarkFailedErr when set.
func (s *FaultyStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	if s.MarkFailedErr != nil {
		return s.MarkFailedErr
	}
	return s.Store.MarkFailed(ctx, id, message)
}
