// Package db persists dreams and user profiles in PostgreSQL or SQLite.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a dream or profile does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a guarded update finds the dream
	// in a state that does not allow the change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DefaultFailureMessage is recorded when a dream fails without a reason.
const DefaultFailureMessage = "processing failed"

// Store is the dream record store. Every method is a single statement keyed
// by primary key, so each write is visible to readers as soon as it returns.
//
// Stage fields (transcription, emotion, image prompt, generated image) can
// only be written while the dream is PROCESSING. Status changes are guarded
// by the expected current status.
type Store interface {
	CreateDream(ctx context.Context, ownerID uuid.UUID) (*Dream, error)
	GetDream(ctx context.Context, id uuid.UUID) (*Dream, error)
	ListDreams(ctx context.Context, filters DreamFilters) ([]Dream, error)

	MarkProcessing(ctx context.Context, id uuid.UUID) error
	SetTranscription(ctx context.Context, id uuid.UUID, text string) error
	SetEmotion(ctx context.Context, id uuid.UUID, emotion Emotion) error
	SetImagePrompt(ctx context.Context, id uuid.UUID, prompt string) error
	SetGeneratedImage(ctx context.Context, id uuid.UUID, path string) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	SetMessages(ctx context.Context, id uuid.UUID, msgs Messages) error
	FailStale(ctx context.Context, olderThan time.Time, message string) (int64, error)

	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store named by url. postgres:// and postgresql://
// URLs use PostgreSQL; sqlite:// URLs, file: DSNs and bare paths use SQLite.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case url == "":
		return nil, fmt.Errorf("database url is required")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Connect(ctx, url)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	}
}

func failureMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultFailureMessage
	}
	return message
}

// guardResult turns a zero-row guarded update into the right sentinel error.
// exists is consulted only when nothing was updated.
func guardResult(affected int64, exists func() (bool, error)) error {
	if affected > 0 {
		return nil
	}
	found, err := exists()
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return ErrInvalidTransition
}
