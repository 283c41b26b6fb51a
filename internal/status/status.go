// Package status answers dream status queries for polling clients.
package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/db"
)

// ErrNotFound is returned for unknown dreams and for dreams the requester
// does not own; callers cannot tell the two apart.
var ErrNotFound = errors.New("dream not found")

// Result is the polling view of a dream.
type Result struct {
	Status db.Status `json:"status"`
	// StatusURL points at the full dream view once processing has ended.
	StatusURL string `json:"status_url,omitempty"`
}

// Service reads dream status from the store.
type Service struct {
	store db.Store
}

// New creates a status service.
func New(store db.Store) *Service {
	return &Service{store: store}
}

// Get returns the status of a dream owned by requester.
func (s *Service) Get(ctx context.Context, dreamID, requester uuid.UUID) (Result, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if errors.Is(err, db.ErrNotFound) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to get dream status: %w", err)
	}
	if dream.OwnerID != requester {
		return Result{}, ErrNotFound
	}

	res := Result{Status: dream.Status}
	if dream.Status.IsTerminal() {
		res.StatusURL = DreamURL(dream.ID)
	}
	return res, nil
}

// DreamURL is the path of the full dream view.
func DreamURL(id uuid.UUID) string {
	return "/dreams/" + id.String()
}
