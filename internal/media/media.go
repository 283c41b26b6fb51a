// Package media stores generated dream images under a media root.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ImageDir is the directory, relative to the media root, holding dream images.
const ImageDir = "dreams/images"

// Store writes image artifacts below Root. Paths returned by Save are relative
// to Root and use forward slashes so they can be stored and served as-is.
type Store struct {
	Root string
}

// NewStore creates the image directory under root if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(ImageDir)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{Root: root}, nil
}

// ImageName returns the artifact name for a dream image.
func ImageName(id uuid.UUID) string {
	return fmt.Sprintf("dream_%s.png", id)
}

// RelativePath returns the stored reference for a dream image.
func RelativePath(id uuid.UUID) string {
	return ImageDir + "/" + ImageName(id)
}

// Path resolves a stored reference to a filesystem path.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// SaveImage writes data for dream id and returns its relative reference.
// The file is written to a temp name and renamed so readers never see a
// partial image.
func (s *Store) SaveImage(id uuid.UUID, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("image for dream %s is empty", id)
	}
	rel := RelativePath(id)
	dst := s.Path(rel)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".dream-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return rel, nil
}

// Remove deletes a stored artifact. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	if err := os.Remove(s.Path(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}
