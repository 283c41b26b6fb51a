package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteAudio writes a small fake recording under dir and returns its path.
func WriteAudio(t testing.TB, dir string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	f, err := os.CreateTemp(dir, "dream-*.webm")
	if err != nil {
		t.Fatalf("create audio: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("\x1aE\xdf\xa3fake-webm-audio")); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return filepath.Clean(f.Name())
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
