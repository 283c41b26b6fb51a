// Package logging builds the structured loggers used across the service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Standard structured field names.
const (
	FieldComponent = "component"
	FieldDreamID   = "dream_id"
	FieldUserID    = "user_id"
	FieldStage     = "stage"
	FieldError     = "error"
)

// New constructs a slog logger writing to w in the given format ("text" or "json").
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "console":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrNop returns logger, or a discarding logger when nil.
func OrNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return logger
}

// Component tags a logger with a component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return OrNop(logger).With(slog.String(FieldComponent, name))
}

// String is shorthand for slog.String.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Error renders err as an attribute; nil errors render as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// DreamID renders a dream identifier.
func DreamID(id uuid.UUID) slog.Attr {
	return slog.String(FieldDreamID, id.String())
}

// UserID renders a user identifier.
func UserID(id uuid.UUID) slog.Attr {
	return slog.String(FieldUserID, id.String())
}

// Stage renders a pipeline stage name.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}
