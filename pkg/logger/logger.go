// Package logger builds the *slog.Logger every rsmcore component logs
// through. It intentionally knows nothing about consensus: it is the
// same small wrapper the teacher project uses for its own Raft peers.
package logger

import (
	"bytes"
	"log/slog"
	"os"
)

// Enviroment selects the logger's verbosity and encoding. Can be one of:
//   - Prod
//   - Dev
//   - Staging
type Enviroment int

const (
	_ Enviroment = iota
	Prod
	Dev
	Staging
)

// NewLogger creates a new *slog.Logger writing JSON to stdout. Dev logs
// at Debug level; Prod and Staging log at Info level. addSource attaches
// the caller's file:line to every record.
func NewLogger(env Enviroment, addSource bool) *slog.Logger {
	var level slog.Level
	switch env {
	case Prod, Staging:
		level = slog.LevelInfo
	case Dev:
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: addSource,
		Level:     level,
	})
	return slog.New(h)
}

// NewTestLogger returns a Debug-level logger writing plain text into an
// in-memory buffer, for tests that want to assert on log output.
func NewTestLogger() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	})
	return &buf, slog.New(h)
}

// ErrAttr is the canonical way every rsmcore component logs an error.
func ErrAttr(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
