package testutil

import (
	"io"
	"log/slog"
	"testing"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SilenceLogs installs DiscardLogger as the default logger for the duration
// of the test.
func SilenceLogs(t testing.TB) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(DiscardLogger())
	t.Cleanup(func() { slog.SetDefault(prev) })
}
