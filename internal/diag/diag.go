// Package diag provides the exploration engine's structured logging and
// inconsistency reporting.
//
// The teacher prints race reports straight to stderr with fmt.Fprintf
// (detector.go's reportRace); we generalize that into log/slog records so
// a caller embedding the engine can route them anywhere, while keeping the
// same "not on the hot path, formatted output is fine" posture.
package diag

import (
	"context"
	"log/slog"
	"os"
)

// NewLogger returns a logger with a quiet (WARN) default level, matching
// the teacher's behavior of only printing when something noteworthy
// happens (a detected race), not on every operation.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// Discard returns a logger that drops everything, for tests that don't
// want exploration noise on stdout/stderr.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Inconsistency is the structured payload behind ErrInconsistency:
// everything a caller needs to understand which consistency check failed
// and where, without the engine needing to format a human-readable trace
// (explicitly out of scope, see the Non-goals).
type Inconsistency struct {
	Rule    string
	ThreadID int32
	EventID  int64
	Detail   string
}

// LogInconsistency emits a structured warning for a detected
// inconsistency, mirroring the teacher's reportRace but through slog
// instead of raw Fprintf so attributes are queryable instead of
// string-formatted.
func LogInconsistency(logger *slog.Logger, inc Inconsistency) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, "consistency violation",
		slog.String("rule", inc.Rule),
		slog.Int64("thread_id", int64(inc.ThreadID)),
		slog.Int64("event_id", inc.EventID),
		slog.String("detail", inc.Detail),
	)
}
