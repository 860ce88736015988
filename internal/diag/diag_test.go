package diag

import "testing"

func TestNewLoggerNotNil(t *testing.T) {
	if NewLogger() == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestDiscardLoggerSwallowsOutput(t *testing.T) {
	logger := Discard()
	// Just exercise the call path; a discard logger should never panic.
	LogInconsistency(logger, Inconsistency{Rule: "test", ThreadID: 1, EventID: 2, Detail: "ok"})
}

func TestLogInconsistencyNilLoggerNoop(t *testing.T) {
	LogInconsistency(nil, Inconsistency{Rule: "test"})
}
