package explore

import (
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

type loopKey struct {
	thread clock.ThreadID
	at     label.CodeLocation
}

// loopHistory tracks a single (thread, codeLocation)'s recent read-response
// values, bounded to the last SPIN_BOUND values.
type loopHistory struct {
	values []objid.ValueID
	hits   uint64
}

// LoopDetector counts hits per (threadId, codeLocation) and flags a spin
// loop once the same code location has returned the same value at least
// bound times in a row.
//
// Grounded on the teacher's reportedRaces sync.Map deduplication pattern
// (internal/race/detector/detector.go) — a keyed map guarding against
// repeating the same signal — generalized here from "don't re-report a
// race" to "recognize a read that keeps returning the same value."
type LoopDetector struct {
	bound int
	byKey map[loopKey]*loopHistory
}

// NewLoopDetector returns a detector that trips after bound consecutive
// identical reads at the same code location. bound <= 0 disables tripping.
func NewLoopDetector(bound int) *LoopDetector {
	return &LoopDetector{bound: bound, byKey: make(map[loopKey]*loopHistory)}
}

// RecordRead registers a read-response value observed at (thread, at), and
// reports whether this trips the spin bound: the location has now been hit
// at least bound times and the last bound reads all returned value.
func (d *LoopDetector) RecordRead(thread clock.ThreadID, at label.CodeLocation, value objid.ValueID) bool {
	if d.bound <= 0 {
		return false
	}
	key := loopKey{thread: thread, at: at}
	h, ok := d.byKey[key]
	if !ok {
		h = &loopHistory{}
		d.byKey[key] = h
	}
	h.hits++
	h.values = append(h.values, value)
	if len(h.values) > d.bound {
		h.values = h.values[len(h.values)-d.bound:]
	}
	if h.hits < uint64(d.bound) || len(h.values) < d.bound {
		return false
	}
	first := h.values[0]
	for _, v := range h.values[1:] {
		if !v.Equal(first) {
			return false
		}
	}
	return true
}

// Hits returns how many times (thread, at) has been recorded, for
// diagnostics.
func (d *LoopDetector) Hits(thread clock.ThreadID, at label.CodeLocation) uint64 {
	if h, ok := d.byKey[loopKey{thread: thread, at: at}]; ok {
		return h.hits
	}
	return 0
}

// Reset clears all recorded history. The engine does not call it;
// InitializeExploration keeps the detector's history.
func (d *LoopDetector) Reset() {
	d.byKey = make(map[loopKey]*loopHistory)
}

// SpinHit reports one code location's accumulated hit count, keyed by
// thread and location, for the per-code-location spin statistics snapshot.
type SpinHit struct {
	Thread clock.ThreadID
	At     label.CodeLocation
	Hits   uint64
}

// Snapshot returns every recorded (thread, codeLocation) hit count.
func (d *LoopDetector) Snapshot() []SpinHit {
	out := make([]SpinHit, 0, len(d.byKey))
	for k, h := range d.byKey {
		out = append(out, SpinHit{Thread: k.thread, At: k.at, Hits: h.hits})
	}
	return out
}
