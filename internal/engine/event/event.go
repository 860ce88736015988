// Package event implements the exploration engine's event model: an
// immutable record of one label occurring on one thread, plus the arena
// that owns events by id.
//
// Events reference each other (a parent, a set of dependencies) by id
// rather than by pointer, the same way the teacher's shadow memory stores
// epochs (thread, clock) pairs rather than pointers to the events that
// produced them — it keeps the graph acyclic-by-construction and lets the
// arena be the single owner responsible for an event's lifetime.
package event

import (
	"fmt"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/label"
)

// ID uniquely identifies an event within one exploration. IDs are
// allocated monotonically by the Arena and are never reused within a
// single exploration (they are reset, along with everything else, on a
// full backtracking restart — see the explore package).
type ID int64

// InvalidID marks the absence of an event, used as the parent id of the
// very first event in a thread.
const InvalidID ID = -1

// Event is one immutable occurrence of a label on a thread.
type Event struct {
	ID ID

	ThreadID       clock.ThreadID
	ThreadPosition int64 // this event's zero-based index within its thread's sequence.

	Label label.Label

	// Parent is the id of the immediately preceding event on the same
	// thread, or InvalidID for a thread's first event.
	Parent ID

	// Dependencies are the ids of events on other threads this event's
	// causality depends on: for a Response, its resolving Send; for any
	// event, whatever the engine folded into its causality clock.
	Dependencies []ID

	// CausalityClock is the pointwise join of this event's parent's clock
	// and every dependency's clock, with this event's own thread slot
	// stamped to ThreadPosition (see the data model's causality-clock
	// invariant).
	CausalityClock *clock.CausalityClock
}

// String renders a compact debug form.
func (e *Event) String() string {
	return fmt.Sprintf("#%d[t%d@%d]%s", e.ID, e.ThreadID, e.ThreadPosition, e.Label)
}

// HappensBefore reports whether e happens-before other, per their
// causality clocks.
func (e *Event) HappensBefore(other *Event) bool {
	return e.CausalityClock.HappensBefore(other.CausalityClock)
}

// Concurrent reports whether neither e nor other happens-before the other.
func (e *Event) Concurrent(other *Event) bool {
	return e.CausalityClock.Concurrent(other.CausalityClock)
}

// Arena owns every event allocated during one exploration and is the sole
// authority for resolving an ID back to an *Event.
type Arena struct {
	nextID ID
	events map[ID]*Event
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{events: make(map[ID]*Event)}
}

// Create allocates a new event with the next id and stores it.
func (a *Arena) Create(threadID clock.ThreadID, threadPosition int64, lbl label.Label, parent ID, deps []ID, causality *clock.CausalityClock) *Event {
	e := &Event{
		ID:             a.nextID,
		ThreadID:       threadID,
		ThreadPosition: threadPosition,
		Label:          lbl,
		Parent:         parent,
		Dependencies:   append([]ID(nil), deps...),
		CausalityClock: causality,
	}
	a.events[e.ID] = e
	a.nextID++
	return e
}

// Get resolves id to its event, or nil if unknown (including InvalidID).
func (a *Arena) Get(id ID) *Event {
	if id == InvalidID {
		return nil
	}
	return a.events[id]
}

// Len returns the number of events currently held by the arena.
func (a *Arena) Len() int {
	return len(a.events)
}

// Reset clears the arena and restarts id allocation at 0, used by the
// engine when a full backtracking restart discards the current execution.
func (a *Arena) Reset() {
	a.nextID = 0
	a.events = make(map[ID]*Event)
}
