// Package backtrack implements backtracking points and the stack that
// orders them, the engine's record of "an alternative synchronization we
// haven't explored yet."
//
// Ordering newer (higher event id) points first makes the exploration a
// depth-first search over alternative synchronizations: the most recently
// discovered alternative is the deepest one, and DFS explores deepest
// first, matching §4.5.2's "backtracking-point ordering by event id
// guarantees that newer alternatives are explored first."
package backtrack

import (
	"sort"
	"sync"

	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/execution"
)

// Point is one alternative synchronization the engine may later choose to
// explore: resetting the execution to Frontier and constructing Event
// there instead of whatever was chosen this time.
type Point struct {
	// Event is the response (or request) event this point would add.
	Event *event.Event

	// Frontier is the execution frontier to reset to before adding Event.
	Frontier *execution.Frontier

	// PinnedEvents are events that must remain reachable (not trimmed)
	// across the reset, because some other still-dangling request depends
	// on them.
	PinnedEvents []event.ID

	// BlockedRequests are dangling requests carried forward into the
	// backtracked execution.
	BlockedRequests []event.ID

	Visited bool
}

// Stack is the set of backtracking points, visited or not, kept ordered so
// the newest (highest event id) unvisited point pops first.
type Stack struct {
	mu     sync.Mutex
	points []*Point
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push adds a point and keeps the stack sorted by ascending event id (so
// the last element is the newest / deepest).
func (s *Stack) Push(p *Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	sort.Slice(s.points, func(i, j int) bool {
		return s.points[i].Event.ID < s.points[j].Event.ID
	})
}

// PopNextUnvisited returns the newest unvisited point and marks it visited
// (the point stays on the stack), or returns (nil, false) if none remain.
func (s *Stack) PopNextUnvisited() (*Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.points) - 1; i >= 0; i-- {
		if !s.points[i].Visited {
			s.points[i].Visited = true
			return s.points[i], true
		}
	}
	return nil, false
}

// MarkVisited marks the point owning eventID visited without popping it,
// used when the engine has just synthesized and immediately chosen a
// response (§4.5.3: "immediately mark the newly created backtracking point
// as visited").
func (s *Stack) MarkVisited(eventID event.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.points {
		if p.Event.ID == eventID {
			p.Visited = true
			return
		}
	}
}

// PinnedUnion returns the union of PinnedEvents across every unvisited
// point: the "currently-pinned events" §4.5.3's candidate filter (b)
// excludes from a fresh synchronization search, since a still-open
// alternative elsewhere on the stack depends on them staying put.
func (s *Stack) PinnedUnion() map[event.ID]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[event.ID]bool)
	for _, p := range s.points {
		if p.Visited {
			continue
		}
		for _, id := range p.PinnedEvents {
			out[id] = true
		}
	}
	return out
}

// Len returns the total number of points, visited or not.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Unvisited returns the count of points not yet visited, for diagnostics.
func (s *Stack) Unvisited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.points {
		if !p.Visited {
			n++
		}
	}
	return n
}

// Reset discards every point, used on a fresh top-level exploration run.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
}
