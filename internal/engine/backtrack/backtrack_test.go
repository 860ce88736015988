package backtrack

import (
	"testing"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/execution"
	"github.com/mkovalenko/eventsim/internal/engine/label"
)

func mkEvent(arena *event.Arena, id event.ID) *event.Event {
	return arena.Create(0, int64(id), label.NewRandom(int64(id)), event.InvalidID, nil, clock.New(1))
}

func TestPopNextUnvisitedReturnsNewestFirst(t *testing.T) {
	arena := event.NewArena()
	s := NewStack()
	fr := execution.NewFrontier()

	e1 := mkEvent(arena, 0)
	e2 := mkEvent(arena, 1)
	s.Push(&Point{Event: e1, Frontier: fr})
	s.Push(&Point{Event: e2, Frontier: fr})

	p, ok := s.PopNextUnvisited()
	if !ok || p.Event.ID != e2.ID {
		t.Fatalf("expected newest point (%d) first, got %v", e2.ID, p)
	}
	if !p.Visited {
		t.Errorf("expected popped point to be marked visited")
	}

	p2, ok := s.PopNextUnvisited()
	if !ok || p2.Event.ID != e1.ID {
		t.Fatalf("expected second-newest point (%d) next, got %v", e1.ID, p2)
	}

	if _, ok := s.PopNextUnvisited(); ok {
		t.Errorf("expected no more unvisited points")
	}
}

func TestMarkVisitedWithoutPopping(t *testing.T) {
	arena := event.NewArena()
	s := NewStack()
	fr := execution.NewFrontier()
	e := mkEvent(arena, 0)
	s.Push(&Point{Event: e, Frontier: fr})

	s.MarkVisited(e.ID)
	if _, ok := s.PopNextUnvisited(); ok {
		t.Errorf("expected point marked visited out-of-band to be skipped")
	}
	if s.Len() != 1 {
		t.Errorf("MarkVisited should not remove the point, Len() = %d", s.Len())
	}
}

func TestPinnedUnionSkipsVisitedPoints(t *testing.T) {
	arena := event.NewArena()
	s := NewStack()
	fr := execution.NewFrontier()

	e1 := mkEvent(arena, 0)
	e2 := mkEvent(arena, 1)
	s.Push(&Point{Event: e1, Frontier: fr, PinnedEvents: []event.ID{100, 101}})
	s.Push(&Point{Event: e2, Frontier: fr, PinnedEvents: []event.ID{101, 102}})

	union := s.PinnedUnion()
	for _, id := range []event.ID{100, 101, 102} {
		if !union[id] {
			t.Errorf("expected %d in PinnedUnion, got %v", id, union)
		}
	}

	s.MarkVisited(e1.ID)
	union = s.PinnedUnion()
	if union[100] {
		t.Errorf("expected pinned events from a visited point to be excluded, got %v", union)
	}
	if !union[101] || !union[102] {
		t.Errorf("expected pinned events from the remaining unvisited point, got %v", union)
	}
}

func TestResetClearsStack(t *testing.T) {
	arena := event.NewArena()
	s := NewStack()
	fr := execution.NewFrontier()
	s.Push(&Point{Event: mkEvent(arena, 0), Frontier: fr})
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", s.Len())
	}
}
