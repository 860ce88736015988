package event

import (
	"testing"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/label"
)

func TestArenaCreateAssignsSequentialIDs(t *testing.T) {
	a := NewArena()
	c := clock.New(2)
	e0 := a.Create(0, 0, label.NewRandom(1), InvalidID, nil, c)
	e1 := a.Create(0, 1, label.NewRandom(2), e0.ID, nil, c)

	if e0.ID != 0 || e1.ID != 1 {
		t.Errorf("ids = %d, %d, want 0, 1", e0.ID, e1.ID)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
}

func TestArenaGetResolvesByID(t *testing.T) {
	a := NewArena()
	c := clock.New(1)
	e := a.Create(0, 0, label.NewRandom(1), InvalidID, nil, c)

	got := a.Get(e.ID)
	if got != e {
		t.Errorf("Get(%d) = %v, want %v", e.ID, got, e)
	}
	if a.Get(InvalidID) != nil {
		t.Errorf("Get(InvalidID) should be nil")
	}
}

func TestArenaResetClearsState(t *testing.T) {
	a := NewArena()
	c := clock.New(1)
	e := a.Create(0, 0, label.NewRandom(1), InvalidID, nil, c)
	a.Reset()

	if a.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", a.Len())
	}
	if a.Get(e.ID) != nil {
		t.Errorf("expected reset arena to forget previously created events")
	}

	// IDs restart from 0 after a reset.
	fresh := a.Create(0, 0, label.NewRandom(2), InvalidID, nil, c)
	if fresh.ID != 0 {
		t.Errorf("ID after reset = %d, want 0", fresh.ID)
	}
}

func TestEventHappensBeforeDelegatesToClock(t *testing.T) {
	a := NewArena()
	c1 := clock.New(2)
	c1.Set(0, 0)
	e1 := a.Create(0, 0, label.NewRandom(1), InvalidID, nil, c1)

	c2 := clock.New(2)
	c2.Set(0, 1)
	c2.Set(1, 0)
	e2 := a.Create(0, 1, label.NewRandom(2), e1.ID, []ID{e1.ID}, c2)

	if !e1.HappensBefore(e2) {
		t.Errorf("expected e1 to happen-before e2")
	}
}
