package execution

import (
	"reflect"
	"testing"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

func newLoc() memloc.MemoryLocation {
	var n int64
	return memloc.NewStaticField("X", reflect.ValueOf(&n).Elem())
}

func TestFrontierUpdateAndGet(t *testing.T) {
	f := NewFrontier()
	if _, ok := f.Get(0); ok {
		t.Fatalf("expected empty frontier to have no entry")
	}
	f.Update(0, 5)
	id, ok := f.Get(0)
	if !ok || id != 5 {
		t.Errorf("Get(0) = (%d, %v), want (5, true)", id, ok)
	}
}

func TestFrontierMergeKeepsLarger(t *testing.T) {
	a := NewFrontier()
	a.Update(0, 3)
	b := NewFrontier()
	b.Update(0, 7)
	b.Update(1, 2)

	a.Merge(b)
	if id, _ := a.Get(0); id != 7 {
		t.Errorf("Get(0) = %d, want 7 (merge should keep the larger id)", id)
	}
	if id, _ := a.Get(1); id != 2 {
		t.Errorf("Get(1) = %d, want 2", id)
	}
}

func TestFrontierCutRemovesLaterEntries(t *testing.T) {
	f := NewFrontier()
	f.Update(0, 10)
	f.Cut(5)
	if _, ok := f.Get(0); ok {
		t.Errorf("expected entry with id > cutoff to be removed")
	}
}

func TestAppendWriteThenReadRequestIndexes(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	loc := newLoc()

	c := clock.New(2)
	w := arena.Create(0, 0, label.NewWrite(loc, objid.Prim(1), false, label.CodeLocation{}), event.InvalidID, nil, c)
	x.Append(w, event.InvalidID)

	r := arena.Create(1, 0, label.NewReadRequest(loc, false, label.CodeLocation{}), event.InvalidID, nil, c)
	x.Append(r, event.InvalidID)

	if got, ok := x.GetLastWrite(loc.Key()); !ok || got != w.ID {
		t.Errorf("GetLastWrite = (%d, %v), want (%d, true)", got, ok, w.ID)
	}
	reqs := x.GetReadRequests(loc.Key())
	if len(reqs) != 1 || reqs[0] != r.ID {
		t.Errorf("GetReadRequests = %v, want [%d]", reqs, r.ID)
	}
}

func TestDanglingRequestTrackedUntilResponse(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	c := clock.New(1)

	req := arena.Create(0, 0, label.NewLockRequest(objid.ObjectID(1), false, 0, false), event.InvalidID, nil, c)
	x.Append(req, event.InvalidID)

	dangling := x.DanglingRequests()
	if len(dangling) != 1 || dangling[0] != req.ID {
		t.Fatalf("DanglingRequests = %v, want [%d]", dangling, req.ID)
	}

	respLabel, outcome := label.Sync(label.NewUnlock(objid.ObjectID(1), false, 0, false), req.Label)
	if outcome != label.Resolved {
		t.Fatalf("expected resolved sync, got %v", outcome)
	}
	resp := arena.Create(0, 1, respLabel, req.ID, []event.ID{req.ID}, c)
	x.Append(resp, req.ID)

	if len(x.DanglingRequests()) != 0 {
		t.Errorf("expected no dangling requests after response appended")
	}
}

func TestIsRaceFreeSingleWriterThread(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	loc := newLoc()

	c0 := clock.New(1)
	c0.Set(0, 0)
	w1 := arena.Create(0, 0, label.NewWrite(loc, objid.Prim(1), false, label.CodeLocation{}), event.InvalidID, nil, c0)
	x.Append(w1, event.InvalidID)

	c1 := clock.New(1)
	c1.Set(0, 1)
	w2 := arena.Create(0, 1, label.NewWrite(loc, objid.Prim(2), false, label.CodeLocation{}), w1.ID, nil, c1)
	x.Append(w2, event.InvalidID)

	if !x.IsRaceFree(loc.Key()) {
		t.Errorf("expected single-writer-thread location to be race free")
	}
}

func TestIsRaceFreeConcurrentWritersIsNotFree(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	loc := newLoc()

	c0 := clock.New(2)
	c0.Set(0, 0)
	w1 := arena.Create(0, 0, label.NewWrite(loc, objid.Prim(1), false, label.CodeLocation{}), event.InvalidID, nil, c0)
	x.Append(w1, event.InvalidID)

	c1 := clock.New(2)
	c1.Set(1, 0)
	w2 := arena.Create(1, 0, label.NewWrite(loc, objid.Prim(2), false, label.CodeLocation{}), event.InvalidID, nil, c1)
	x.Append(w2, event.InvalidID)

	if x.IsRaceFree(loc.Key()) {
		t.Errorf("expected concurrent writers from different threads to race")
	}
}

func TestResetToCutoffTrimsEventsPastCutoff(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	loc := newLoc()
	c := clock.New(1)

	w1 := arena.Create(0, 0, label.NewWrite(loc, objid.Prim(1), false, label.CodeLocation{}), event.InvalidID, nil, c)
	x.Append(w1, event.InvalidID)
	w2 := arena.Create(0, 1, label.NewWrite(loc, objid.Prim(2), false, label.CodeLocation{}), w1.ID, nil, c)
	x.Append(w2, event.InvalidID)

	x.ResetToCutoff(w1.ID)

	writes := x.GetWrites(loc.Key())
	if len(writes) != 1 || writes[0] != w1.ID {
		t.Errorf("GetWrites after ResetToCutoff = %v, want [%d]", writes, w1.ID)
	}
	if id, ok := x.Frontier.Get(0); !ok || id != w1.ID {
		t.Errorf("Frontier.Get(0) after ResetToCutoff = (%d, %v), want (%d, true)", id, ok, w1.ID)
	}
}

func TestResetToFrontierRollsBackThreadsIndependently(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	loc := newLoc()
	c := clock.New(2)

	a1 := arena.Create(0, 0, label.NewWrite(loc, objid.Prim(1), false, label.CodeLocation{}), event.InvalidID, nil, c)
	x.Append(a1, event.InvalidID)
	a2 := arena.Create(0, 1, label.NewWrite(loc, objid.Prim(2), false, label.CodeLocation{}), a1.ID, nil, c)
	x.Append(a2, event.InvalidID)
	b1 := arena.Create(1, 0, label.NewWrite(loc, objid.Prim(3), false, label.CodeLocation{}), event.InvalidID, nil, c)
	x.Append(b1, event.InvalidID)

	f := NewFrontier()
	f.Update(0, a1.ID)
	f.Update(1, b1.ID)
	x.ResetToFrontier(f)

	seqA := x.ThreadSequence(0)
	if len(seqA) != 1 || seqA[0] != a1.ID {
		t.Errorf("ThreadSequence(0) after ResetToFrontier = %v, want [%d]", seqA, a1.ID)
	}
	seqB := x.ThreadSequence(1)
	if len(seqB) != 1 || seqB[0] != b1.ID {
		t.Errorf("ThreadSequence(1) after ResetToFrontier = %v, want [%d]", seqB, b1.ID)
	}
}

func TestRestoreDanglingReinstatesDeletedRequest(t *testing.T) {
	arena := event.NewArena()
	x := New(arena)
	c := clock.New(1)

	req := arena.Create(0, 0, label.NewLockRequest(1, false, 0, false), event.InvalidID, nil, c)
	x.Append(req, event.InvalidID)
	resp := arena.Create(0, 1, label.Label{Family: label.Lock, Phase: label.PhaseResponse, MutexID: 1}, req.ID, []event.ID{req.ID}, c)
	x.Append(resp, req.ID)

	if _, ok := x.UnblockingResponse(req.ID); ok {
		t.Fatal("request should no longer be dangling once its response is appended")
	}

	x.RestoreDangling([]event.ID{req.ID})
	if len(x.DanglingRequests()) != 1 || x.DanglingRequests()[0] != req.ID {
		t.Errorf("DanglingRequests after RestoreDangling = %v, want [%d]", x.DanglingRequests(), req.ID)
	}
}
