package explore

import (
	"reflect"
	"testing"

	"github.com/mkovalenko/eventsim/internal/config"
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

func newEngine(t *testing.T, threads int) *Engine {
	t.Helper()
	cfg, err := config.New(config.WithThreads(threads), config.WithLogger(nil))
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	e := New(cfg)
	e.InitializeExploration(0, nil, nil)
	return e
}

func staticLoc() memloc.MemoryLocation {
	var n int64
	return memloc.NewStaticField("Counter", reflect.ValueOf(&n).Elem())
}

func TestWriteThenReadSynchronizes(t *testing.T) {
	e := newEngine(t, 2)
	loc := staticLoc()

	e.AddWrite(clock.ThreadID(0), loc, objid.Prim(int64(7)), false, label.CodeLocation{Line: 1})
	req := e.AddReadRequest(clock.ThreadID(1), loc, false, label.CodeLocation{Line: 2})

	resp := e.AddResponse(req)
	if resp == nil {
		t.Fatal("expected a read response to be produced")
	}
	if !resp.Label.Value.Equal(objid.Prim(int64(7))) {
		t.Errorf("resp.Label.Value = %v, want 7", resp.Label.Value)
	}
}

func TestReadBeforeWriteIsDangling(t *testing.T) {
	e := newEngine(t, 2)
	loc := staticLoc()

	req := e.AddReadRequest(clock.ThreadID(1), loc, false, label.CodeLocation{Line: 2})
	if resp := e.AddResponse(req); resp != nil {
		t.Fatalf("expected nil response before any write exists, got %v", resp)
	}

	e.AddWrite(clock.ThreadID(0), loc, objid.Prim(int64(3)), false, label.CodeLocation{Line: 1})

	resp := e.AddResponse(req)
	if resp == nil {
		t.Fatal("expected the write to resolve the previously dangling read")
	}
	if !resp.Label.Value.Equal(objid.Prim(int64(3))) {
		t.Errorf("resp.Label.Value = %v, want 3", resp.Label.Value)
	}
}

func TestLockUnlockSynchronizes(t *testing.T) {
	e := newEngine(t, 2)
	mutex := objid.ObjectID(1)

	req := e.AddLockRequest(clock.ThreadID(1), mutex, false, 0, false)
	e.AddUnlock(clock.ThreadID(0), mutex, false, 0, false)

	resp := e.AddResponse(req)
	if resp == nil || !resp.Label.IsResponse() {
		t.Fatalf("expected lock request to resolve, got %v", resp)
	}
}

func TestThreadJoinBarrierAcrossTwoFinishes(t *testing.T) {
	e := newEngine(t, 3)
	t1, t2 := clock.ThreadID(1), clock.ThreadID(2)

	join := e.AddThreadJoinRequest(clock.ThreadID(0), t1, t2)
	e.AddThreadFinish(t1)
	if resp := e.AddResponse(join); resp != nil {
		t.Fatalf("expected join to still be pending after only one finish, got %v", resp)
	}

	e.AddThreadFinish(t2)
	resp := e.AddResponse(join)
	if resp == nil || !resp.Label.IsResponse() {
		t.Fatalf("expected join to resolve after both finishes, got %v", resp)
	}
}

func TestSpinBoundTripsAfterRepeatedIdenticalReads(t *testing.T) {
	e := newEngine(t, 2)
	loc := staticLoc()
	e.AddWrite(clock.ThreadID(0), loc, objid.Prim(int64(1)), false, label.CodeLocation{Line: 1})

	var tripped bool
	e.SetThreadSwitchCallback(func(reason SwitchReason, tid clock.ThreadID) {
		if reason == SpinBoundSwitch {
			tripped = true
		}
	})

	at := label.CodeLocation{Line: 42}
	for i := 0; i < e.cfg.SpinBound+1; i++ {
		req := e.AddReadRequest(clock.ThreadID(1), loc, false, at)
		e.AddResponse(req)
	}
	if !tripped {
		t.Errorf("expected SpinBoundSwitch after %d identical reads at the same code location", e.cfg.SpinBound+1)
	}
}

func TestStatsTracksBacktrackingPoints(t *testing.T) {
	e := newEngine(t, 2)
	loc := staticLoc()
	e.AddWrite(clock.ThreadID(0), loc, objid.Prim(int64(1)), false, label.CodeLocation{})
	e.AddWrite(clock.ThreadID(0), loc, objid.Prim(int64(2)), false, label.CodeLocation{})
	req := e.AddReadRequest(clock.ThreadID(1), loc, false, label.CodeLocation{})
	e.AddResponse(req)

	if e.Stats().BacktrackingPointsMade == 0 {
		t.Errorf("expected at least one backtracking point from the read's candidate write")
	}
}
