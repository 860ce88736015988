package clock

import "testing"

func TestNewClockSlotsStartAbsent(t *testing.T) {
	c := New(4)
	for tid := ThreadID(0); tid < 4; tid++ {
		if got := c.Get(tid); got != -1 {
			t.Errorf("Get(%d) = %d, want -1", tid, got)
		}
	}
}

func TestJoinIsPointwiseMax(t *testing.T) {
	a := New(3)
	a.Set(0, 5)
	a.Set(1, 1)

	b := New(3)
	b.Set(0, 2)
	b.Set(1, 9)
	b.Set(2, 4)

	a.Join(b)

	if got := a.Get(0); got != 5 {
		t.Errorf("Get(0) = %d, want 5", got)
	}
	if got := a.Get(1); got != 9 {
		t.Errorf("Get(1) = %d, want 9", got)
	}
	if got := a.Get(2); got != 4 {
		t.Errorf("Get(2) = %d, want 4", got)
	}
}

func TestHappensBefore(t *testing.T) {
	a := New(2)
	a.Set(0, 1)
	a.Set(1, 0)

	b := New(2)
	b.Set(0, 2)
	b.Set(1, 3)

	if !a.HappensBefore(b) {
		t.Errorf("expected a to happen before b")
	}
	if b.HappensBefore(a) {
		t.Errorf("expected b not to happen before a")
	}
}

func TestConcurrentClocksNeitherHappensBefore(t *testing.T) {
	a := New(2)
	a.Set(0, 3)
	a.Set(1, 0)

	b := New(2)
	b.Set(0, 0)
	b.Set(1, 3)

	if !a.Concurrent(b) {
		t.Errorf("expected a and b to be concurrent")
	}
	if a.HappensBefore(b) || b.HappensBefore(a) {
		t.Errorf("concurrent clocks must not happen-before each other")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New(2)
	a.Set(0, 5)
	clone := a.Clone()
	clone.Set(0, 99)

	if a.Get(0) != 5 {
		t.Errorf("mutating clone affected original: %d", a.Get(0))
	}
}

func TestMergeSkipsNil(t *testing.T) {
	a := New(2)
	a.Set(0, 3)
	b := New(2)
	b.Set(1, 7)

	merged := Merge(2, a, nil, b)
	if merged.Get(0) != 3 || merged.Get(1) != 7 {
		t.Errorf("Merge = (%d,%d), want (3,7)", merged.Get(0), merged.Get(1))
	}
}
