// Package clock implements the causality clock used to order events across
// threads.
//
// A CausalityClock is the pointwise maximum of thread positions: one slot
// per thread in the current exploration, holding the highest
// ThreadPosition of that thread's events observed so far. It plays the
// same role vectorclock.VectorClock plays for the teacher's FastTrack
// algorithm, but is sized to the harness's fixed thread count instead of a
// 65536-entry fixed array, since a bounded model checker's thread count is
// known up front (the worker pool is constructed with exactly n threads).
package clock

// ThreadID identifies one of the harness's fixed set of threads.
type ThreadID int32

// CausalityClock is a per-thread vector of the highest thread position
// observed for that thread, used to compute the happens-before relation
// between events (see Event.CausalityClock in the event package).
type CausalityClock struct {
	slots []int64
}

// New returns a zero clock sized for n threads. Every slot starts at -1,
// meaning "no event from this thread observed yet" (thread positions are
// zero-based, so 0 is a valid position and cannot double as "absent").
func New(n int) *CausalityClock {
	c := &CausalityClock{slots: make([]int64, n)}
	for i := range c.slots {
		c.slots[i] = -1
	}
	return c
}

// Clone returns an independent deep copy.
func (c *CausalityClock) Clone() *CausalityClock {
	clone := &CausalityClock{slots: make([]int64, len(c.slots))}
	copy(clone.slots, c.slots)
	return clone
}

// Get returns the highest position observed for tid, or -1 if none.
func (c *CausalityClock) Get(tid ThreadID) int64 {
	if int(tid) < 0 || int(tid) >= len(c.slots) {
		return -1
	}
	return c.slots[tid]
}

// Set records position as the highest observed position for tid,
// regardless of the previous value. Used to stamp an event's own slot
// (see the causality-clock invariant in the data model).
func (c *CausalityClock) Set(tid ThreadID, position int64) {
	c.slots[tid] = position
}

// Join performs the pointwise maximum vc = vc ⊔ other, the same
// synchronization primitive as vectorclock.VectorClock.Join, used here to
// fold a parent's and each dependency's clock into a new event's clock.
func (c *CausalityClock) Join(other *CausalityClock) {
	for i := range c.slots {
		if other.slots[i] > c.slots[i] {
			c.slots[i] = other.slots[i]
		}
	}
}

// LessOrEqual reports whether c ⊑ other: every slot of c is at most the
// corresponding slot of other. This is the happens-before check.
func (c *CausalityClock) LessOrEqual(other *CausalityClock) bool {
	for i := range c.slots {
		if c.slots[i] > other.slots[i] {
			return false
		}
	}
	return true
}

// HappensBefore is an alias for LessOrEqual, for readability at call
// sites that are asking "did c happen before other".
func (c *CausalityClock) HappensBefore(other *CausalityClock) bool {
	return c.LessOrEqual(other)
}

// Concurrent reports whether neither clock happened-before the other.
func (c *CausalityClock) Concurrent(other *CausalityClock) bool {
	return !c.LessOrEqual(other) && !other.LessOrEqual(c)
}

// Len reports the number of thread slots this clock tracks.
func (c *CausalityClock) Len() int {
	return len(c.slots)
}

// Merge returns a new clock that is the pointwise maximum of clocks,
// skipping any nil entries. Used by createEvent to fold a parent clock and
// an arbitrary number of dependency clocks into one.
func Merge(n int, clocks ...*CausalityClock) *CausalityClock {
	result := New(n)
	for _, c := range clocks {
		if c != nil {
			result.Join(c)
		}
	}
	return result
}
