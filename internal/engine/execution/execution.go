// Package execution implements the current execution (an append-only,
// per-thread sequence of events plus a memory-access index) and the
// execution frontier (the most recent event per thread), together with
// backtracking's reset-to-a-prior-frontier operation.
//
// This generalizes the teacher's shadow memory (shadowmem.ShadowMemory,
// a map from address to the last-write/last-read epochs at that address)
// from "last epoch per location" to "every access recorded so far per
// location", since the exploration engine needs full history to compute
// synchronization candidates, not just the latest access.
package execution

import (
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/label"
)

// Frontier maps each thread to the id of its most recently appended
// event. A zero-value Frontier (via New) has no entries, meaning no
// thread has produced an event yet.
type Frontier struct {
	positions map[clock.ThreadID]event.ID
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{positions: make(map[clock.ThreadID]event.ID)}
}

// Update records id as tid's latest event.
func (f *Frontier) Update(tid clock.ThreadID, id event.ID) {
	f.positions[tid] = id
}

// Get returns tid's latest event id, or (InvalidID, false) if tid has no
// recorded event.
func (f *Frontier) Get(tid clock.ThreadID) (event.ID, bool) {
	id, ok := f.positions[tid]
	if !ok {
		return event.InvalidID, false
	}
	return id, true
}

// Clone returns an independent copy.
func (f *Frontier) Clone() *Frontier {
	clone := NewFrontier()
	for tid, id := range f.positions {
		clone.positions[tid] = id
	}
	return clone
}

// Merge folds other's entries into f, keeping the larger event id per
// thread (a later event supersedes an earlier one in the same thread's
// frontier).
func (f *Frontier) Merge(other *Frontier) {
	for tid, id := range other.positions {
		if existing, ok := f.positions[tid]; !ok || id > existing {
			f.positions[tid] = id
		}
	}
}

// MaxID returns the highest event id recorded anywhere in the frontier,
// or event.InvalidID if the frontier is empty.
func (f *Frontier) MaxID() event.ID {
	max := event.InvalidID
	for _, id := range f.positions {
		if id > max {
			max = id
		}
	}
	return max
}

// Cut removes every entry whose event id exceeds cutoff, used when
// resetting the execution to a backtracking point recorded before some
// later events existed.
func (f *Frontier) Cut(cutoff event.ID) {
	for tid, id := range f.positions {
		if id > cutoff {
			delete(f.positions, tid)
		}
	}
}

// Remove drops tid's entry entirely, used when a backtracking point's
// frontier must exclude a thread's most recent event (a conflict) rather
// than merely cap it.
func (f *Frontier) Remove(tid clock.ThreadID) {
	delete(f.positions, tid)
}

// ContainsAll reports whether every id in ids is dominated by (equal to or
// preceding) some entry of f on its own thread — used to check whether a
// response's dependencies are all already in the played frontier.
func (f *Frontier) ContainsAll(arena *event.Arena, ids []event.ID) bool {
	for _, id := range ids {
		e := arena.Get(id)
		if e == nil {
			return false
		}
		latest, ok := f.Get(e.ThreadID)
		if !ok || latest < id {
			return false
		}
	}
	return true
}

// locationRecord indexes all accesses observed so far at one memory
// location.
type locationRecord struct {
	writes       []event.ID
	readRequests []event.ID
}

// Execution is the append-only record of one exploration attempt: the
// per-thread event sequences, the frontier, and the memory-access index.
type Execution struct {
	Arena    *event.Arena
	Frontier *Frontier

	threadSeq map[clock.ThreadID][]event.ID
	memIndex  map[any]*locationRecord
	dangling  map[event.ID]event.ID // request id -> its recorded unblocking response id, InvalidID if none yet.
}

// New returns an empty execution backed by arena.
func New(arena *event.Arena) *Execution {
	return &Execution{
		Arena:     arena,
		Frontier:  NewFrontier(),
		threadSeq: make(map[clock.ThreadID][]event.ID),
		memIndex:  make(map[any]*locationRecord),
		dangling:  make(map[event.ID]event.ID),
	}
}

// ThreadSequence returns thread tid's events in order, oldest first.
func (x *Execution) ThreadSequence(tid clock.ThreadID) []event.ID {
	return x.threadSeq[tid]
}

// ThreadIDs returns every thread that has produced at least one event so
// far in this execution, in no particular order.
func (x *Execution) ThreadIDs() []clock.ThreadID {
	out := make([]clock.ThreadID, 0, len(x.threadSeq))
	for tid := range x.threadSeq {
		out = append(out, tid)
	}
	return out
}

// Append records e in its thread's sequence, the frontier, and (for
// memory-access labels) the memory-access index. resolves is the request
// event id this event is a Response to, or event.InvalidID for every other
// label mode.
func (x *Execution) Append(e *event.Event, resolves event.ID) {
	x.threadSeq[e.ThreadID] = append(x.threadSeq[e.ThreadID], e.ID)
	x.Frontier.Update(e.ThreadID, e.ID)

	switch e.Label.Family {
	case label.Write:
		rec := x.locationRecord(e.Label.Location.Key())
		rec.writes = append(rec.writes, e.ID)
	case label.Read:
		if e.Label.IsRequest() {
			rec := x.locationRecord(e.Label.Location.Key())
			rec.readRequests = append(rec.readRequests, e.ID)
		}
	}

	if e.Label.IsRequest() {
		x.dangling[e.ID] = event.InvalidID
	}
	if resolves != event.InvalidID {
		delete(x.dangling, resolves)
	}
}

// RecordUnblockingResponse notes response as the chosen unblocking
// response for the dangling request, without yet appending it — used
// while the request is still dangling but a response candidate has been
// produced by the synchronization search (§4.5.3).
func (x *Execution) RecordUnblockingResponse(request, response event.ID) {
	if _, stillDangling := x.dangling[request]; stillDangling {
		x.dangling[request] = response
	}
}

// UnblockingResponse returns the response recorded for request, if any.
func (x *Execution) UnblockingResponse(request event.ID) (event.ID, bool) {
	resp, ok := x.dangling[request]
	return resp, ok && resp != event.InvalidID
}

// DanglingRequests returns the ids of every request with no response yet
// appended to the execution.
func (x *Execution) DanglingRequests() []event.ID {
	var out []event.ID
	for req, resp := range x.dangling {
		if resp == event.InvalidID {
			out = append(out, req)
		}
	}
	return out
}

func (x *Execution) locationRecord(key any) *locationRecord {
	rec, ok := x.memIndex[key]
	if !ok {
		rec = &locationRecord{}
		x.memIndex[key] = rec
	}
	return rec
}

// GetWrites returns every write event id recorded at key, in append order.
func (x *Execution) GetWrites(key any) []event.ID {
	if rec, ok := x.memIndex[key]; ok {
		return rec.writes
	}
	return nil
}

// GetReadRequests returns every read-request event id recorded at key.
func (x *Execution) GetReadRequests(key any) []event.ID {
	if rec, ok := x.memIndex[key]; ok {
		return rec.readRequests
	}
	return nil
}

// GetLastWrite returns the most recent write at key, if any.
func (x *Execution) GetLastWrite(key any) (event.ID, bool) {
	writes := x.GetWrites(key)
	if len(writes) == 0 {
		return event.InvalidID, false
	}
	return writes[len(writes)-1], true
}

// IsRaceFree reports whether key has at most one writer thread and no read
// concurrent with a write, i.e. every access at key is causally ordered.
func (x *Execution) IsRaceFree(key any) bool {
	writes := x.GetWrites(key)
	writerThreads := map[clock.ThreadID]bool{}
	for _, id := range writes {
		w := x.Arena.Get(id)
		if w == nil {
			continue
		}
		writerThreads[w.ThreadID] = true
	}
	if len(writerThreads) > 1 {
		return false
	}
	return !x.hasConcurrentCrossThreadPair(writes, writes) &&
		!x.hasConcurrentCrossThreadPair(writes, x.resolvedReads(key))
}

// IsReadWriteRaceFree reports whether key has no reader thread distinct
// from its writer(s) concurrent with a write.
func (x *Execution) IsReadWriteRaceFree(key any) bool {
	writes := x.GetWrites(key)
	reads := x.resolvedReads(key)
	return !x.hasConcurrentCrossThreadPair(writes, reads)
}

// resolvedReads returns the read-response events recorded at key (a read
// request only becomes a completed access once its response lands).
func (x *Execution) resolvedReads(key any) []event.ID {
	var out []event.ID
	for _, reqID := range x.GetReadRequests(key) {
		if respID, ok := x.UnblockingResponse(reqID); ok {
			out = append(out, respID)
		}
	}
	return out
}

func (x *Execution) hasConcurrentCrossThreadPair(as, bs []event.ID) bool {
	for _, aID := range as {
		a := x.Arena.Get(aID)
		if a == nil {
			continue
		}
		for _, bID := range bs {
			if aID == bID {
				continue
			}
			b := x.Arena.Get(bID)
			if b == nil || b.ThreadID == a.ThreadID {
				continue
			}
			if a.Concurrent(b) {
				return true
			}
		}
	}
	return false
}

// ResetToCutoff discards every event whose id exceeds cutoff: trims the
// thread sequences, moves each thread's frontier entry back to its last
// retained event (dropping it if none remains), and trims the memory-access
// index and the
// dangling-request set. Matches the execution model's "reset is a
// truncation, not a rebuild from scratch" rule. Used for AbortExploration,
// where every thread is cut at the same replay position.
func (x *Execution) ResetToCutoff(cutoff event.ID) {
	for tid, seq := range x.threadSeq {
		trimmed := seq[:0:0]
		for _, id := range seq {
			if id <= cutoff {
				trimmed = append(trimmed, id)
			}
		}
		x.threadSeq[tid] = trimmed
		if len(trimmed) > 0 {
			x.Frontier.Update(tid, trimmed[len(trimmed)-1])
		} else {
			x.Frontier.Remove(tid)
		}
	}

	for key, rec := range x.memIndex {
		rec.writes = filterLE(rec.writes, cutoff)
		rec.readRequests = filterLE(rec.readRequests, cutoff)
		if len(rec.writes) == 0 && len(rec.readRequests) == 0 {
			delete(x.memIndex, key)
		}
	}

	for req, resp := range x.dangling {
		if req > cutoff {
			delete(x.dangling, req)
			continue
		}
		if resp > cutoff {
			x.dangling[req] = event.InvalidID
		}
	}
}

// ResetToFrontier discards every event not retained by frontier, applying
// a per-thread cutoff instead of ResetToCutoff's single global one: a
// thread with no entry in frontier is trimmed to nothing, and a thread
// with an entry is trimmed to that entry's event id. Used when resuming a
// backtracking point, whose frontier deliberately rolls some threads back
// further than others (past the conflicting events §4.5.2 computed for
// that point).
func (x *Execution) ResetToFrontier(frontier *Frontier) {
	x.Frontier = frontier.Clone()

	retained := func(id event.ID) bool {
		e := x.Arena.Get(id)
		if e == nil {
			return false
		}
		cutoff, ok := frontier.Get(e.ThreadID)
		return ok && id <= cutoff
	}

	for tid, seq := range x.threadSeq {
		trimmed := seq[:0:0]
		for _, id := range seq {
			if retained(id) {
				trimmed = append(trimmed, id)
			}
		}
		x.threadSeq[tid] = trimmed
	}

	for key, rec := range x.memIndex {
		rec.writes = filterRetained(rec.writes, retained)
		rec.readRequests = filterRetained(rec.readRequests, retained)
		if len(rec.writes) == 0 && len(rec.readRequests) == 0 {
			delete(x.memIndex, key)
		}
	}

	for req, resp := range x.dangling {
		if !retained(req) {
			delete(x.dangling, req)
			continue
		}
		if resp != event.InvalidID && !retained(resp) {
			x.dangling[req] = event.InvalidID
		}
	}
}

// RestoreDangling re-marks every id in ids as a dangling (unresolved)
// request if it is not already tracked. A request's entry is deleted from
// the dangling map for good once its response is appended (see Append);
// ResetToFrontier alone cannot undo that deletion when backtracking to a
// point recorded before the response existed, since the entry is simply
// gone rather than merely stale. The backtracking point's BlockedRequests
// (§4.5.2 step 4) records exactly which requests need this.
func (x *Execution) RestoreDangling(ids []event.ID) {
	for _, id := range ids {
		if _, ok := x.dangling[id]; !ok {
			x.dangling[id] = event.InvalidID
		}
	}
}

func filterLE(ids []event.ID, cutoff event.ID) []event.ID {
	out := ids[:0:0]
	for _, id := range ids {
		if id <= cutoff {
			out = append(out, id)
		}
	}
	return out
}

func filterRetained(ids []event.ID, retained func(event.ID) bool) []event.ID {
	out := ids[:0:0]
	for _, id := range ids {
		if retained(id) {
			out = append(out, id)
		}
	}
	return out
}
