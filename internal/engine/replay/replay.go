// Package replay drives the replay phase: re-walking a previously recorded
// total order of events index by index so a backtracked exploration
// reaches the chosen divergence point deterministically before any new
// synchronization search happens.
//
// Digest computes an FNV-1a digest of a replay order's thread ids, label
// families and phases, the same "dedupe identical structural content"
// trick the teacher's stack depot uses for stack traces
// (internal/race/stackdepot/stackdepot.go). The engine itself keeps no
// cache of replay orders and does not call Digest.
package replay

import (
	"hash/fnv"
	"strconv"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/label"
)

// Record is one step of a precomputed total order: which thread produced
// it and the exact label it produced.
type Record struct {
	ThreadID clock.ThreadID
	Label    label.Label
}

// Replayer walks a precomputed Record sequence index by index.
type Replayer struct {
	order []Record
	pos   int
}

// New returns a replayer starting at the first record of order.
func New(order []Record) *Replayer {
	return &Replayer{order: order}
}

// Done reports whether every record has been consumed.
func (r *Replayer) Done() bool {
	return r.pos >= len(r.order)
}

// Peek returns the next unconsumed record without advancing, or
// (Record{}, false) if the replayer is done.
func (r *Replayer) Peek() (Record, bool) {
	if r.Done() {
		return Record{}, false
	}
	return r.order[r.pos], true
}

// NextForThread returns the next record if it belongs to tid, without
// advancing past it; the caller must call Advance once it has used the
// record to construct the corresponding event. Returns false if the
// replayer is done or the next record belongs to a different thread (in
// which case the engine signals an internal thread switch, per §4.5.5).
func (r *Replayer) NextForThread(tid clock.ThreadID) (Record, bool) {
	rec, ok := r.Peek()
	if !ok || rec.ThreadID != tid {
		return Record{}, false
	}
	return rec, true
}

// Advance consumes the current record.
func (r *Replayer) Advance() {
	if !r.Done() {
		r.pos++
	}
}

// Position returns how many records have been consumed so far.
func (r *Replayer) Position() int {
	return r.pos
}

// Len returns the total number of records in the order being replayed.
func (r *Replayer) Len() int {
	return len(r.order)
}

// Digest returns the FNV-1a digest of order's whole sequence of thread
// ids, label families and phases; equal orders give equal digests.
func Digest(order []Record) uint64 {
	h := fnv.New64a()
	for _, rec := range order {
		h.Write([]byte(strconv.Itoa(int(rec.ThreadID))))
		h.Write([]byte{0})
		h.Write([]byte(rec.Label.Family.String()))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(int(rec.Label.Phase))))
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}
