// Package explore implements the event-structure exploration engine: the
// component that drives one thread's blocking operations to completion by
// finding (or deferring) a synchronizing partner, replays a chosen prior
// execution deterministically before searching for new ones, and records
// backtracking points for every alternative synchronization along the way.
//
// This is the generalization of the teacher's Detector
// (internal/race/detector/detector.go): where the teacher's OnRead/OnWrite
// pair an access against the single most recent conflicting access to
// report a race, this engine pairs a blocking Request against every
// structurally-possible Send to enumerate every schedule a concurrent
// program could take, backtracking over the ones it hasn't tried yet.
package explore

import (
	"sort"
	"sync"

	"github.com/mkovalenko/eventsim/internal/config"
	"github.com/mkovalenko/eventsim/internal/diag"
	"github.com/mkovalenko/eventsim/internal/engine/backtrack"
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/execution"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
	"github.com/mkovalenko/eventsim/internal/engine/replay"
)

// SwitchReason names why the engine handed control back to the worker
// pool instead of appending an event for the calling thread immediately.
type SwitchReason uint8

const (
	// StrategySwitch means replay has a next event for a different
	// thread, or no replayable/unblocking response exists yet for a
	// request.
	StrategySwitch SwitchReason = iota
	// SpinBoundSwitch means the loop detector tripped SPIN_BOUND for the
	// calling thread's code location.
	SpinBoundSwitch
)

// ThreadSwitchCallback is invoked whenever the engine needs a different
// thread scheduled before it can make progress. checker.Checker.SetStrategy
// installs one that forwards to the driver's Strategy.OnThreadSwitch.
type ThreadSwitchCallback func(reason SwitchReason, tid clock.ThreadID)

// ConsistencyCheck inspects the current execution and reports a violation,
// or nil if none is found. Plugged in by the caller embedding the engine;
// pretty-printing the violation is out of scope here (see diag.Inconsistency).
type ConsistencyCheck func(*execution.Execution) *diag.Inconsistency

// Stats mirrors the teacher's PromotionStats, applied to exploration
// instead of shadow-memory promotion.
type Stats struct {
	SchedulesExplored      uint64
	BacktrackingPointsMade uint64
	BacktrackingPointsUsed uint64
	StrategySwitches       uint64
	SpinBoundTrips         uint64
}

// Engine is the event-structure exploration engine.
type Engine struct {
	cfg *config.Config

	mu       sync.Mutex
	arena    *event.Arena
	exec     *execution.Execution
	stack    *backtrack.Stack
	replayer *replay.Replayer
	objects  *objid.Registry
	loop     *LoopDetector

	threadSwitch ThreadSwitchCallback
	consistency  ConsistencyCheck

	initEventID event.ID
	stats       Stats
}

// New returns an engine configured per cfg.
func New(cfg *config.Config) *Engine {
	arena := event.NewArena()
	return &Engine{
		cfg:         cfg,
		arena:       arena,
		exec:        execution.New(arena),
		stack:       backtrack.NewStack(),
		replayer:    replay.New(nil),
		objects:     objid.New(),
		loop:        NewLoopDetector(cfg.SpinBound),
		initEventID: event.InvalidID,
	}
}

// SetThreadSwitchCallback installs the outward hook invoked when the
// engine cannot make progress on the calling thread.
func (e *Engine) SetThreadSwitchCallback(cb ThreadSwitchCallback) {
	e.threadSwitch = cb
}

// SetConsistencyCheck installs the outward hook CheckConsistency delegates to.
func (e *Engine) SetConsistencyCheck(cb ConsistencyCheck) {
	e.consistency = cb
}

// Stats returns a snapshot of exploration counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Execution exposes the current execution for read-only inspection
// (tests, consistency checks, replay export).
func (e *Engine) Execution() *execution.Execution {
	return e.exec
}

// Objects exposes the object registry.
func (e *Engine) Objects() *objid.Registry {
	return e.objects
}

// InitializeExploration resets the played frontier to contain only a
// fresh initialization event and primes the replayer with order (nil for
// a from-scratch top-level run).
func (e *Engine) InitializeExploration(mainThread clock.ThreadID, init label.MemoryInitializer, order []replay.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.arena.Reset()
	e.exec = execution.New(e.arena)
	e.replayer = replay.New(order)

	lbl := label.NewInitialization(mainThread, mainThread, init)
	c := clock.New(e.cfg.Threads)
	c.Set(mainThread, 0)
	initEvent := e.arena.Create(mainThread, 0, lbl, event.InvalidID, nil, c)
	e.exec.Append(initEvent, event.InvalidID)
	e.initEventID = initEvent.ID
}

// StartNextExploration pops the newest unvisited backtracking point,
// resets the execution to its stored frontier, re-marks its blocked
// requests as dangling, and returns true. Returns false when no unvisited
// point remains, meaning exploration is complete. The point's
// PinnedEvents are not re-applied: once popped the point is visited, so
// Stack.PinnedUnion no longer includes them.
func (e *Engine) StartNextExploration() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.stack.PopNextUnvisited()
	if !ok {
		return false
	}

	e.exec.ResetToFrontier(p.Frontier)
	e.exec.RestoreDangling(p.BlockedRequests)
	e.stats.SchedulesExplored++
	e.stats.BacktrackingPointsUsed++
	return true
}

// AbortExploration truncates the execution to the replayed prefix: every
// event added after replay ended is discarded, which is exactly
// ResetToCutoff at the last replayed event's id.
func (e *Engine) AbortExploration() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.replayer.Position() == 0 {
		return
	}
	// The cutoff is the id of the last event the replayer actually
	// consumed; since arena ids are allocated in the same order events
	// are appended, that is initEventID + replayed-position (the
	// initialization event plus one per consumed record).
	cutoff := e.initEventID + event.ID(e.replayer.Position())
	e.exec.ResetToCutoff(cutoff)
}

// CheckConsistency delegates to the installed consistency callback, or
// returns nil if none was installed.
func (e *Engine) CheckConsistency() *diag.Inconsistency {
	if e.consistency == nil {
		return nil
	}
	return e.consistency(e.exec)
}

// EventRecord is one step of an exported schedule: enough to reproduce a
// failing execution's total order without exposing internal event/arena
// types to a caller.
type EventRecord struct {
	ThreadID clock.ThreadID
	Family   string
	Phase    label.Phase
	At       label.CodeLocation
}

// ExportSchedule serializes the currently-live execution's total order
// (every event still reachable from a thread sequence, oldest event id
// first) so a failing schedule can be handed to a separate reproduction
// run. Wire format and pretty-printing are out of scope; this only
// produces the ordered record list.
func (e *Engine) ExportSchedule() []EventRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[event.ID]bool)
	var ids []event.ID
	for _, tid := range e.exec.ThreadIDs() {
		for _, id := range e.exec.ThreadSequence(tid) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]EventRecord, 0, len(ids))
	for _, id := range ids {
		ev := e.arena.Get(id)
		if ev == nil {
			continue
		}
		out = append(out, EventRecord{
			ThreadID: ev.ThreadID,
			Family:   ev.Label.Family.String(),
			Phase:    ev.Label.Phase,
			At:       ev.Label.CodeLocation,
		})
	}
	return out
}

// SpinStats returns the loop detector's per-(thread, codeLocation) hit
// count snapshot, so a driver can report which spin loop a SpinBoundSwitch
// was raised for without expanding scope into trace pretty-printing.
func (e *Engine) SpinStats() []SpinHit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop.Snapshot()
}

// --- Event construction -----------------------------------------------

// createEvent builds a new event for threadID/lbl, parented on the
// thread's current frontier event, causality-joined from the parent and
// deps. Per §4.5.2: it first computes the conflicting-event set (step 1)
// and returns nil if any conflict already lies in the causal past of the
// new event's parent or dependencies (step 2, a causality violation —
// constructing the event would close a cycle, so it is impossible). If
// visit is false, a backtracking point for the event is also recorded
// (step 4). createEvent never appends the event to the execution; callers
// do that themselves.
func (e *Engine) createEvent(threadID clock.ThreadID, lbl label.Label, deps []event.ID, visit bool) *event.Event {
	parentID := event.InvalidID
	if id, ok := e.exec.Frontier.Get(threadID); ok {
		parentID = id
	}
	parent := e.arena.Get(parentID)

	clocks := make([]*clock.CausalityClock, 0, len(deps)+1)
	if parent != nil {
		clocks = append(clocks, parent.CausalityClock)
	}
	for _, d := range deps {
		if dep := e.arena.Get(d); dep != nil {
			clocks = append(clocks, dep.CausalityClock)
		}
	}
	basis := clock.Merge(e.cfg.Threads, clocks...)

	var position int64
	if parent != nil {
		position = parent.ThreadPosition + 1
	}

	conflicts := e.conflictsFor(threadID, position, lbl, deps)
	for _, c := range conflicts {
		if c.CausalityClock.HappensBefore(basis) {
			return nil
		}
	}

	causal := basis.Clone()
	causal.Set(threadID, position)

	ev := e.arena.Create(threadID, position, lbl, parentID, deps, causal)

	if !visit {
		e.stack.Push(&backtrack.Point{
			Event:           ev,
			Frontier:        e.backtrackFrontier(parentID, threadID, conflicts),
			PinnedEvents:    e.pinnedSet(basis, conflicts, ev.ID),
			BlockedRequests: append([]event.ID(nil), e.exec.DanglingRequests()...),
		})
		e.stats.BacktrackingPointsMade++
	}
	return ev
}

// conflictsFor returns every existing event that conflicts with a
// prospective event at (threadID, position) carrying lbl and deps, per
// §4.5.2 step 1: occupying the same (thread, position) slot, or — for a
// lock-response or wait-response — reading from / woken by the same
// resolving Send as another response already in the arena (only one
// waiter can actually win a given unlock or non-broadcast notify).
func (e *Engine) conflictsFor(threadID clock.ThreadID, position int64, lbl label.Label, deps []event.ID) []*event.Event {
	sendID, hasSend := resolvingSend(deps)
	var out []*event.Event
	for id := event.ID(0); id < event.ID(e.arena.Len()); id++ {
		other := e.arena.Get(id)
		if other == nil {
			continue
		}
		if other.ThreadID == threadID && other.ThreadPosition == position {
			out = append(out, other)
			continue
		}
		if !hasSend || !lbl.IsResponse() || !other.Label.IsResponse() {
			continue
		}
		otherSend, ok := resolvingSend(other.Dependencies)
		if !ok || otherSend != sendID {
			continue
		}
		switch {
		case lbl.Family == label.Lock && other.Label.Family == label.Lock:
			out = append(out, other)
		case lbl.Family == label.Wait && other.Label.Family == label.Wait:
			if send := e.arena.Get(sendID); send == nil || !send.Label.IsBroadcast {
				out = append(out, other)
			}
		}
	}
	return out
}

// resolvingSend returns the resolving Send's id out of a response's
// dependency list ([requestID, sendID], as built by addSynchronizedEvents
// and AddResponse), or false if deps carries no such pair (a replayed
// response only records its request).
func resolvingSend(deps []event.ID) (event.ID, bool) {
	if len(deps) < 2 {
		return event.InvalidID, false
	}
	return deps[1], true
}

// backtrackFrontier builds the frontier a backtracking point resumes from:
// the current frontier minus the conflicts (dropping a thread's entry
// only when the conflict is that thread's current frontier event), except
// a conflict's thread keeps its dangling-request event as the resume
// point rather than losing its entry outright, and the new event's own
// thread is cut back to its parent so the speculative event itself isn't
// part of the resumed frontier until the point is actually chosen.
func (e *Engine) backtrackFrontier(parentID event.ID, ownThread clock.ThreadID, conflicts []*event.Event) *execution.Frontier {
	danglingByThread := make(map[clock.ThreadID]event.ID)
	for _, id := range e.exec.DanglingRequests() {
		if req := e.arena.Get(id); req != nil {
			danglingByThread[req.ThreadID] = req.ID
		}
	}

	f := e.exec.Frontier.Clone()
	for _, c := range conflicts {
		id, ok := f.Get(c.ThreadID)
		if !ok || id != c.ID {
			continue
		}
		if keep, ok := danglingByThread[c.ThreadID]; ok {
			f.Update(c.ThreadID, keep)
		} else {
			f.Remove(c.ThreadID)
		}
	}
	f.Update(ownThread, parentID)
	return f
}

// pinnedSet builds a backtracking point's pinned-event list: the union of
// every still-unvisited point's own pinned events (the "old pinned set")
// and the causal-past frontier of basis (the new event's parent and
// dependencies), minus the conflicts, minus any currently-dangling
// request (a dangling request must remain available to be resolved, not
// protected from it), and minus the event itself.
func (e *Engine) pinnedSet(basis *clock.CausalityClock, conflicts []*event.Event, selfID event.ID) []event.ID {
	pinned := e.stack.PinnedUnion()
	for _, id := range e.causalPastFrontier(basis) {
		pinned[id] = true
	}
	for _, c := range conflicts {
		delete(pinned, c.ID)
	}
	for _, id := range e.exec.DanglingRequests() {
		delete(pinned, id)
	}
	delete(pinned, selfID)

	out := make([]event.ID, 0, len(pinned))
	for id := range pinned {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// causalPastFrontier resolves clock's per-thread positions back to event
// ids via each thread's live sequence, giving the frontier of the causal
// past a merged clock like basis describes.
func (e *Engine) causalPastFrontier(c *clock.CausalityClock) []event.ID {
	var out []event.ID
	for tid := clock.ThreadID(0); int(tid) < c.Len(); tid++ {
		pos := c.Get(tid)
		if pos < 0 {
			continue
		}
		seq := e.exec.ThreadSequence(tid)
		if int(pos) < len(seq) {
			out = append(out, seq[pos])
		}
	}
	return out
}

// filterCandidates applies §4.5.3's two universal filters to a
// synchronization candidate list against trigger (the newly appended Send
// for the push path, or the dangling Request for the pull path): (a) when
// trigger is a Send, drop its causal predecessors (a Request may still
// synchronize with a Send in its own causal past, e.g. a thread re-reading
// a write it already observed), and (b) drop currently-pinned events
// unless they are themselves a still-blocked dangling request.
func (e *Engine) filterCandidates(trigger *event.Event, candidates []*event.Event) []*event.Event {
	pinned := e.stack.PinnedUnion()
	dangling := make(map[event.ID]bool)
	for _, id := range e.exec.DanglingRequests() {
		dangling[id] = true
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		if c.ID == trigger.ID {
			continue
		}
		if trigger.Label.IsSend() && c.CausalityClock.HappensBefore(trigger.CausalityClock) {
			continue
		}
		if pinned[c.ID] && !dangling[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// --- Send / Request wrappers --------------------------------------------

// AddWrite appends a write and, once past replay, runs the synchronization
// search against pending read-requests at loc.
func (e *Engine) AddWrite(threadID clock.ThreadID, loc memloc.MemoryLocation, value objid.ValueID, exclusive bool, at label.CodeLocation) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	lbl := label.NewWrite(loc, value, exclusive, at)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)

	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddReadRequest appends a read-request at the frontier; the caller must
// follow up with AddResponse to obtain the value once one is available.
func (e *Engine) AddReadRequest(threadID clock.ThreadID, loc memloc.MemoryLocation, exclusive bool, at label.CodeLocation) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	lbl := label.NewReadRequest(loc, exclusive, at)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddUnlock appends an unlock/notify-style Send and runs synchronization
// search against pending lock-requests for mutex.
func (e *Engine) AddUnlock(threadID clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int, synthetic bool) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	lbl := label.NewUnlock(mutex, reentry, depth, synthetic)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddLockRequest appends a lock-request at the frontier.
func (e *Engine) AddLockRequest(threadID clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int, synthetic bool) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	lbl := label.NewLockRequest(mutex, reentry, depth, synthetic)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddNotify appends a notify Send and runs synchronization search against
// pending wait-requests for mutex.
func (e *Engine) AddNotify(threadID clock.ThreadID, mutex objid.ObjectID, broadcast bool) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	lbl := label.NewNotify(mutex, broadcast)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddWaitRequest appends a wait-request at the frontier.
func (e *Engine) AddWaitRequest(threadID clock.ThreadID, mutex objid.ObjectID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewWaitRequest(mutex)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddThreadFork appends a thread-fork Send and runs synchronization search
// against pending thread-start-requests for its children.
func (e *Engine) AddThreadFork(threadID clock.ThreadID, children ...clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewThreadFork(children...)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddThreadStartRequest appends a thread-start-request for the newly
// forked thread.
func (e *Engine) AddThreadStartRequest(threadID clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewThreadStartRequest(threadID)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddThreadFinish appends a thread-finish Send and folds it into any
// matching thread-join barrier requests.
func (e *Engine) AddThreadFinish(threadID clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewThreadFinish(threadID)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddThreadJoinRequest appends a barrier request waiting on waitingOn.
func (e *Engine) AddThreadJoinRequest(threadID clock.ThreadID, waitingOn ...clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewThreadJoinRequest(waitingOn...)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddObjectAllocation appends an allocation event for a newly constructed
// object; init is stored on the allocation label. The engine never calls
// init itself.
func (e *Engine) AddObjectAllocation(threadID clock.ThreadID, id objid.ObjectID, className string, init label.MemoryInitializer) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewObjectAllocation(id, className, init)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddParkRequest appends a park-request at the frontier; resolved by a
// matching AddUnpark for the same thread.
func (e *Engine) AddParkRequest(threadID clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewParkRequest(threadID)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddUnpark appends an unpark Send and runs synchronization search against
// any pending park-request for the unparked thread.
func (e *Engine) AddUnpark(threadID, unparkingThread clock.ThreadID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewUnpark(unparkingThread)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddCoroutineSuspendRequest appends a coroutine-suspend request for actor,
// resolved by a matching AddCoroutineResume.
func (e *Engine) AddCoroutineSuspendRequest(threadID clock.ThreadID, actor objid.ObjectID, promptCancel bool) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewCoroutineSuspendRequest(threadID, actor, promptCancel)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddCoroutineResume appends a coroutine-resume Send and runs
// synchronization search against any pending suspend-request for actor.
func (e *Engine) AddCoroutineResume(threadID clock.ThreadID, actor objid.ObjectID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewCoroutineResume(threadID, actor)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	if e.replayer.Done() {
		e.addSynchronizedEvents(ev)
	}
	return ev
}

// AddActorSpan appends an actor-start or actor-end marker event; these
// never block and never synchronize with anything on their own.
func (e *Engine) AddActorSpan(kind label.SpanKind, threadID clock.ThreadID, actor objid.ObjectID) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewActorSpan(kind, threadID, actor)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// AddRandom appends a recorded random-value event, so replay reproduces
// the same draw deterministically instead of re-sampling the source.
func (e *Engine) AddRandom(threadID clock.ThreadID, value int64) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	lbl := label.NewRandom(value)
	ev := e.createEvent(threadID, lbl, nil, true)
	e.exec.Append(ev, event.InvalidID)
	return ev
}

// --- Response protocol ---------------------------------------------------

// AddResponse resolves requestEvent: first consulting the replayer, then a
// previously recorded unblocking response, and finally a fresh
// synchronization search. Returns nil if the request is (still) dangling.
func (e *Engine) AddResponse(requestEvent *event.Event) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.replayer.Done() {
		if rec, ok := e.replayer.NextForThread(requestEvent.ThreadID); ok && rec.Label.IsResponse() {
			e.replayer.Advance()
			resp := e.createEvent(requestEvent.ThreadID, rec.Label, []event.ID{requestEvent.ID}, true)
			if resp == nil {
				e.signalSwitch(StrategySwitch, requestEvent.ThreadID)
				return nil
			}
			e.exec.Append(resp, requestEvent.ID)
			e.recordSpin(resp)
			return resp
		}
		// The next replayed record belongs to a different thread: the
		// calling thread cannot make progress until the scheduler brings
		// that thread to the front.
		e.signalSwitch(StrategySwitch, requestEvent.ThreadID)
		return nil
	}

	if respID, ok := e.exec.UnblockingResponse(requestEvent.ID); ok {
		if resp := e.arena.Get(respID); resp != nil {
			e.exec.Append(resp, requestEvent.ID)
			e.stack.MarkVisited(resp.ID)
			e.recordSpin(resp)
			return resp
		}
	}

	candidates := e.filterCandidates(requestEvent, e.findSendCandidates(requestEvent))
	var produced []*event.Event
	currentLabel := requestEvent.Label
	for _, cand := range candidates {
		respLabel, outcome := label.Sync(cand.Label, currentLabel)
		switch outcome {
		case label.Resolved:
			resp := e.createEvent(requestEvent.ThreadID, respLabel, []event.ID{requestEvent.ID, cand.ID}, false)
			if resp != nil {
				produced = append(produced, resp)
			}
		case label.Partial:
			currentLabel = respLabel
		}
	}
	if len(produced) == 0 {
		e.signalSwitch(StrategySwitch, requestEvent.ThreadID)
		return nil
	}
	sort.Slice(produced, func(i, j int) bool { return produced[i].ID < produced[j].ID })
	chosen := produced[len(produced)-1]
	e.stack.MarkVisited(chosen.ID)
	e.exec.Append(chosen, requestEvent.ID)
	e.recordSpin(chosen)
	return chosen
}

// recordSpin feeds a freshly-appended read-response into the loop
// detector and signals a SpinBoundSwitch if it trips.
func (e *Engine) recordSpin(resp *event.Event) {
	if resp.Label.Family != label.Read || !resp.Label.IsResponse() {
		return
	}
	if e.loop.RecordRead(resp.ThreadID, resp.Label.CodeLocation, resp.Label.Value) {
		e.stats.SpinBoundTrips++
		e.signalSwitch(SpinBoundSwitch, resp.ThreadID)
	}
}

func (e *Engine) signalSwitch(reason SwitchReason, tid clock.ThreadID) {
	if reason == StrategySwitch {
		e.stats.StrategySwitches++
	}
	if e.threadSwitch != nil {
		e.threadSwitch(reason, tid)
	}
}

// addSynchronizedEvents enumerates candidate Requests a freshly-appended
// Send can resolve, applies §4.5.3's universal filters, and for each
// remaining match constructs the response as a new (initially unvisited)
// backtracking point.
func (e *Engine) addSynchronizedEvents(send *event.Event) {
	var requests []*event.Event
	switch send.Label.Family {
	case label.Write:
		if e.exec.IsReadWriteRaceFree(send.Label.Location.Key()) {
			// §4.5.3: a write at a read-write-race-free location has no
			// candidates — every read of it is already causally ordered.
			return
		}
		for _, id := range e.exec.GetReadRequests(send.Label.Location.Key()) {
			if r := e.arena.Get(id); r != nil {
				requests = append(requests, r)
			}
		}
	default:
		for _, id := range e.exec.DanglingRequests() {
			if r := e.arena.Get(id); r != nil {
				requests = append(requests, r)
			}
		}
	}

	requests = e.filterCandidates(send, requests)

	for _, req := range requests {
		respLabel, outcome := label.Sync(send.Label, req.Label)
		if outcome != label.Resolved {
			continue
		}
		resp := e.createEvent(req.ThreadID, respLabel, []event.ID{req.ID, send.ID}, false)
		if resp == nil {
			continue
		}
		e.exec.RecordUnblockingResponse(req.ID, resp.ID)
	}
}

// findSendCandidates returns every event in the arena that could
// conceivably synchronize with request, per its family and §4.5.3's
// per-family rules (universal filters (a)/(b) are applied separately by
// filterCandidates, at each call site).
func (e *Engine) findSendCandidates(request *event.Event) []*event.Event {
	switch request.Label.Family {
	case label.Read:
		return e.findWriteCandidates(request)
	case label.Lock:
		if request.Label.IsReentry {
			// A reentrant lock-request never contends for the mutex: it
			// only ever synchronizes with the mutex's own allocation.
			if alloc := e.allocationEventFor(request.Label.MutexID); alloc != nil {
				return []*event.Event{alloc}
			}
			return nil
		}
		return e.scanSends()
	case label.ThreadJoin:
		var out []*event.Event
		for _, id := range request.Label.JoinThreadIDs {
			out = append(out, e.finishEventFor(id)...)
		}
		return out
	default:
		// Wait/Park/ThreadStart/CoroutineSuspend: scan every Send and let
		// label.Sync reject non-matches; the arena is small enough
		// per-exploration for this to be acceptable.
		return e.scanSends()
	}
}

// findWriteCandidates implements §4.5.3's ReadRequest rule: when the
// location is race-free, the unique last write is the only candidate;
// otherwise every write is a candidate except stale writes — a write a
// later write on the same thread has already causally superseded, which a
// fresh read never needs to observe.
func (e *Engine) findWriteCandidates(request *event.Event) []*event.Event {
	key := request.Label.Location.Key()
	if e.exec.IsRaceFree(key) {
		if id, ok := e.exec.GetLastWrite(key); ok {
			if w := e.arena.Get(id); w != nil {
				return []*event.Event{w}
			}
		}
		return nil
	}

	ids := e.exec.GetWrites(key)
	var out []*event.Event
	for _, id := range ids {
		w := e.arena.Get(id)
		if w == nil || e.isStaleWrite(w, ids) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// isStaleWrite reports whether w is causally superseded by a later write
// to the same location on the same thread.
func (e *Engine) isStaleWrite(w *event.Event, ids []event.ID) bool {
	for _, otherID := range ids {
		if otherID == w.ID {
			continue
		}
		other := e.arena.Get(otherID)
		if other == nil {
			continue
		}
		if other.ThreadID == w.ThreadID && w.CausalityClock.HappensBefore(other.CausalityClock) {
			return true
		}
	}
	return false
}

// allocationEventFor returns the ObjectAllocation event for id, if any.
func (e *Engine) allocationEventFor(id objid.ObjectID) *event.Event {
	for aid := event.ID(0); aid < event.ID(e.arena.Len()); aid++ {
		if ev := e.arena.Get(aid); ev != nil && ev.Label.Family == label.ObjectAllocation && ev.Label.ObjectID == id {
			return ev
		}
	}
	return nil
}

func (e *Engine) scanSends() []*event.Event {
	var out []*event.Event
	for id := event.ID(0); id < event.ID(e.arena.Len()); id++ {
		if ev := e.arena.Get(id); ev != nil && ev.Label.IsSend() {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Engine) finishEventFor(tid clock.ThreadID) []*event.Event {
	var out []*event.Event
	for id := event.ID(0); id < event.ID(e.arena.Len()); id++ {
		if ev := e.arena.Get(id); ev != nil && ev.Label.Family == label.ThreadFinish && ev.ThreadID == tid {
			out = append(out, ev)
		}
	}
	return out
}
