// Package checker is the public entry point: it wraps the exploration
// engine and worker pool behind the inward Interceptor surface
// instrumented code calls into, and the outward Strategy surface a driver
// implements to own scheduling decisions and report inconsistencies.
//
// This mirrors the teacher's top-level race package
// (race/api.go, a thin exported wrapper delegating to
// internal/race/api), generalized from "two functions, RaceRead and
// RaceWrite" to the full inward/outward interface pair the bounded model
// checker needs.
package checker

import (
	"sync"

	"github.com/mkovalenko/eventsim/internal/config"
	"github.com/mkovalenko/eventsim/internal/diag"
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/execution"
	"github.com/mkovalenko/eventsim/internal/engine/explore"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
	"github.com/mkovalenko/eventsim/internal/engine/replay"
	"github.com/mkovalenko/eventsim/internal/pool"
)

// Strategy is the outward decision surface a driver implements. The
// strategy owns which thread runs next; the checker only advises via
// OnThreadSwitch during replay divergence or a spin-bound trip.
type Strategy interface {
	// OnThreadSwitch is called when reason prevents the calling thread
	// from making progress right now.
	OnThreadSwitch(reason explore.SwitchReason, tid clock.ThreadID)
	// OnInconsistency is called whenever an installed consistency check
	// (see SetConsistencyCheck) reports a violation.
	OnInconsistency(inc *diag.Inconsistency)
	// InitializeMemory maps a memory location to its initial value. The
	// checker stores it on the Initialization and ObjectAllocation labels
	// it creates; neither the checker nor the engine calls it.
	InitializeMemory(loc memloc.MemoryLocation) objid.ValueID
}

// Interceptor is the inward surface instrumented user code calls into for
// every suspension point named in the external interfaces: shared memory
// access, locking, waiting, parking, allocation, thread lifecycle,
// coroutine suspension, randomness, and actor spans.
type Interceptor interface {
	OnSharedRead(tid clock.ThreadID, loc memloc.MemoryLocation, exclusive bool, at label.CodeLocation) (objid.ValueID, bool)
	OnSharedWrite(tid clock.ThreadID, loc memloc.MemoryLocation, value objid.ValueID, exclusive bool, at label.CodeLocation)
	OnAllocation(tid clock.ThreadID, value any, className string, at label.CodeLocation) objid.ValueID
	OnLockAcquire(tid clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int) bool
	OnLockRelease(tid clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int, synthetic bool)
	OnWait(tid clock.ThreadID, mutex objid.ObjectID) bool
	OnNotify(tid clock.ThreadID, mutex objid.ObjectID, broadcast bool)
	OnPark(tid clock.ThreadID) bool
	OnUnpark(tid, target clock.ThreadID)
	OnThreadStart(tid clock.ThreadID) bool
	OnThreadFinish(tid clock.ThreadID)
	OnThreadFork(tid clock.ThreadID, children ...clock.ThreadID)
	OnThreadJoin(tid clock.ThreadID, waitingOn ...clock.ThreadID) bool
	OnCoroutineSuspend(tid clock.ThreadID, actor objid.ObjectID, promptCancel bool) bool
	OnCoroutineResume(tid clock.ThreadID, actor objid.ObjectID)
	OnCoroutineCancel(tid clock.ThreadID, actor objid.ObjectID) bool
	OnRandom(tid clock.ThreadID, value int64)
	OnActorStart(tid clock.ThreadID, actor objid.ObjectID)
	OnActorEnd(tid clock.ThreadID, actor objid.ObjectID)
}

// Checker owns one exploration engine and one worker pool, and implements
// Interceptor over them.
type Checker struct {
	cfg    *config.Config
	engine *explore.Engine
	pool   *pool.FixedActiveThreadsExecutor

	// progressMu/progress implement the cooperative wait every blocking
	// Request goes through: a Send broadcasts progress so every thread
	// parked on a dangling request retries AddResponse instead of each
	// polling on its own timer.
	progressMu sync.Mutex
	progress   *sync.Cond

	strategy Strategy
}

// New builds a Checker from run-wide options; see internal/config for the
// available Option values (thread count, timeout, spin bound, budgets,
// logger).
func New(opts ...config.Option) (*Checker, error) {
	cfg, err := config.New(opts...)
	if err != nil {
		return nil, err
	}
	c := &Checker{
		cfg:    cfg,
		engine: explore.New(cfg),
		pool:   pool.New("checker", cfg.Threads),
	}
	c.progress = sync.NewCond(&c.progressMu)
	return c, nil
}

// Config returns the checker's run-wide tunables.
func (c *Checker) Config() *config.Config { return c.cfg }

// Pool returns the worker pool used to run one schedule's per-thread
// tasks.
func (c *Checker) Pool() *pool.FixedActiveThreadsExecutor { return c.pool }

// Engine exposes the underlying exploration engine for diagnostics,
// statistics, and schedule export.
func (c *Checker) Engine() *explore.Engine { return c.engine }

// SetStrategy installs the outward decision surface: thread-switch
// notifications and memory initialization are routed to s from then on.
func (c *Checker) SetStrategy(s Strategy) {
	c.strategy = s
	c.engine.SetThreadSwitchCallback(func(reason explore.SwitchReason, tid clock.ThreadID) {
		if s != nil {
			s.OnThreadSwitch(reason, tid)
		}
	})
}

// SetConsistencyCheck installs a consistency check run by CheckConsistency;
// a violation is reported to the installed Strategy's OnInconsistency.
func (c *Checker) SetConsistencyCheck(check func(*execution.Execution) *diag.Inconsistency) {
	c.engine.SetConsistencyCheck(check)
}

// CheckConsistency runs the installed consistency check (if any) and, on a
// violation, reports it to the installed strategy.
func (c *Checker) CheckConsistency() *diag.Inconsistency {
	inc := c.engine.CheckConsistency()
	if inc != nil && c.strategy != nil {
		c.strategy.OnInconsistency(inc)
	}
	return inc
}

// InitializeExploration starts a fresh exploration; order replays a
// previously recorded schedule (nil for a from-scratch run). The installed
// Strategy's InitializeMemory, if any, is stored on the initialization
// event's label.
func (c *Checker) InitializeExploration(mainThread clock.ThreadID, order []replay.Record) {
	var init label.MemoryInitializer
	if c.strategy != nil {
		init = c.strategy.InitializeMemory
	}
	c.engine.InitializeExploration(mainThread, init, order)
}

// StartNextExploration advances to the next unvisited backtracking point;
// see explore.Engine.StartNextExploration.
func (c *Checker) StartNextExploration() bool {
	return c.engine.StartNextExploration()
}

// AbortExploration truncates back to the replayed prefix.
func (c *Checker) AbortExploration() { c.engine.AbortExploration() }

// wakeProgress broadcasts that a Send was appended, so every goroutine
// blocked inside awaitResponse retries its dangling request.
func (c *Checker) wakeProgress() {
	c.progressMu.Lock()
	c.progress.Broadcast()
	c.progressMu.Unlock()
}

// awaitResponse blocks the calling goroutine until poll returns a non-nil
// response, retrying every time wakeProgress fires. This is the checker's
// rendition of "every interception callback enters the engine under an
// exclusive schedule lock... the engine may decide to park the current
// thread and release another" (see the concurrency model): the actual
// decision of which thread runs next belongs to the installed Strategy,
// this loop only re-polls once anything has changed.
func (c *Checker) awaitResponse(poll func() bool) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	for !poll() {
		c.progress.Wait()
	}
}
