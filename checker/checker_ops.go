package checker

import (
	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/event"
	"github.com/mkovalenko/eventsim/internal/engine/label"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

var _ Interceptor = (*Checker)(nil)

// OnSharedRead blocks until a synchronizing write is available, then
// returns the observed value.
func (c *Checker) OnSharedRead(tid clock.ThreadID, loc memloc.MemoryLocation, exclusive bool, at label.CodeLocation) (objid.ValueID, bool) {
	req := c.engine.AddReadRequest(tid, loc, exclusive, at)
	var resp *event.Event
	c.awaitResponse(func() bool {
		resp = c.engine.AddResponse(req)
		return resp != nil
	})
	return resp.Label.Value, true
}

// OnSharedWrite appends a write and wakes every thread parked on a
// dangling request that this write might resolve.
func (c *Checker) OnSharedWrite(tid clock.ThreadID, loc memloc.MemoryLocation, value objid.ValueID, exclusive bool, at label.CodeLocation) {
	c.engine.AddWrite(tid, loc, value, exclusive, at)
	c.wakeProgress()
}

// OnAllocation registers value with the object registry and appends its
// allocation event, returning the ValueID other operations reference it
// by from then on.
func (c *Checker) OnAllocation(tid clock.ThreadID, value any, className string, at label.CodeLocation) objid.ValueID {
	vid := c.engine.Objects().ComputeValueID(value, 0, false)
	var init label.MemoryInitializer
	if c.strategy != nil {
		init = c.strategy.InitializeMemory
	}
	c.engine.AddObjectAllocation(tid, vid.Object, className, init)
	return vid
}

// OnLockAcquire blocks until a matching unlock is available.
func (c *Checker) OnLockAcquire(tid clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int) bool {
	req := c.engine.AddLockRequest(tid, mutex, reentry, depth, false)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnLockRelease appends an unlock and wakes anyone waiting on mutex.
func (c *Checker) OnLockRelease(tid clock.ThreadID, mutex objid.ObjectID, reentry bool, depth int, synthetic bool) {
	c.engine.AddUnlock(tid, mutex, reentry, depth, synthetic)
	c.wakeProgress()
}

// OnWait blocks until a matching notify is available.
func (c *Checker) OnWait(tid clock.ThreadID, mutex objid.ObjectID) bool {
	req := c.engine.AddWaitRequest(tid, mutex)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnNotify appends a notify and wakes anyone waiting on mutex.
func (c *Checker) OnNotify(tid clock.ThreadID, mutex objid.ObjectID, broadcast bool) {
	c.engine.AddNotify(tid, mutex, broadcast)
	c.wakeProgress()
}

// OnPark blocks until a matching unpark arrives for tid.
func (c *Checker) OnPark(tid clock.ThreadID) bool {
	req := c.engine.AddParkRequest(tid)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnUnpark appends an unpark for target and wakes it if parked.
func (c *Checker) OnUnpark(tid, target clock.ThreadID) {
	c.engine.AddUnpark(tid, target)
	c.wakeProgress()
}

// OnThreadStart blocks until the corresponding fork arrives.
func (c *Checker) OnThreadStart(tid clock.ThreadID) bool {
	req := c.engine.AddThreadStartRequest(tid)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnThreadFinish appends a thread-finish and wakes any pending join
// barrier it might complete.
func (c *Checker) OnThreadFinish(tid clock.ThreadID) {
	c.engine.AddThreadFinish(tid)
	c.wakeProgress()
}

// OnThreadFork appends a fork for the given children and wakes their
// pending thread-start requests.
func (c *Checker) OnThreadFork(tid clock.ThreadID, children ...clock.ThreadID) {
	c.engine.AddThreadFork(tid, children...)
	c.wakeProgress()
}

// OnThreadJoin blocks until every thread in waitingOn has finished.
func (c *Checker) OnThreadJoin(tid clock.ThreadID, waitingOn ...clock.ThreadID) bool {
	req := c.engine.AddThreadJoinRequest(tid, waitingOn...)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnCoroutineSuspend blocks until a matching resume arrives for actor.
func (c *Checker) OnCoroutineSuspend(tid clock.ThreadID, actor objid.ObjectID, promptCancel bool) bool {
	req := c.engine.AddCoroutineSuspendRequest(tid, actor, promptCancel)
	c.awaitResponse(func() bool { return c.engine.AddResponse(req) != nil })
	return true
}

// OnCoroutineResume appends a resume for actor and wakes its suspended
// coroutine.
func (c *Checker) OnCoroutineResume(tid clock.ThreadID, actor objid.ObjectID) {
	c.engine.AddCoroutineResume(tid, actor)
	c.wakeProgress()
}

// OnCoroutineCancel suspends actor with prompt cancellation requested; it
// is OnCoroutineSuspend with promptCancel forced true, kept as a distinct
// entry point because callers rarely branch on the boolean at the call
// site.
func (c *Checker) OnCoroutineCancel(tid clock.ThreadID, actor objid.ObjectID) bool {
	return c.OnCoroutineSuspend(tid, actor, true)
}

// OnRandom records a deterministically-replayable random draw.
func (c *Checker) OnRandom(tid clock.ThreadID, value int64) {
	c.engine.AddRandom(tid, value)
}

// OnActorStart marks the beginning of an actor's span on tid.
func (c *Checker) OnActorStart(tid clock.ThreadID, actor objid.ObjectID) {
	c.engine.AddActorSpan(label.SpanStart, tid, actor)
}

// OnActorEnd marks the end of an actor's span on tid.
func (c *Checker) OnActorEnd(tid clock.ThreadID, actor objid.ObjectID) {
	c.engine.AddActorSpan(label.SpanEnd, tid, actor)
}
