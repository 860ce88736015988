// Package label implements the event label model: the tagged union of
// thread actions an event can carry, the derived flags every label
// exposes, and the synchronization algebra that combines a Send label with
// a Request label to produce that Request's Response.
//
// A sealed tagged union with exhaustive switches is used here in place of
// virtual dispatch, per the "dynamic dispatch over labels" design note:
// Family is the tag, Label carries every variant's fields (unused fields
// are the zero value for a given Family), and Sync is a single function
// pattern-matching on both operands.
package label

import (
	"fmt"

	"github.com/mkovalenko/eventsim/internal/engine/clock"
	"github.com/mkovalenko/eventsim/internal/engine/memloc"
	"github.com/mkovalenko/eventsim/internal/engine/objid"
)

// Family names every label variant in the data model.
type Family uint8

const (
	Initialization Family = iota
	ObjectAllocation
	Read
	Write
	Lock
	Unlock
	Wait
	Notify
	Park
	Unpark
	ThreadStart
	ThreadFinish
	ThreadFork
	ThreadJoin
	CoroutineSuspend
	CoroutineResume
	ActorSpan
	Random
)

func (f Family) String() string {
	switch f {
	case Initialization:
		return "Initialization"
	case ObjectAllocation:
		return "ObjectAllocation"
	case Read:
		return "Read"
	case Write:
		return "Write"
	case Lock:
		return "Lock"
	case Unlock:
		return "Unlock"
	case Wait:
		return "Wait"
	case Notify:
		return "Notify"
	case Park:
		return "Park"
	case Unpark:
		return "Unpark"
	case ThreadStart:
		return "ThreadStart"
	case ThreadFinish:
		return "ThreadFinish"
	case ThreadFork:
		return "ThreadFork"
	case ThreadJoin:
		return "ThreadJoin"
	case CoroutineSuspend:
		return "CoroutineSuspend"
	case CoroutineResume:
		return "CoroutineResume"
	case ActorSpan:
		return "ActorSpan"
	case Random:
		return "Random"
	default:
		return "Unknown"
	}
}

// Phase discriminates a Request/Response label from a one-shot label.
type Phase uint8

const (
	// NoPhase marks families that are neither Request nor Response
	// (Initialization, ObjectAllocation, Write, Unlock, Notify, Unpark,
	// ThreadFinish, ThreadFork, CoroutineResume, Random are one-shot Sends
	// or plain events).
	NoPhase Phase = iota
	PhaseRequest
	PhaseResponse
)

// SpanKind discriminates the two ActorSpan endpoints.
type SpanKind uint8

const (
	SpanStart SpanKind = iota
	SpanEnd
)

// SyncType classifies how a Request label is resolved: Binary requests
// need exactly one matching Send, Barrier requests (ThreadJoin) fold over
// multiple Sends before they resolve.
type SyncType uint8

const (
	SyncNone SyncType = iota
	SyncBinary
	SyncBarrier
)

// MemoryInitializer supplies the initial value of a location the first
// time it's observed, as described in the external interfaces (§10):
// MemoryInitializer(location) -> initialValue.
type MemoryInitializer func(memloc.MemoryLocation) objid.ValueID

// CodeLocation is the token instrumented user code hands the engine to
// identify where an operation occurred. Pretty-printing this into a
// human-readable trace is explicitly out of scope; the engine only stores
// and compares it (for spin-loop detection keyed on (thread, CodeLocation)).
type CodeLocation struct {
	File   string
	Method string
	Line   int
}

func (c CodeLocation) String() string {
	return fmt.Sprintf("%s:%d (%s)", c.File, c.Line, c.Method)
}

// Label is the tagged union of one thread action. Which fields are
// meaningful is determined entirely by Family; see the doc comment on each
// constructor for which fields it populates.
type Label struct {
	Family Family
	Phase  Phase // meaningful for Read, Lock, Wait, Park, ThreadStart, ThreadJoin, CoroutineSuspend.

	// Initialization / ObjectAllocation.
	InitThreadID      clock.ThreadID
	MainThreadID      clock.ThreadID
	ObjectID          objid.ObjectID
	ClassName         string
	MemoryInitializer MemoryInitializer

	// Read / Write.
	Location     memloc.MemoryLocation
	Value        objid.ValueID
	IsExclusive  bool
	CodeLocation CodeLocation

	// Lock / Unlock.
	MutexID         objid.ObjectID
	IsReentry       bool
	ReentrancyDepth int
	IsSynthetic     bool

	// Notify.
	IsBroadcast bool

	// Park / Unpark / ThreadStart / ThreadFinish / CoroutineSuspend / CoroutineResume / ActorSpan.
	ThreadID clock.ThreadID

	// ThreadFork.
	ForkThreadIDs []clock.ThreadID

	// ThreadJoin: the set of thread ids still being waited on. Shrinks as
	// ThreadFinish events fold into it; the request resolves to a Response
	// once it is empty.
	JoinThreadIDs []clock.ThreadID

	// CoroutineSuspend / ActorSpan.
	ActorID            objid.ObjectID
	PromptCancellation bool
	SpanKind           SpanKind

	// Random.
	RandomValue int64
}

// IsRequest reports whether this label is a blocking request awaiting a
// Response.
func (l Label) IsRequest() bool { return l.Phase == PhaseRequest }

// IsResponse reports whether this label was synthesized by synchronizing a
// Request with a Send.
func (l Label) IsResponse() bool { return l.Phase == PhaseResponse }

// IsSend reports whether this label may synchronize with a Request to
// produce that Request's Response.
func (l Label) IsSend() bool {
	switch l.Family {
	case Write, Unlock, Notify, Unpark, ThreadFinish, ThreadFork, CoroutineResume, Initialization, ObjectAllocation:
		return true
	default:
		return false
	}
}

// IsBlocking reports whether this label represents a thread that cannot
// proceed until a Response arrives.
func (l Label) IsBlocking() bool { return l.IsRequest() }

// IsUnblocked reports whether this label represents the point a
// previously-blocked thread resumes.
func (l Label) IsUnblocked() bool { return l.IsResponse() }

// SyncType classifies how this label's Requests resolve.
func (l Label) SyncType() SyncType {
	if l.Family == ThreadJoin {
		return SyncBarrier
	}
	if l.IsRequest() || l.responseFamily() {
		return SyncBinary
	}
	return SyncNone
}

func (l Label) responseFamily() bool {
	switch l.Family {
	case Read, Lock, Wait, Park, ThreadStart, ThreadJoin, CoroutineSuspend:
		return true
	default:
		return false
	}
}

// resourceKey identifies "the same resource" for conflict/candidate
// filtering: the memory location for Read/Write, the mutex id for
// Lock/Unlock/Wait/Notify, the thread id for Park/Unpark/ThreadStart, and
// nothing (always distinct) for families with no shared resource.
func (l Label) resourceKey() any {
	switch l.Family {
	case Read, Write:
		return l.Location
	case Lock, Unlock, Wait, Notify:
		return l.MutexID
	case Park, Unpark:
		return l.ThreadID
	case ThreadStart:
		return l.ThreadID
	default:
		return nil
	}
}

// String renders a compact debug form, in the spirit of the teacher's
// epoch/vectorclock String() methods used only for logging and reports.
func (l Label) String() string {
	switch l.Family {
	case Read:
		return fmt.Sprintf("Read(%v, %s, %v)", l.Phase, l.Location, l.Value)
	case Write:
		return fmt.Sprintf("Write(%s, %v)", l.Location, l.Value)
	case Lock:
		return fmt.Sprintf("Lock(%v, %v)", l.Phase, l.MutexID)
	case Unlock:
		return fmt.Sprintf("Unlock(%v)", l.MutexID)
	default:
		return fmt.Sprintf("%s(%v)", l.Family, l.Phase)
	}
}

// New constructors for one-shot / Send labels ---------------------------

func NewInitialization(initThread, mainThread clock.ThreadID, init MemoryInitializer) Label {
	return Label{Family: Initialization, InitThreadID: initThread, MainThreadID: mainThread, MemoryInitializer: init}
}

func NewObjectAllocation(id objid.ObjectID, className string, init MemoryInitializer) Label {
	return Label{Family: ObjectAllocation, ObjectID: id, ClassName: className, MemoryInitializer: init}
}

func NewWrite(loc memloc.MemoryLocation, value objid.ValueID, exclusive bool, at CodeLocation) Label {
	return Label{Family: Write, Location: loc, Value: value, IsExclusive: exclusive, CodeLocation: at}
}

func NewReadRequest(loc memloc.MemoryLocation, exclusive bool, at CodeLocation) Label {
	return Label{Family: Read, Phase: PhaseRequest, Location: loc, IsExclusive: exclusive, CodeLocation: at}
}

func NewUnlock(mutex objid.ObjectID, isReentry bool, depth int, synthetic bool) Label {
	return Label{Family: Unlock, MutexID: mutex, IsReentry: isReentry, ReentrancyDepth: depth, IsSynthetic: synthetic}
}

func NewLockRequest(mutex objid.ObjectID, isReentry bool, depth int, synthetic bool) Label {
	return Label{Family: Lock, Phase: PhaseRequest, MutexID: mutex, IsReentry: isReentry, ReentrancyDepth: depth, IsSynthetic: synthetic}
}

func NewNotify(mutex objid.ObjectID, broadcast bool) Label {
	return Label{Family: Notify, MutexID: mutex, IsBroadcast: broadcast}
}

func NewWaitRequest(mutex objid.ObjectID) Label {
	return Label{Family: Wait, Phase: PhaseRequest, MutexID: mutex}
}

func NewUnpark(unparkingThread clock.ThreadID) Label {
	return Label{Family: Unpark, ThreadID: unparkingThread}
}

func NewParkRequest(thread clock.ThreadID) Label {
	return Label{Family: Park, Phase: PhaseRequest, ThreadID: thread}
}

func NewThreadFork(children ...clock.ThreadID) Label {
	return Label{Family: ThreadFork, ForkThreadIDs: append([]clock.ThreadID(nil), children...)}
}

func NewThreadStartRequest(thread clock.ThreadID) Label {
	return Label{Family: ThreadStart, Phase: PhaseRequest, ThreadID: thread}
}

func NewThreadFinish(thread clock.ThreadID) Label {
	return Label{Family: ThreadFinish, ThreadID: thread}
}

func NewThreadJoinRequest(waitingOn ...clock.ThreadID) Label {
	return Label{Family: ThreadJoin, Phase: PhaseRequest, JoinThreadIDs: append([]clock.ThreadID(nil), waitingOn...)}
}

func NewCoroutineSuspendRequest(thread clock.ThreadID, actor objid.ObjectID, promptCancel bool) Label {
	return Label{Family: CoroutineSuspend, Phase: PhaseRequest, ThreadID: thread, ActorID: actor, PromptCancellation: promptCancel}
}

func NewCoroutineResume(thread clock.ThreadID, actor objid.ObjectID) Label {
	return Label{Family: CoroutineResume, ThreadID: thread, ActorID: actor}
}

func NewActorSpan(kind SpanKind, thread clock.ThreadID, actor objid.ObjectID) Label {
	return Label{Family: ActorSpan, SpanKind: kind, ThreadID: thread, ActorID: actor}
}

func NewRandom(value int64) Label {
	return Label{Family: Random, RandomValue: value}
}

// Outcome classifies the result of Sync.
type Outcome uint8

const (
	// NoMatch means send cannot resolve request at all.
	NoMatch Outcome = iota
	// Resolved means send fully resolves request; the returned label is
	// its Response.
	Resolved
	// Partial means send folds into a barrier request (ThreadJoin) but
	// does not fully resolve it; the returned label is an updated Request
	// with a smaller JoinThreadIDs set.
	Partial
)

// Sync implements the synchronization algebra's ⊕ operator: given a Send
// label and a Request label, it determines whether the Send resolves (or
// partially resolves, for barriers) the Request, and if so returns the
// resulting label.
//
// This generalizes the teacher's pairwise release/acquire matching
// (syncshadow.SyncVar pairing a releasing Unlock with the next Lock,
// detector.go's OnXxxStart/OnXxxEnd bracketing) into a single pattern match
// over label families, since the data model treats every blocking
// operation — not just locks — as a Request awaiting a matching Send.
func Sync(send, request Label) (Label, Outcome) {
	if !request.IsRequest() {
		return Label{}, NoMatch
	}
	return syncFamily(send, request)
}

func syncFamily(send, request Label) (Label, Outcome) {
	switch request.Family {
	case Read:
		if send.Family != Write {
			return Label{}, NoMatch
		}
		if send.Location == nil || request.Location == nil || send.Location.Key() != request.Location.Key() {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		resp.Value = send.Value
		return resp, Resolved

	case Lock:
		if send.Family != Unlock || send.MutexID != request.MutexID {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		return resp, Resolved

	case Wait:
		if send.Family != Notify || send.MutexID != request.MutexID {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		return resp, Resolved

	case Park:
		if send.Family != Unpark || send.ThreadID != request.ThreadID {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		return resp, Resolved

	case ThreadStart:
		if send.Family != ThreadFork || !containsThread(send.ForkThreadIDs, request.ThreadID) {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		return resp, Resolved

	case ThreadJoin:
		if send.Family != ThreadFinish || !containsThread(request.JoinThreadIDs, send.ThreadID) {
			return Label{}, NoMatch
		}
		remaining := removeThread(request.JoinThreadIDs, send.ThreadID)
		if len(remaining) == 0 {
			resp := request
			resp.Phase = PhaseResponse
			resp.JoinThreadIDs = nil
			return resp, Resolved
		}
		next := request
		next.JoinThreadIDs = remaining
		return next, Partial

	case CoroutineSuspend:
		if send.Family != CoroutineResume || send.ActorID != request.ActorID {
			return Label{}, NoMatch
		}
		resp := request
		resp.Phase = PhaseResponse
		return resp, Resolved

	default:
		return Label{}, NoMatch
	}
}

func containsThread(ids []clock.ThreadID, target clock.ThreadID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func removeThread(ids []clock.ThreadID, target clock.ThreadID) []clock.ThreadID {
	out := make([]clock.ThreadID, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
