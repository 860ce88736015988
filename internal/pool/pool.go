// Package pool implements the fixed-size worker pool the engine's driver
// submits one schedule's per-thread tasks to.
//
// It owns exactly n workers and guarantees that, between submissions,
// every worker has returned to idle — matching the teacher's pattern of
// reusable, long-lived infrastructure (internal/race/detector.Detector is
// reused schedule-to-schedule the same way). Unlike the teacher, which has
// no fan-out concurrency primitive at all, this pool launches its workers
// through golang.org/x/sync/errgroup: an error returned by one worker's
// task is propagated by errgroup and cancels its siblings via the shared
// context. Busy-wait bookkeeping (an atomic per-worker flag) is
// kept for diagnostics even though the actual wait is a blocking
// errgroup.Wait — true OS-level busy-waiting has no idiomatic Go
// equivalent and no example in the corpus uses it.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkovalenko/eventsim/internal/engine/errs"
)

// Task is one worker's unit of work for a single schedule submission. ctx
// is cancelled when the submission's timeout elapses or a sibling task
// failed; workerIndex is the task's stable worker slot (0..n-1), letting
// the engine address threads by a fixed index across submissions.
type Task func(ctx context.Context, workerIndex int) error

// ErrTaskCountMismatch is returned when SubmitAndAwait is called with a
// number of tasks different from the pool's worker count.
var ErrTaskCountMismatch = errors.New("pool: task count must equal worker count")

// FixedActiveThreadsExecutor owns exactly n workers, addressed by a
// stable index, and reused across schedule submissions.
type FixedActiveThreadsExecutor struct {
	name string
	n    int

	active   []atomic.Bool
	submits  atomic.Int64
	timeouts atomic.Int64
}

// New returns a pool of n workers identified by name (used only in error
// messages and diagnostics).
func New(name string, n int) *FixedActiveThreadsExecutor {
	return &FixedActiveThreadsExecutor{
		name:   name,
		n:      n,
		active: make([]atomic.Bool, n),
	}
}

// N returns the fixed worker count.
func (p *FixedActiveThreadsExecutor) N() int { return p.n }

// SubmitAndAwait publishes exactly one task per worker, waits for every
// task to return, and returns the first
// non-nil task error (rethrown "from the calling thread", i.e. returned
// here rather than panicking), or errs.ErrTimeout if the deadline passed
// before every task finished.
//
// Between calls every worker is idle again: SubmitAndAwait returns only
// after every task has returned. When the deadline passes, each task's
// context is cancelled; a task that ignores that cancellation keeps
// SubmitAndAwait waiting. Once it returns, the pool is usable for the
// next submission (the reusability this mirrors from the teacher's single
// long-lived Detector).
func (p *FixedActiveThreadsExecutor) SubmitAndAwait(parent context.Context, tasks []Task, timeout time.Duration) error {
	if len(tasks) != p.n {
		return fmt.Errorf("%w: pool %q has %d workers, got %d tasks", ErrTaskCountMismatch, p.name, p.n, len(tasks))
	}
	p.submits.Add(1)

	runCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for i, task := range tasks {
		i, task := i, task
		p.active[i].Store(true)
		g.Go(func() error {
			defer p.active[i].Store(false)
			return task(gctx, i)
		})
	}

	err := g.Wait()
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) {
			p.timeouts.Add(1)
			return fmt.Errorf("pool %q: %w", p.name, errs.ErrTimeout)
		}
		return err
	}
	if gctx.Err() != nil && errors.Is(gctx.Err(), context.DeadlineExceeded) {
		p.timeouts.Add(1)
		return fmt.Errorf("pool %q: %w", p.name, errs.ErrTimeout)
	}
	return nil
}

// ActiveWorkers reports how many workers currently have an in-flight
// task, for diagnostics.
func (p *FixedActiveThreadsExecutor) ActiveWorkers() int {
	n := 0
	for i := range p.active {
		if p.active[i].Load() {
			n++
		}
	}
	return n
}

// Stats snapshot: total submissions and how many timed out.
type Stats struct {
	Submits  int64
	Timeouts int64
}

// Stats returns a snapshot of the pool's lifetime counters.
func (p *FixedActiveThreadsExecutor) Stats() Stats {
	return Stats{Submits: p.submits.Load(), Timeouts: p.timeouts.Load()}
}
