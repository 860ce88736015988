package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkovalenko/eventsim/internal/engine/errs"
)

func TestSubmitAndAwaitRunsAllTasks(t *testing.T) {
	p := New("test", 3)
	var ran [3]bool
	tasks := make([]Task, 3)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context, workerIndex int) error {
			ran[workerIndex] = true
			return nil
		}
	}
	if err := p.SubmitAndAwait(context.Background(), tasks, time.Second); err != nil {
		t.Fatalf("SubmitAndAwait: %v", err)
	}
	for i, v := range ran {
		if !v {
			t.Errorf("worker %d never ran", i)
		}
	}
}

func TestSubmitAndAwaitTaskCountMismatch(t *testing.T) {
	p := New("test", 2)
	err := p.SubmitAndAwait(context.Background(), []Task{taskNoop}, time.Second)
	if !errors.Is(err, ErrTaskCountMismatch) {
		t.Fatalf("expected ErrTaskCountMismatch, got %v", err)
	}
}

func TestSubmitAndAwaitPropagatesTaskError(t *testing.T) {
	p := New("test", 2)
	wantErr := errors.New("boom")
	tasks := []Task{
		taskNoop,
		func(ctx context.Context, workerIndex int) error { return wantErr },
	}
	err := p.SubmitAndAwait(context.Background(), tasks, time.Second)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped task error, got %v", err)
	}
}

// TestSubmitAndAwaitTimeoutThenReusable covers scenario S5: one task runs
// forever, the pool times out, and a later submission on the same pool
// still succeeds.
func TestSubmitAndAwaitTimeoutThenReusable(t *testing.T) {
	p := New("s5", 2)
	blocked := []Task{
		taskNoop,
		func(ctx context.Context, workerIndex int) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	err := p.SubmitAndAwait(context.Background(), blocked, 10*time.Millisecond)
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if p.Stats().Timeouts != 1 {
		t.Errorf("Stats().Timeouts = %d, want 1", p.Stats().Timeouts)
	}

	if err := p.SubmitAndAwait(context.Background(), []Task{taskNoop, taskNoop}, time.Second); err != nil {
		t.Fatalf("expected pool reusable after timeout, got %v", err)
	}
	if p.Stats().Submits != 2 {
		t.Errorf("Stats().Submits = %d, want 2", p.Stats().Submits)
	}
}

func TestActiveWorkersReturnsToZeroAfterSubmission(t *testing.T) {
	p := New("test", 2)
	if err := p.SubmitAndAwait(context.Background(), []Task{taskNoop, taskNoop}, time.Second); err != nil {
		t.Fatalf("SubmitAndAwait: %v", err)
	}
	if n := p.ActiveWorkers(); n != 0 {
		t.Errorf("ActiveWorkers() = %d, want 0 after completion", n)
	}
}

func taskNoop(ctx context.Context, workerIndex int) error { return nil }
