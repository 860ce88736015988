// Package errs defines the exploration engine's sentinel error set: every
// failure kind an exploration can end in, wrapped with fmt.Errorf("...:
// %w", ...) at the point of detection so callers can errors.Is/As instead
// of pattern-matching strings.
//
// Kept as its own package (rather than living in explore or pool) so both
// can depend on it without an import cycle.
package errs

import "errors"

var (
	// ErrInconsistency means the current execution violates the memory
	// model or the synchronization algebra, as reported by an installed
	// consistency check.
	ErrInconsistency = errors.New("engine: consistency violation")

	// ErrTimeout means the worker pool did not complete a schedule within
	// its budget.
	ErrTimeout = errors.New("engine: schedule timed out")

	// ErrDeadlock means every thread is blocked-awaiting and no dangling
	// request has an unblocking response.
	ErrDeadlock = errors.New("engine: deadlock, no thread can make progress")

	// ErrIncorrectResult means an external verifier rejected the completed
	// execution.
	ErrIncorrectResult = errors.New("engine: external verifier rejected execution")

	// ErrCausalityViolation means a prospective event conflicted with the
	// causal past of its parent or a dependency; recovered locally by the
	// engine (the alternative simply does not exist), never user-visible
	// on its own, but exported so tests can assert on it.
	ErrCausalityViolation = errors.New("engine: causality violation")

	// ErrBudgetExhausted means a configured schedule or event budget was
	// hit before any failure was found; distinct from a found failure.
	ErrBudgetExhausted = errors.New("engine: exploration budget exhausted")
)
