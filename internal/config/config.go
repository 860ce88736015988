// Package config carries the exploration engine's run-wide tunables.
//
// Everything that would otherwise be a package-level global — thread
// count, per-schedule timeout, spin bound, budgets, logger — lives on one
// explicit, validated Config built with functional options and threaded
// through the engine and worker pool constructors, matching the teacher's
// detector.New(opts ...Option) constructor shape in
// internal/race/detector/detector.go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkovalenko/eventsim/internal/diag"
)

// Defaults, chosen to be small enough for a unit test to hit quickly and
// large enough to exercise real interleavings.
const (
	DefaultThreads    = 4
	DefaultTimeout    = 30 * time.Second
	DefaultSpinBound  = 1000
	DefaultMaxSchedules = 0 // 0 means unbounded.
	DefaultMaxEvents    = 0 // 0 means unbounded.
)

// Config is the immutable-after-construction bag of tunables passed to the
// engine and worker pool.
type Config struct {
	Threads      int
	Timeout      time.Duration
	SpinBound    int
	FailFast     bool
	MaxSchedules int
	MaxEvents    int
	Logger       *slog.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithThreads sets the fixed number of worker-pool threads the harness
// runs, i.e. the dimension of every CausalityClock in the exploration.
func WithThreads(n int) Option {
	return func(c *Config) { c.Threads = n }
}

// WithTimeout sets the per-schedule wall-clock budget carried on Config.
// Neither the engine nor the checker reads it; the worker pool takes its
// timeout as a SubmitAndAwait argument.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithSpinBound sets SPIN_BOUND, the number of times the loop detector
// will let the same thread revisit the same code location before treating
// it as a non-terminating spin loop.
func WithSpinBound(k int) Option {
	return func(c *Config) { c.SpinBound = k }
}

// WithFailFast sets the fail-fast flag carried on Config. Neither the
// engine nor the checker reads it.
func WithFailFast(failFast bool) Option {
	return func(c *Config) { c.FailFast = failFast }
}

// WithMaxSchedules sets the schedule budget carried on Config. 0 means
// unbounded. Neither the engine nor the checker reads it or returns
// ErrBudgetExhausted.
func WithMaxSchedules(n int) Option {
	return func(c *Config) { c.MaxSchedules = n }
}

// WithMaxEvents sets the per-execution event budget carried on Config. 0
// means unbounded. Neither the engine nor the checker reads it or returns
// ErrBudgetExhausted.
func WithMaxEvents(n int) Option {
	return func(c *Config) { c.MaxEvents = n }
}

// WithLogger overrides the default logger. Passing nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// New builds a Config from its defaults plus the given options, then
// validates it.
func New(opts ...Option) (*Config, error) {
	c := &Config{
		Threads:      DefaultThreads,
		Timeout:      DefaultTimeout,
		SpinBound:    DefaultSpinBound,
		MaxSchedules: DefaultMaxSchedules,
		MaxEvents:    DefaultMaxEvents,
		Logger:       diag.NewLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	// ErrInvalidThreads is returned when Threads is not positive.
	ErrInvalidThreads = errors.New("config: Threads must be positive")
	// ErrInvalidTimeout is returned when Timeout is not positive.
	ErrInvalidTimeout = errors.New("config: Timeout must be positive")
	// ErrInvalidSpinBound is returned when SpinBound is negative.
	ErrInvalidSpinBound = errors.New("config: SpinBound must be non-negative")
)

// Validate checks every field is in range. Called once by New; exported so
// a caller that builds a Config by hand (tests, mainly) can still validate
// it.
func (c *Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreads, c.Threads)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, c.Timeout)
	}
	if c.SpinBound < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSpinBound, c.SpinBound)
	}
	if c.MaxSchedules < 0 {
		return fmt.Errorf("config: MaxSchedules must be non-negative: got %d", c.MaxSchedules)
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("config: MaxEvents must be non-negative: got %d", c.MaxEvents)
	}
	return nil
}
