// Package retry runs fallible operations under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrInvalidPolicy is returned when a Policy violates its bounds.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy defines retry behavior.
type Policy struct {
	DelayMultiplier float64
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	MaxRetries      int
}

// DefaultPolicy provides the documented defaults.
var DefaultPolicy = Policy{
	DelayMultiplier: 1.0,
	InitialDelay:    100 * time.Millisecond,
	MaxDelay:        300 * time.Second,
	MaxRetries:      10,
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 1:
		return fmt.Errorf("%w: max retries %d < 1", ErrInvalidPolicy, p.MaxRetries)
	case p.DelayMultiplier < 1.0 || math.IsNaN(p.DelayMultiplier):
		return fmt.Errorf("%w: delay multiplier %v < 1.0", ErrInvalidPolicy, p.DelayMultiplier)
	case math.IsInf(p.DelayMultiplier, 0):
		return fmt.Errorf("%w: delay multiplier is infinite", ErrInvalidPolicy)
	case p.InitialDelay < 0:
		return fmt.Errorf("%w: negative initial delay %v", ErrInvalidPolicy, p.InitialDelay)
	case p.MaxDelay < 0:
		return fmt.Errorf("%w: negative max delay %v", ErrInvalidPolicy, p.MaxDelay)
	}
	return nil
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor holds the collaborators shared by retried calls. It has no
// per-call state, so one Executor may serve concurrent Run calls.
type Executor struct {
	// Name labels log lines and the OnRetry callback.
	Name    string
	Logger  *slog.Logger
	Sleep   Sleeper
	OnRetry func(name string, attempt int, delay time.Duration)
}

// NewExecutor creates an Executor that logs to logger (slog.Default when nil).
func NewExecutor(name string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Name: name, Logger: logger, Sleep: sleepContext}
}

// Run invokes op until it succeeds or the policy's MaxRetries invocations
// have failed. The final failure is returned as-is.
func Run[T any](ctx context.Context, e *Executor, p Policy, op func() (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	if e == nil {
		e = NewExecutor("", nil)
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	// Tracked in float milliseconds: it grows without bound, only the sleep is clamped.
	tracked := float64(p.InitialDelay) / float64(time.Millisecond)
	maxMs := float64(p.MaxDelay) / float64(time.Millisecond)

	for attempt := 1; ; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxRetries {
			return zero, err
		}

		sleepMs := math.Min(maxMs, tracked)
		delay := time.Duration(sleepMs * float64(time.Millisecond))
		logger.Info(
			fmt.Sprintf("sleeping %d ms before retry #%d", delay.Milliseconds(), attempt),
			"op", e.Name,
			"error", err,
		)
		if e.OnRetry != nil {
			e.OnRetry(e.Name, attempt, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, errors.Join(serr, err)
		}

		tracked *= p.DelayMultiplier
	}
}

// Do is Run for operations without a result.
func Do(ctx context.Context, e *Executor, p Policy, op func() error) error {
	_, err := Run(ctx, e, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
