// Package retry runs fallible operations with bounded exponential backoff
// and reports every failed attempt as a warning.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tunetag/internal/report"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// Policy controls how many times an operation is attempted and how long
// to wait between attempts.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy returns 3 attempts starting at 5s and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	return p
}

// Backoff returns the delay that follows failed attempt k (1-based).
func (p Policy) Backoff(k int) time.Duration {
	p = p.withDefaults()
	if k < 1 {
		k = 1
	}
	d := float64(p.InitialDelay)
	for i := 1; i < k; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// TerminalError is returned once all attempts are exhausted, or earlier when
// an attempt fails with a fatal error or the context is cancelled.
type TerminalError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempt(s): %v", e.Label, e.Attempts, e.Last)
}

func (e *TerminalError) Unwrap() error { return e.Last }

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as not worth retrying (invalid input, unsupported link).
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Do runs op until it succeeds or the policy is exhausted. Attempts are
// sequential. Each failed attempt adds a warning labelled with label; the
// warnings are returned on both the success and the failure path.
func Do[T any](ctx context.Context, p Policy, label string, op func(ctx context.Context) (T, error)) (T, []report.Warning, error) {
	p = p.withDefaults()

	var (
		zero     T
		warnings []report.Warning
		lastErr  error
	)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, warnings, &TerminalError{Label: label, Attempts: attempt - 1, Last: err}
		}

		v, err := op(ctx)
		if err == nil {
			return v, warnings, nil
		}

		lastErr = err
		warnings = append(warnings, report.Warnf(label, "attempt %d failed: %v", attempt, err))

		if IsFatal(err) {
			return zero, warnings, &TerminalError{Label: label, Attempts: attempt, Last: err}
		}
		if attempt == p.MaxAttempts {
			break
		}

		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return zero, warnings, &TerminalError{Label: label, Attempts: attempt, Last: err}
		}
	}

	return zero, warnings, &TerminalError{Label: label, Attempts: p.MaxAttempts, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
