package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is reported by operations on a Store without a database handle.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrEmptyBatch is reported by InsertBatch when given no samples.
	ErrEmptyBatch = errors.New("empty batch")
)

// Failure is the only error type returned by Store operations. It covers
// connectivity loss, constraint violations, aborted transactions and timeouts.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string {
	return f.Op + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Timeout reports whether the failure was caused by an expired deadline.
func (f *Failure) Timeout() bool {
	return errors.Is(f.Err, context.DeadlineExceeded)
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Op: op, Err: err}
}

// failCtx keeps the context error reachable through errors.Is when the driver
// reports the interruption with its own error value.
func failCtx(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = fmt.Errorf("%w: %w", err, cerr)
	}
	return &Failure{Op: op, Err: err}
}
