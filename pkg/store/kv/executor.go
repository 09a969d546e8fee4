package kv

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxBlockingOps bounds concurrent engine calls when no limit is given.
const DefaultMaxBlockingOps = 64

// Executor runs blocking engine calls off the caller's goroutine.
//
// At most maxOps calls run at once. A caller whose context ends while waiting
// for a slot, or while its call is still running, gets ctx.Err() back
// immediately; the call itself runs to completion in the background and
// releases its slot when done.
type Executor struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewExecutor creates an Executor allowing maxOps concurrent calls.
// maxOps <= 0 selects DefaultMaxBlockingOps.
func NewExecutor(maxOps int) *Executor {
	if maxOps <= 0 {
		maxOps = DefaultMaxBlockingOps
	}
	return &Executor{
		sem:   semaphore.NewWeighted(int64(maxOps)),
		limit: int64(maxOps),
	}
}

// Limit returns the maximum number of concurrent calls.
func (e *Executor) Limit() int64 {
	return e.limit
}

// Do runs fn on a worker goroutine and waits for it or for ctx.
func (e *Executor) Do(ctx context.Context, fn func() error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer e.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				done <- fmt.Errorf("kv: panic in blocking call: %v\n%s", r, buf)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
