// Package workpool bounds the amount of blocking work (subprocesses, tag
// I/O) that runs at the same time.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool is a counting semaphore shared by everything that shells out or
// touches audio files.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool that runs at most size jobs at once.
// A size below 1 uses the number of CPUs.
func New(size int) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the configured concurrency.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free and waits for it.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	_, err := Run(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Run runs fn in the pool and returns its result. If ctx is cancelled while
// fn is running, Run returns ctx.Err() immediately; fn keeps its slot until
// it finishes so a half-done job is never abandoned mid-write.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer p.sem.Release(1)
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
