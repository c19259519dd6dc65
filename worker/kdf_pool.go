package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// KDFPool bounds how many key derivations run at once. Derivations are
// memory hard, so an unbounded burst of logins could exhaust the host.
type KDFPool struct {
	sem *semaphore.Weighted
}

func NewKDFPool(size int) *KDFPool {
	if size < 1 {
		size = 1
	}
	return &KDFPool{sem: semaphore.NewWeighted(int64(size))}
}

type kdfResult[T any] struct {
	value T
	err   error
}

// RunKDF waits for a free slot and runs fn in it. Once started, fn always
// runs to completion and releases its slot; if ctx ends first the caller gets
// ctx.Err() and the result is discarded.
func RunKDF[T any](ctx context.Context, pool *KDFPool, fn func() (T, error)) (T, error) {
	var zero T
	if err := pool.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan kdfResult[T], 1)
	go func() {
		defer pool.sem.Release(1)
		v, err := fn()
		done <- kdfResult[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
