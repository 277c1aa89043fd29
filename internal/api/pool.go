package api

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// RunPool bounds how many reports run against the warehouse at once.
// Concurrent requests for the same key share a single run.
type RunPool struct {
	slots   *semaphore.Weighted
	group   singleflight.Group
	maxSize int
	active  atomic.Int64
}

func NewRunPool(maxSize int) *RunPool {
	maxSize = max(maxSize, 1)
	return &RunPool{
		slots:   semaphore.NewWeighted(int64(maxSize)),
		maxSize: maxSize,
	}
}

// Do runs fn for key unless a run for key is already in flight, in which
// case it waits for that run's result. shared reports whether the result
// came from another caller's run.
func (p *RunPool) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	ch := p.group.DoChan(key, func() (any, error) {
		// the run outlives any single caller that gave up waiting
		runCtx := context.WithoutCancel(ctx)
		if err := p.slots.Acquire(runCtx, 1); err != nil {
			return nil, fmt.Errorf("failed to acquire run slot: %w", err)
		}
		defer p.slots.Release(1)

		p.active.Add(1)
		defer p.active.Add(-1)

		return fn(runCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Size returns the number of runs currently executing.
func (p *RunPool) Size() int {
	return int(p.active.Load())
}

func (p *RunPool) MaxSize() int {
	return p.maxSize
}
