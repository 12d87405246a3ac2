// Package antspool is a github.com/panjf2000/ants/v2-backed worker.Pool: a
// bounded goroutine pool where each submitted job runs on a pooled
// goroutine, mirroring the teacher's own pool-with-func usage in
// evaluation/service/local/pool.go and knowledge/default.go.
package antspool

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Edwardvaneechoud/Flowfile-sub004/worker"
)

type task struct {
	ctx    context.Context
	job    worker.Job
	result string
	err    error
	done   chan struct{}
}

// Pool is a bounded worker.Pool backed by an ants.PoolWithFunc.
type Pool struct {
	pool *ants.PoolWithFunc
	once sync.Once
}

// New builds a pool with the given number of concurrent workers.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("antspool: size must be > 0, got %d", size)
	}
	p := &Pool{}
	pool, err := ants.NewPoolWithFunc(size, func(args interface{}) {
		t, ok := args.(*task)
		if !ok {
			panic("antspool: unexpected task type")
		}
		defer close(t.done)
		t.result, t.err = t.job.Run(t.ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("antspool: creating pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Submit runs job on a pooled goroutine and blocks until it completes or ctx
// is cancelled.
func (p *Pool) Submit(ctx context.Context, job worker.Job) (string, error) {
	t := &task{ctx: ctx, job: job, done: make(chan struct{})}
	if err := p.pool.Invoke(t); err != nil {
		return "", fmt.Errorf("antspool: submitting job %s: %w", job.ContentHash, err)
	}
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Release frees the underlying pool's goroutines. Safe to call more than
// once; only the first call releases the pool.
func (p *Pool) Release() {
	p.once.Do(func() {
		p.pool.Release()
	})
}
