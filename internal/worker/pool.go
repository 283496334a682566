package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tenderq/internal/status"
)

// Pool runs several workers in one process.
type Pool struct {
	workers  []*Worker
	recorder status.Recorder
}

// NewPool builds concurrency workers. With more than one worker each identity
// is "<opts.ID>-<n>".
func NewPool(deps Dependencies, opts Options, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = status.Nop{}
	}
	workers := make([]*Worker, 0, concurrency)
	for i := range concurrency {
		workerOpts := opts
		if concurrency > 1 {
			workerOpts.ID = fmt.Sprintf("%s-%d", opts.ID, i+1)
		}
		workers = append(workers, New(deps, workerOpts))
	}
	return &Pool{workers: workers, recorder: recorder}
}

// Workers returns the pool members.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Run starts every worker and waits for them to stop. The first worker error
// cancels the rest.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			p.recorder.Increment(status.CounterWorkersActive, 1)
			defer p.recorder.Increment(status.CounterWorkersActive, -1)
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
