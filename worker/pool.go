package worker

import (
	"context"
	"errors"
	"sync"
)

// Pool runs N concurrent consumers over the job queue, all attached to the
// same durable queue so jobs are distributed among them.
type Pool struct {
	rt        *Runtime
	processes int
}

// NewPool creates a pool of the given size.
func NewPool(rt *Runtime, processes int) *Pool {
	if processes < 1 {
		processes = 1
	}
	return &Pool{rt: rt, processes: processes}
}

// Run blocks until the context is cancelled or a consumer fails.
func (p *Pool) Run(ctx context.Context) error {
	actor := NewActor(p.rt)
	callbacks := p.rt.Callbacks()
	opts := p.rt.QueueOptions("")

	p.rt.Logger.Info("Starting workers", "processes", p.processes, "queue", opts.QueueName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, p.processes)
	var wg sync.WaitGroup

	for range p.processes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.rt.Queue.Consume(ctx, opts, actor.Handle, callbacks); err != nil {
				errs <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return nil
}
