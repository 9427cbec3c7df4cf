// Package worker runs the gateway's workers: transports, dispatchers
// and relays share a lifecycle of Setup, Run and Teardown.
package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ismaild/vumi/interfaces"
)

// Runner owns a set of workers and drives them through their
// lifecycle together: all workers are set up first, then run
// concurrently until the context is canceled or one of them fails,
// then torn down in reverse registration order.
type Runner struct {
	workers []namedWorker
	log     *zap.Logger
}

type namedWorker struct {
	name   string
	worker interfaces.Worker
}

// NewRunner creates an empty runner.
func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log.Named("runner")}
}

// Add registers a worker under a name used in logs.
func (r *Runner) Add(name string, w interfaces.Worker) {
	r.workers = append(r.workers, namedWorker{name: name, worker: w})
}

// Run sets up and runs all workers until ctx is canceled or a worker
// fails. Teardown always runs for every worker that was set up.
func (r *Runner) Run(ctx context.Context) error {
	var ready []namedWorker
	defer func() {
		for i := len(ready) - 1; i >= 0; i-- {
			w := ready[i]
			if err := w.worker.Teardown(); err != nil {
				r.log.Error("teardown failed",
					zap.String("worker", w.name), zap.Error(err))
			}
		}
	}()

	for _, w := range r.workers {
		if err := w.worker.Setup(ctx); err != nil {
			r.log.Error("setup failed",
				zap.String("worker", w.name), zap.Error(err))
			return err
		}
		ready = append(ready, w)
		r.log.Info("worker ready", zap.String("worker", w.name))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range ready {
		g.Go(func() error {
			err := w.worker.Run(ctx)
			if err != nil {
				r.log.Error("worker failed",
					zap.String("worker", w.name), zap.Error(err))
			}
			return err
		})
	}
	return g.Wait()
}

// RunUntilSignal runs the workers until SIGINT or SIGTERM arrives.
func (r *Runner) RunUntilSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Run(ctx)
}
