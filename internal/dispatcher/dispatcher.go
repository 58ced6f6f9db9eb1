// Package dispatcher fans queued crawl requests out to runner goroutines.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// JobRunner executes one crawl request to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, req engine.CrawlRequest)
}

// Dispatcher pulls from the queue with a fixed number of runner goroutines.
// The runner count bounds how many jobs crawl concurrently; each job then
// bounds its own page parallelism through its session pool.
type Dispatcher struct {
	queue   engine.Queue
	runner  JobRunner
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher with the given parallelism.
func New(queue engine.Queue, runner JobRunner, workers int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Run blocks until the context finishes and all in-flight jobs return.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, id int) {
	for {
		req, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("dequeue failed", zap.Int("worker", id), zap.Error(err))
			return
		}
		d.logger.Debug("job picked up",
			zap.Int("worker", id),
			zap.String("job_id", req.JobID),
		)
		d.runner.Run(ctx, req)
	}
}
