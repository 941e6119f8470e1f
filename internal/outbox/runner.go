package outbox

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Runner runs several processors against the same queue.
type Runner struct {
	processor *Processor
	wg        sync.WaitGroup
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor}
}

// Start launches replicas workers. Row locks keep them off each other's
// tasks, so they can share one Processor.
func (r *Runner) Start(ctx context.Context, replicas int) {
	if replicas < 1 {
		replicas = 1
	}
	for i := 0; i < replicas; i++ {
		r.wg.Add(1)
		go func(replica int) {
			defer r.wg.Done()
			r.processor.logger.Info("delivery worker started", zap.Int("replica", replica))
			r.processor.Run(ctx)
			r.processor.logger.Info("delivery worker stopped", zap.Int("replica", replica))
		}(i)
	}
}

// Wait blocks until every worker has returned after ctx cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}
