package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fileIngestor/queue"
)

type Handler func(ctx context.Context, task *queue.Task) error

// WorkerPool runs a fixed number of workers, each pulling one task at a time
// from the consumer. A handler error nacks the delivery, anything else acks.
type WorkerPool struct {
	workers int
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewWorkerPool(maxWorkers int, logger *zap.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		workers: maxWorkers,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled or the consumer is closed, then waits for
// in-flight tasks. Tasks are not interrupted by ctx cancellation.
func (p *WorkerPool) Run(ctx context.Context, consumer queue.Consumer, handler Handler) {
	p.logger.Info("Worker pool starting", zap.Int("workers", p.workers))

	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id, consumer, handler)
		}(i)
	}

	p.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) work(ctx context.Context, id int, consumer queue.Consumer, handler Handler) {
	log := p.logger.With(zap.Int("worker_id", id))
	taskCtx := context.WithoutCancel(ctx)

	for {
		d, err := consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Failed to receive task", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.handle(taskCtx, log, d, handler)
	}
}

func (p *WorkerPool) handle(ctx context.Context, log *zap.Logger, d queue.Delivery, handler Handler) {
	task := d.Task()

	if err := p.safeCall(ctx, handler, task); err != nil {
		log.Warn("Task will be redelivered", zap.String("job_id", task.JobID), zap.Error(err))
		if err := d.Nack(ctx); err != nil {
			log.Error("Failed to nack task", zap.String("job_id", task.JobID), zap.Error(err))
		}
		return
	}

	if err := d.Ack(ctx); err != nil {
		log.Error("Failed to ack task", zap.String("job_id", task.JobID), zap.Error(err))
	}
}

// safeCall keeps a panicking handler from taking its worker down. The task
// is nacked so the job is not left stranded in processing.
func (p *WorkerPool) safeCall(ctx context.Context, handler Handler, task *queue.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic recovered in task handler",
				zap.String("job_id", task.JobID),
				zap.Any("error", r),
			)
			err = errors.New("handler panicked")
		}
	}()
	return handler(ctx, task)
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
