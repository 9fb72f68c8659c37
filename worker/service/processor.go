package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fileIngestor/queue"
	"fileIngestor/worker/content"
	"fileIngestor/worker/lifecycle"
)

// StateMachine is the part of lifecycle.Machine the processor drives.
type StateMachine interface {
	BeginProcessing(ctx context.Context, id string) error
	CompleteSuccess(ctx context.Context, id, result string) error
	CompleteFailure(ctx context.Context, id, errorMessage string) error
}

// ContentFunc computes the result for one file.
type ContentFunc func(filename string, data []byte) (string, error)

type Processor struct {
	jobs    StateMachine
	process ContentFunc
	logger  *zap.Logger
}

func NewProcessor(jobs StateMachine, logger *zap.Logger) *Processor {
	return &Processor{
		jobs:    jobs,
		process: content.Process,
		logger:  logger,
	}
}

// Process runs one task to a terminal status. A nil return means the task
// is fully handled and should be acked, including when the content could not
// be processed. An error means the record store could not be updated and the
// task should be delivered again.
func (p *Processor) Process(ctx context.Context, task *queue.Task) error {
	log := p.logger.With(
		zap.String("job_id", task.JobID),
		zap.String("trace_id", task.TraceID),
		zap.String("filename", task.Filename),
	)

	if err := p.jobs.BeginProcessing(ctx, task.JobID); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrJobNotFound):
			log.Warn("Dropping task without a job record", zap.Error(err))
			return nil
		case errors.Is(err, lifecycle.ErrAlreadyTerminal):
			log.Info("Skipping task for finished job", zap.Error(err))
			return nil
		default:
			log.Error("Failed to mark job as processing", zap.Error(err))
			return err
		}
	}

	log.Info("Processing file", zap.Int("size_bytes", len(task.Content)))

	result, procErr := p.process(task.Filename, task.Content)

	var err error
	if procErr != nil {
		log.Warn("File processing failed", zap.Error(procErr))
		err = p.jobs.CompleteFailure(ctx, task.JobID, failureMessage(procErr))
	} else {
		err = p.jobs.CompleteSuccess(ctx, task.JobID, result)
	}

	switch {
	case err == nil:
		if procErr == nil {
			log.Info("File processed successfully")
		}
		return nil
	case errors.Is(err, lifecycle.ErrJobNotFound), errors.Is(err, lifecycle.ErrAlreadyTerminal):
		log.Info("Terminal write skipped", zap.Error(err))
		return nil
	default:
		log.Error("Failed to record job outcome", zap.Error(err))
		return err
	}
}

func failureMessage(err error) string {
	var cerr *content.Error
	if errors.As(err, &cerr) {
		return cerr.Error()
	}
	return (&content.Error{Kind: content.KindProcessing, Message: err.Error()}).Error()
}
