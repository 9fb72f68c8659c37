// Package lifecycle owns the status transitions of a file processing job:
// queued -> processing -> done | failed.
//
// Every transition is a read of the record followed by a conditional write
// that only applies while the stored status still admits the transition.
// Duplicate deliveries of the same task therefore race safely: the first
// terminal write wins and later ones report ErrAlreadyTerminal.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fileIngestor/models"
	"fileIngestor/repository"
)

var (
	ErrJobNotFound       = errors.New("job record not found")
	ErrAlreadyTerminal   = errors.New("job already reached a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StatusPublisher receives the record after every persisted transition.
type StatusPublisher interface {
	Publish(ctx context.Context, file *models.FileRecord) error
}

type Machine struct {
	repo      repository.Repository
	publisher StatusPublisher
	now       func() time.Time
	retry     RetryPolicy
	logger    *zap.Logger
}

type Option func(*Machine)

func WithPublisher(p StatusPublisher) Option {
	return func(m *Machine) { m.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Machine) { m.retry = p }
}

func NewMachine(repo repository.Repository, logger *zap.Logger, opts ...Option) *Machine {
	m := &Machine{
		repo:   repo,
		now:    time.Now,
		retry:  DefaultRetryPolicy(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BeginProcessing moves a queued job to processing. A job already in
// processing is accepted again so a redelivered task can pick it up.
func (m *Machine) BeginProcessing(ctx context.Context, id string) error {
	file, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if file.Status.IsTerminal() {
		return fmt.Errorf("begin processing %s (%s): %w", id, file.Status, ErrAlreadyTerminal)
	}

	return m.write(ctx, file, models.FileUpdate{
		Status:           models.StatusProcessing,
		ExpectedStatuses: []models.FileStatus{models.StatusQueued, models.StatusProcessing},
	})
}

func (m *Machine) CompleteSuccess(ctx context.Context, id, result string) error {
	return m.complete(ctx, id, models.StatusDone, func(upd *models.FileUpdate) {
		upd.Result = &result
	})
}

func (m *Machine) CompleteFailure(ctx context.Context, id, errorMessage string) error {
	return m.complete(ctx, id, models.StatusFailed, func(upd *models.FileUpdate) {
		upd.Error = &errorMessage
	})
}

func (m *Machine) complete(ctx context.Context, id string, status models.FileStatus, set func(*models.FileUpdate)) error {
	file, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if file.Status.IsTerminal() {
		return fmt.Errorf("complete %s as %s (already %s): %w", id, status, file.Status, ErrAlreadyTerminal)
	}
	if !file.Status.CanTransitionTo(status) {
		return fmt.Errorf("complete %s: %s -> %s: %w", id, file.Status, status, ErrInvalidTransition)
	}

	now := m.now().UTC()
	upd := models.FileUpdate{
		Status:           status,
		ProcessedAt:      &now,
		ExpectedStatuses: []models.FileStatus{models.StatusProcessing},
	}
	set(&upd)

	return m.write(ctx, file, upd)
}

func (m *Machine) load(ctx context.Context, id string) (*models.FileRecord, error) {
	var file *models.FileRecord
	err := m.retry.do(ctx, func() error {
		var err error
		file, err = m.repo.Get(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, fmt.Errorf("load %s: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return file, nil
}

func (m *Machine) write(ctx context.Context, file *models.FileRecord, upd models.FileUpdate) error {
	err := m.retry.do(ctx, func() error {
		return m.repo.Update(ctx, file.ID, upd)
	})
	switch {
	case errors.Is(err, repository.ErrFileNotFound):
		return fmt.Errorf("update %s: %w", file.ID, ErrJobNotFound)
	case errors.Is(err, repository.ErrStatusConflict):
		return fmt.Errorf("update %s to %s: %w", file.ID, upd.Status, ErrAlreadyTerminal)
	case err != nil:
		return fmt.Errorf("update %s to %s: %w", file.ID, upd.Status, err)
	}

	upd.Apply(file)
	m.logger.Debug("Job status updated",
		zap.String("job_id", file.ID),
		zap.String("status", string(file.Status)),
	)

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, file); err != nil {
			m.logger.Warn("Failed to publish job status",
				zap.String("job_id", file.ID),
				zap.String("status", string(file.Status)),
				zap.Error(err),
			)
		}
	}
	return nil
}
