package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fileIngestor/api/dto"
	"fileIngestor/cache"
	"fileIngestor/models"
	"fileIngestor/queue"
	"fileIngestor/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	timeLayout      = time.RFC3339
)

var ErrNotProcessed = errors.New("file not processed yet")

// NotProcessedError reports the current status of a file whose result was
// requested before it reached done.
type NotProcessedError struct {
	Status models.FileStatus
}

func (e *NotProcessedError) Error() string {
	return fmt.Sprintf("file not processed yet (status: %s)", e.Status)
}

func (e *NotProcessedError) Is(target error) bool {
	return target == ErrNotProcessed
}

// StatusCache is the read-through cache in front of the repository for
// status polling. It may be nil.
type StatusCache interface {
	Publish(ctx context.Context, file *models.FileRecord) error
	Get(ctx context.Context, id string) (*models.FileRecord, error)
}

type FileService struct {
	repo     repository.Repository
	cache    StatusCache
	producer queue.Producer
	logger   *zap.Logger
	now      func() time.Time
}

func NewFileService(repo repository.Repository, cache StatusCache, producer queue.Producer, logger *zap.Logger) *FileService {
	return &FileService{
		repo:     repo,
		cache:    cache,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Upload records a new queued job and enqueues its task. The two steps are
// not atomic: if enqueueing fails the record stays queued with no task.
func (s *FileService) Upload(ctx context.Context, traceID, filename string, content []byte) (*dto.UploadResponse, error) {
	file := &models.FileRecord{
		ID:         uuid.New().String(),
		Filename:   filename,
		SizeBytes:  int64(len(content)),
		Status:     models.StatusQueued,
		UploadedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	s.publish(ctx, file)

	task := &queue.Task{
		JobID:    file.ID,
		TraceID:  traceID,
		Filename: filename,
		Content:  content,
	}
	if err := s.producer.Enqueue(ctx, task); err != nil {
		s.logger.Error("Job recorded but not enqueued",
			zap.String("trace_id", traceID),
			zap.String("job_id", file.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	return &dto.UploadResponse{
		ID:       file.ID,
		Filename: file.Filename,
		Status:   string(file.Status),
		Message:  "File uploaded and queued for processing",
	}, nil
}

func (s *FileService) List(ctx context.Context, skip, limit int) ([]dto.FileSummary, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	files, err := s.repo.List(ctx, skip, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.FileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, dto.FileSummary{
			ID:         f.ID,
			Filename:   f.Filename,
			Status:     string(f.Status),
			UploadedAt: f.UploadedAt.UTC().Format(timeLayout),
			FileSize:   f.SizeBytes,
		})
	}
	return out, nil
}

// GetStatus serves terminal states from the cache and reads anything still
// in flight from the repository.
func (s *FileService) GetStatus(ctx context.Context, id string) (*dto.FileStatusResponse, error) {
	if s.cache != nil {
		file, err := s.cache.Get(ctx, id)
		// non-terminal snapshots may lag the repository
		if err == nil && file.Status.IsTerminal() {
			return toStatusResponse(file), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Status cache read failed", zap.String("job_id", id), zap.Error(err))
		}
	}

	file, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, file)

	return toStatusResponse(file), nil
}

// GetResult always reads the repository; results are not cached.
func (s *FileService) GetResult(ctx context.Context, id string) (*dto.FileResultResponse, error) {
	file, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.Status != models.StatusDone || file.Result == nil || file.ProcessedAt == nil {
		return nil, &NotProcessedError{Status: file.Status}
	}

	return &dto.FileResultResponse{
		ID:          file.ID,
		Filename:    file.Filename,
		Status:      string(file.Status),
		Result:      *file.Result,
		ProcessedAt: file.ProcessedAt.UTC().Format(timeLayout),
	}, nil
}

func (s *FileService) publish(ctx context.Context, file *models.FileRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Publish(ctx, file); err != nil {
		s.logger.Warn("Failed to cache file status", zap.String("job_id", file.ID), zap.Error(err))
	}
}

func toStatusResponse(file *models.FileRecord) *dto.FileStatusResponse {
	var processedAt *string
	if file.ProcessedAt != nil {
		formatted := file.ProcessedAt.UTC().Format(timeLayout)
		processedAt = &formatted
	}

	return &dto.FileStatusResponse{
		ID:          file.ID,
		Filename:    file.Filename,
		Status:      string(file.Status),
		UploadedAt:  file.UploadedAt.UTC().Format(timeLayout),
		ProcessedAt: processedAt,
		FileSize:    file.SizeBytes,
		Error:       file.Error,
	}
}
