package repository

import (
	"context"
	"errors"
	"fmt"

	"fileIngestor/models"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileAlreadyExists = errors.New("file already exists")
	ErrStatusConflict    = errors.New("file status does not match expected status")
	ErrInvalidRecord     = errors.New("invalid file record")
)

// Repository is the record store for uploaded files. All operations address
// a single record; there are no multi-record transactions.
type Repository interface {
	Create(ctx context.Context, file *models.FileRecord) error
	Get(ctx context.Context, id string) (*models.FileRecord, error)
	List(ctx context.Context, offset, limit int) ([]*models.FileRecord, error)
	// Update returns ErrFileNotFound for an unknown id and ErrStatusConflict
	// when the update's status guard does not admit the stored status.
	// Create and Update return ErrInvalidRecord for writes that would break
	// the record invariants.
	Update(ctx context.Context, id string, upd models.FileUpdate) error
	Close() error
}

func statusStrings(statuses []models.FileStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func validateRecord(file *models.FileRecord) error {
	if err := file.Validate(); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidRecord, file.ID, err)
	}
	return nil
}

func validateUpdate(id string, upd models.FileUpdate) error {
	if err := upd.Validate(); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidRecord, id, err)
	}
	return nil
}
