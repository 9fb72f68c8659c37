package repository

import (
	"context"
	"sort"
	"sync"

	"fileIngestor/models"
)

// MemoryRepo keeps records in process memory. Safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	files map[string]*models.FileRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{files: make(map[string]*models.FileRecord)}
}

func (r *MemoryRepo) Create(_ context.Context, file *models.FileRecord) error {
	if err := validateRecord(file); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[file.ID]; ok {
		return ErrFileAlreadyExists
	}
	r.files[file.ID] = file.Clone()
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*models.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	return f.Clone(), nil
}

func (r *MemoryRepo) List(_ context.Context, offset, limit int) ([]*models.FileRecord, error) {
	r.mu.RLock()
	all := make([]*models.FileRecord, 0, len(r.files))
	for _, f := range r.files {
		all = append(all, f.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UploadedAt.Before(all[j].UploadedAt)
	})

	if offset >= len(all) {
		return []*models.FileRecord{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) Update(_ context.Context, id string, upd models.FileUpdate) error {
	if err := validateUpdate(id, upd); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if !upd.Matches(f.Status) {
		return ErrStatusConflict
	}

	next := f.Clone()
	upd.Apply(next)
	r.files[id] = next.Clone()
	return nil
}

func (r *MemoryRepo) Close() error { return nil }
