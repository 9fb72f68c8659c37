package models

import (
	"errors"
	"time"
)

type FileStatus string

const (
	StatusQueued     FileStatus = "queued"
	StatusProcessing FileStatus = "processing"
	StatusDone       FileStatus = "done"
	StatusFailed     FileStatus = "failed"
)

var (
	ErrInvalidStatus      = errors.New("invalid file status")
	ErrResultWithoutDone  = errors.New("result is set but status is not done")
	ErrErrorWithoutFailed = errors.New("error is set but status is not failed")
	ErrProcessedAtMissing = errors.New("processed_at must be set exactly when status is terminal")
)

// ParseStatus accepts only the four wire values.
func ParseStatus(s string) (FileStatus, error) {
	switch FileStatus(s) {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return FileStatus(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s FileStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Both terminal states share the top rank.
func (s FileStatus) Rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusDone, StatusFailed:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
// Processing -> Processing is legal so a redelivered task can resume a job
// whose first delivery crashed before reaching a terminal state.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusDone || next == StatusFailed
	default:
		return false
	}
}

// FileRecord is the durable record of one uploaded file and its processing job.
type FileRecord struct {
	ID          string
	Filename    string
	SizeBytes   int64
	Status      FileStatus
	UploadedAt  time.Time
	ProcessedAt *time.Time
	Result      *string
	Error       *string
}

// Validate checks the cross-field invariants of a record.
func (r *FileRecord) Validate() error {
	if r.Status.Rank() == 0 {
		return ErrInvalidStatus
	}
	if r.Result != nil && r.Status != StatusDone {
		return ErrResultWithoutDone
	}
	if r.Error != nil && r.Status != StatusFailed {
		return ErrErrorWithoutFailed
	}
	if (r.ProcessedAt != nil) != r.Status.IsTerminal() {
		return ErrProcessedAtMissing
	}
	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	if r.Result != nil {
		s := *r.Result
		c.Result = &s
	}
	if r.Error != nil {
		s := *r.Error
		c.Error = &s
	}
	return &c
}

// FileUpdate overwrites the mutable fields of a record. When ExpectedStatuses
// is non-empty the write only applies if the stored status is one of them.
type FileUpdate struct {
	Status           FileStatus
	Result           *string
	Error            *string
	ProcessedAt      *time.Time
	ExpectedStatuses []FileStatus
}

// Apply writes u onto r. It does not evaluate the guard.
func (u FileUpdate) Apply(r *FileRecord) {
	r.Status = u.Status
	r.Result = u.Result
	r.Error = u.Error
	r.ProcessedAt = u.ProcessedAt
}

// Validate checks the record u would leave behind. Apply overwrites every
// mutable field, so the stored values play no part.
func (u FileUpdate) Validate() error {
	var r FileRecord
	u.Apply(&r)
	return r.Validate()
}

// Matches reports whether the guard admits a record currently in status.
func (u FileUpdate) Matches(status FileStatus) bool {
	if len(u.ExpectedStatuses) == 0 {
		return true
	}
	for _, s := range u.ExpectedStatuses {
		if s == status {
			return true
		}
	}
	return false
}
