package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"fileIngestor/models"
	"fileIngestor/queue"
	"fileIngestor/repository"
	"fileIngestor/worker/lifecycle"
)

// historyRepo records every status successfully written for each job.
type historyRepo struct {
	*repository.MemoryRepo
	mu      sync.Mutex
	history map[string][]models.FileStatus
}

func newHistoryRepo() *historyRepo {
	return &historyRepo{MemoryRepo: repository.NewMemoryRepo(), history: map[string][]models.FileStatus{}}
}

func (r *historyRepo) Create(ctx context.Context, f *models.FileRecord) error {
	if err := r.MemoryRepo.Create(ctx, f); err != nil {
		return err
	}
	r.mu.Lock()
	r.history[f.ID] = append(r.history[f.ID], f.Status)
	r.mu.Unlock()
	return nil
}

func (r *historyRepo) Update(ctx context.Context, id string, upd models.FileUpdate) error {
	if err := r.MemoryRepo.Update(ctx, id, upd); err != nil {
		return err
	}
	r.mu.Lock()
	r.history[id] = append(r.history[id], upd.Status)
	r.mu.Unlock()
	return nil
}

type brokenRepo struct {
	repository.Repository
}

func (brokenRepo) Update(context.Context, string, models.FileUpdate) error {
	return errors.New("database is down")
}

func setup(t *testing.T, repo repository.Repository) *Processor {
	t.Helper()
	m := lifecycle.NewMachine(repo, zaptest.NewLogger(t),
		lifecycle.WithRetryPolicy(lifecycle.RetryPolicy{Attempts: 2, Base: time.Millisecond}),
	)
	return NewProcessor(m, zaptest.NewLogger(t))
}

func createJob(t *testing.T, repo repository.Repository, id, filename string, size int) {
	t.Helper()
	err := repo.Create(context.Background(), &models.FileRecord{
		ID:         id,
		Filename:   filename,
		SizeBytes:  int64(size),
		Status:     models.StatusQueued,
		UploadedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
}

func get(t *testing.T, repo repository.Repository, id string) *models.FileRecord {
	t.Helper()
	f, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	return f
}

// assertPrefixOfLifecycle checks that statuses only ever move forward.
func assertPrefixOfLifecycle(t *testing.T, statuses []models.FileStatus) {
	t.Helper()
	if len(statuses) == 0 || statuses[0] != models.StatusQueued {
		t.Fatalf("History must start with queued: %v", statuses)
	}
	for i := 1; i < len(statuses); i++ {
		if !statuses[i-1].CanTransitionTo(statuses[i]) {
			t.Fatalf("Illegal transition %s -> %s in %v", statuses[i-1], statuses[i], statuses)
		}
	}
}

func TestProcessor_TextDone(t *testing.T) {
	repo := newHistoryRepo()
	p := setup(t, repo)
	createJob(t, repo, "job-1", "a.txt", 4)

	err := p.Process(context.Background(), &queue.Task{JobID: "job-1", Filename: "a.txt", Content: []byte("a\nb\n")})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	f := get(t, repo, "job-1")
	if f.Status != models.StatusDone || f.Result == nil || !strings.Contains(*f.Result, "4 bytes, lines: 2") {
		t.Errorf("Expected done text result, got %+v", f)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Record violates invariants: %v", err)
	}
	assertPrefixOfLifecycle(t, repo.history["job-1"])
}

func TestProcessor_ValidJSONDone(t *testing.T) {
	repo := newHistoryRepo()
	p := setup(t, repo)
	createJob(t, repo, "job-2", "doc.json", 7)

	if err := p.Process(context.Background(), &queue.Task{JobID: "job-2", Filename: "doc.json", Content: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	f := get(t, repo, "job-2")
	if f.Status != models.StatusDone || f.Result == nil || !strings.Contains(*f.Result, "valid JSON") {
		t.Errorf("Expected done with valid JSON result, got %+v", f)
	}
}

func TestProcessor_InvalidJSONFailedAndAcked(t *testing.T) {
	repo := newHistoryRepo()
	p := setup(t, repo)
	createJob(t, repo, "job-3", "bad.json", 2)

	err := p.Process(context.Background(), &queue.Task{JobID: "job-3", Filename: "bad.json", Content: []byte(`{x`)})
	if err != nil {
		t.Fatalf("Content failure must not be returned to the queue, got %v", err)
	}

	f := get(t, repo, "job-3")
	if f.Status != models.StatusFailed || f.Error == nil || !strings.Contains(*f.Error, "parse") {
		t.Errorf("Expected failed with parse error, got %+v", f)
	}
	if f.Result != nil || f.ProcessedAt == nil {
		t.Errorf("Failed record must have processed_at and no result: %+v", f)
	}
	assertPrefixOfLifecycle(t, repo.history["job-3"])
}

func TestProcessor_MissingRecordIsDropped(t *testing.T) {
	p := setup(t, repository.NewMemoryRepo())

	err := p.Process(context.Background(), &queue.Task{JobID: "ghost", Filename: "a.txt"})
	if err != nil {
		t.Errorf("Expected task for missing record to be acked, got %v", err)
	}
}

func TestProcessor_StoreErrorRequestsRedelivery(t *testing.T) {
	repo := brokenRepo{Repository: repository.NewMemoryRepo()}
	p := setup(t, repo)
	createJob(t, repo, "job-4", "a.txt", 1)

	if err := p.Process(context.Background(), &queue.Task{JobID: "job-4", Filename: "a.txt", Content: []byte("x")}); err == nil {
		t.Error("Expected store error to be returned")
	}
}

func TestProcessor_SequentialRedelivery(t *testing.T) {
	repo := newHistoryRepo()
	p := setup(t, repo)
	createJob(t, repo, "job-5", "data.csv", 8)
	task := &queue.Task{JobID: "job-5", Filename: "data.csv", Content: []byte("a,b\n1,2\n")}

	for i := 0; i < 2; i++ {
		if err := p.Process(context.Background(), task); err != nil {
			t.Fatalf("Delivery %d failed: %v", i+1, err)
		}
	}

	f := get(t, repo, "job-5")
	if f.Status != models.StatusDone || *f.Result != "CSV file processed: 3 rows, 2 columns, 8 bytes" {
		t.Errorf("Unexpected record after redelivery: %+v", f)
	}
	history := repo.history["job-5"]
	assertPrefixOfLifecycle(t, history)
	if len(history) != 3 {
		t.Errorf("Expected second delivery to write nothing, history %v", history)
	}
}

func TestProcessor_ConcurrentDuplicateDelivery(t *testing.T) {
	repo := newHistoryRepo()
	p := setup(t, repo)
	createJob(t, repo, "job-6", "a.txt", 4)
	task := &queue.Task{JobID: "job-6", Filename: "a.txt", Content: []byte("a\nb\n")}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Process(context.Background(), task); err != nil {
				t.Errorf("Duplicate delivery failed: %v", err)
			}
		}()
	}
	wg.Wait()

	f := get(t, repo, "job-6")
	if f.Status != models.StatusDone || *f.Result != "Text file processed: 4 bytes, lines: 2" {
		t.Errorf("Unexpected record: %+v", f)
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Record violates invariants: %v", err)
	}
	assertPrefixOfLifecycle(t, repo.history["job-6"])
}

func TestProcessor_UnclassifiedFailure(t *testing.T) {
	repo := repository.NewMemoryRepo()
	p := setup(t, repo)
	p.process = func(string, []byte) (string, error) { return "", errors.New("disk on fire") }
	createJob(t, repo, "job-7", "a.bin", 0)

	if err := p.Process(context.Background(), &queue.Task{JobID: "job-7", Filename: "a.bin"}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	f := get(t, repo, "job-7")
	if f.Status != models.StatusFailed || !strings.Contains(*f.Error, "disk on fire") {
		t.Errorf("Expected failed with message, got %+v", f)
	}
}
