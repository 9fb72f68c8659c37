package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"fileIngestor/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStatusCache(client, ttl), mr
}

func record(id string, status models.FileStatus) *models.FileRecord {
	f := &models.FileRecord{
		ID:         id,
		Filename:   "a.txt",
		SizeBytes:  4,
		Status:     status,
		UploadedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if status.IsTerminal() {
		done := f.UploadedAt.Add(time.Second)
		f.ProcessedAt = &done
	}
	return f
}

func TestStatusKey(t *testing.T) {
	if got := statusKey("abc"); got != "task:status:abc" {
		t.Errorf("Expected task:status:abc, got %s", got)
	}
}

func TestNewStatusCache_DefaultTTL(t *testing.T) {
	sc := NewStatusCache(nil, 0)
	if sc.ttl != DefaultTTL {
		t.Errorf("Expected default TTL %v, got %v", DefaultTTL, sc.ttl)
	}

	sc = NewStatusCache(nil, time.Minute)
	if sc.ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", sc.ttl)
	}
}

func TestStatusCache_PublishGet(t *testing.T) {
	ctx := context.Background()
	sc, mr := newTestCache(t, time.Minute)

	result := "Text file processed: 4 bytes, lines: 2"
	f := record("f1", models.StatusDone)
	f.Result = &result
	if err := sc.Publish(ctx, f); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := sc.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusDone || got.SizeBytes != 4 || got.ProcessedAt == nil || !got.UploadedAt.Equal(f.UploadedAt) {
		t.Errorf("Unexpected cached record: %+v", got)
	}
	if got.Result != nil {
		t.Error("Result must not be cached")
	}
	if ttl := mr.TTL(statusKey("f1")); ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", ttl)
	}
}

func TestStatusCache_Miss(t *testing.T) {
	sc, _ := newTestCache(t, time.Minute)

	if _, err := sc.Get(context.Background(), "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestStatusCache_Expires(t *testing.T) {
	sc, mr := newTestCache(t, time.Minute)
	sc.Publish(context.Background(), record("f1", models.StatusQueued))

	mr.FastForward(2 * time.Minute)

	if _, err := sc.Get(context.Background(), "f1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected entry to expire, got %v", err)
	}
}

func TestStatusCache_NeverRegresses(t *testing.T) {
	ctx := context.Background()
	sc, _ := newTestCache(t, time.Minute)

	steps := []struct {
		publish models.FileStatus
		want    models.FileStatus
	}{
		{models.StatusQueued, models.StatusQueued},
		{models.StatusProcessing, models.StatusProcessing},
		{models.StatusQueued, models.StatusProcessing},
		{models.StatusDone, models.StatusDone},
		{models.StatusProcessing, models.StatusDone},
		{models.StatusQueued, models.StatusDone},
	}
	for i, step := range steps {
		if err := sc.Publish(ctx, record("f1", step.publish)); err != nil {
			t.Fatalf("step %d: Publish failed: %v", i, err)
		}
		got, err := sc.Get(ctx, "f1")
		if err != nil {
			t.Fatalf("step %d: Get failed: %v", i, err)
		}
		if got.Status != step.want {
			t.Errorf("step %d: published %s, expected cached %s, got %s", i, step.publish, step.want, got.Status)
		}
	}
}

func TestConnect_PoolSize(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), mr.Addr(), PoolSizeFor(32))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if got := client.Options().PoolSize; got != 32+poolHeadroom {
		t.Errorf("Expected pool size %d, got %d", 32+poolHeadroom, got)
	}
}
