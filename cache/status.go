package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fileIngestor/models"
)

const (
	statusKeyPrefix = "task:status:"
	DefaultTTL      = 10 * time.Minute
)

var ErrCacheMiss = errors.New("status not cached")

// setIfNotBehind refuses to replace a snapshot with one from an earlier
// lifecycle stage, so racing writers cannot make a cached status regress.
var setIfNotBehind = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rank')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rank', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// snapshot is the cached status view of a record. Results can be large and
// are always read from the repository.
type snapshot struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	SizeBytes   int64      `json:"file_size"`
	Status      string     `json:"status"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

type StatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStatusCache(client redis.Cmdable, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(id string) string {
	return fmt.Sprintf("%s%s", statusKeyPrefix, id)
}

// Publish stores the status view of file unless a later stage is already cached.
func (sc *StatusCache) Publish(ctx context.Context, file *models.FileRecord) error {
	data, err := json.Marshal(snapshot{
		ID:          file.ID,
		Filename:    file.Filename,
		SizeBytes:   file.SizeBytes,
		Status:      string(file.Status),
		UploadedAt:  file.UploadedAt,
		ProcessedAt: file.ProcessedAt,
		Error:       file.Error,
	})
	if err != nil {
		return err
	}

	return setIfNotBehind.Run(ctx, sc.client,
		[]string{statusKey(file.ID)},
		strconv.Itoa(file.Status.Rank()),
		data,
		sc.ttl.Milliseconds(),
	).Err()
}

// Get returns the cached status view. The returned record never carries a Result.
func (sc *StatusCache) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	data, err := sc.client.HGet(ctx, statusKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var s snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	status, err := models.ParseStatus(s.Status)
	if err != nil {
		return nil, err
	}

	return &models.FileRecord{
		ID:          s.ID,
		Filename:    s.Filename,
		SizeBytes:   s.SizeBytes,
		Status:      status,
		UploadedAt:  s.UploadedAt,
		ProcessedAt: s.ProcessedAt,
		Error:       s.Error,
	}, nil
}
