package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const processingSuffix = ":processing"

// RedisQueue is a reliable list queue. Received payloads are moved atomically
// into a processing list and only removed from it on Ack, so a worker crash
// leaves the task in place for Recover to requeue.
type RedisQueue struct {
	client      redis.Cmdable
	pending     string
	processing  string
	pollTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewRedisQueue(client redis.Cmdable, name string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client:      client,
		pending:     name,
		processing:  name + processingSuffix,
		pollTimeout: 5 * time.Second,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	data, err := task.Encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

// Recover moves every payload stranded in the processing list back to the
// pending list. Call it once at worker startup, before Receive.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis recover: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Receive(ctx context.Context) (Delivery, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if q.isClosed() {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("redis receive: %w", err)
		}

		task, err := DecodeTask([]byte(raw))
		if err != nil {
			q.logger.Error("Dropping undecodable task", zap.String("queue", q.pending), zap.Error(err))
			if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
				q.logger.Error("Failed to remove undecodable task from processing list",
					zap.String("queue", q.processing),
					zap.Error(err),
				)
			}
			continue
		}
		return &redisDelivery{q: q, raw: raw, task: task}, nil
	}
}

func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *RedisQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

type redisDelivery struct {
	q    *RedisQueue
	raw  string
	task *Task
}

func (d *redisDelivery) Task() *Task { return d.task }

func (d *redisDelivery) Ack(ctx context.Context) error {
	return d.q.client.LRem(ctx, d.q.processing, 1, d.raw).Err()
}

func (d *redisDelivery) Nack(ctx context.Context) error {
	pipe := d.q.client.TxPipeline()
	pipe.LRem(ctx, d.q.processing, 1, d.raw)
	pipe.RPush(ctx, d.q.pending, d.raw)
	_, err := pipe.Exec(ctx)
	return err
}
