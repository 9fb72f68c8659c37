package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue implementing both Producer and Consumer.
// Nack puts the task back at the tail, so redelivery is observable in tests.
type MemoryQueue struct {
	ch chan *Task

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	acked  int
	nacked int
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		ch:   make(chan *Task, size),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.ch <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	select {
	case t := <-q.ch:
		return &memoryDelivery{q: q, task: t}, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// Len returns the number of tasks waiting for delivery.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Stats returns how many deliveries were acked and nacked.
func (q *MemoryQueue) Stats() (acked, nacked int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked, q.nacked
}

type memoryDelivery struct {
	q    *MemoryQueue
	task *Task
}

func (d *memoryDelivery) Task() *Task { return d.task }

func (d *memoryDelivery) Ack(context.Context) error {
	d.q.mu.Lock()
	d.q.acked++
	d.q.mu.Unlock()
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context) error {
	d.q.mu.Lock()
	d.q.nacked++
	d.q.mu.Unlock()
	return d.q.Enqueue(ctx, d.task)
}
