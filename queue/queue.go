package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("queue closed")

// Task instructs a worker to process one uploaded file.
type Task struct {
	JobID    string `json:"job_id"`
	TraceID  string `json:"trace_id,omitempty"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

func (t *Task) Encode() ([]byte, error) {
	return json.Marshal(t)
}

func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if t.JobID == "" {
		return nil, errors.New("decode task: missing job_id")
	}
	return &t, nil
}

type Producer interface {
	Enqueue(ctx context.Context, task *Task) error
	Close() error
}

// Delivery is one received task. Exactly one of Ack or Nack must be called.
// Nack asks the broker to deliver the task again.
type Delivery interface {
	Task() *Task
	Ack(ctx context.Context) error
	Nack(ctx context.Context) error
}

// Consumer hands out deliveries. Receive blocks until a task is available,
// ctx is done, or the consumer is closed (ErrClosed).
type Consumer interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}
