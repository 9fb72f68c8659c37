package queue

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecodeTask_BinaryContent(t *testing.T) {
	in := &Task{JobID: "job-1", Filename: "a.bin", Content: []byte{0x00, 0xff, '\n'}}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("DecodeTask failed: %v", err)
	}
	if !bytes.Equal(out.Content, in.Content) {
		t.Errorf("Expected content %v, got %v", in.Content, out.Content)
	}
}

func TestDecodeTask_Rejects(t *testing.T) {
	if _, err := DecodeTask([]byte("not json")); err == nil {
		t.Error("Expected error for malformed payload")
	}
	if _, err := DecodeTask([]byte(`{"filename":"a.txt"}`)); err == nil {
		t.Error("Expected error for missing job_id")
	}
}

func TestMemoryQueue_NackRedelivers(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, &Task{JobID: "job-1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	d, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := d.Nack(ctx); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	d, err = q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after nack failed: %v", err)
	}
	if d.Task().JobID != "job-1" {
		t.Errorf("Expected redelivery of job-1, got %s", d.Task().JobID)
	}
	d.Ack(ctx)

	acked, nacked := q.Stats()
	if acked != 1 || nacked != 1 {
		t.Errorf("Expected 1 ack and 1 nack, got %d and %d", acked, nacked)
	}
}

func TestMemoryQueue_ReceiveAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	q.Close()

	if _, err := q.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), &Task{JobID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on enqueue, got %v", err)
	}
}

func TestKafkaDelivery_FirstOutcomeWins(t *testing.T) {
	d := &kafkaDelivery{task: &Task{JobID: "job-1"}, outcome: make(chan bool, 1)}

	d.Ack(context.Background())
	d.Nack(context.Background())

	if acked := <-d.outcome; !acked {
		t.Error("Expected ack to be the recorded outcome")
	}
}
