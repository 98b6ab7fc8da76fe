package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEnqueueBackpressure(t *testing.T) {
	q := New(1, zap.NewNop())
	ctx := context.Background()

	if err := q.Enqueue(ctx, func(context.Context) {}); err != nil {
		t.Fatalf("first enqueue should not block: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(ctx, func(context.Context) {})
	}()

	select {
	case <-blocked:
		t.Fatal("second enqueue should block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	// Draining one slot releases the producer.
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("released enqueue returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("producer was not released after a slot drained")
	}

	if q.Len() != 1 {
		t.Errorf("expected 1 buffered task, got %d", q.Len())
	}
}

func TestEnqueueCancelled(t *testing.T) {
	q := New(1, zap.NewNop())
	ctx := context.Background()
	q.Enqueue(ctx, func(context.Context) {})

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Enqueue(cancelCtx, func(context.Context) {}); err == nil {
		t.Fatal("expected enqueue on a cancelled context to fail")
	}
}

func TestWorkerPanicIsolation(t *testing.T) {
	q := New(10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx, 1)

	ran := make(chan struct{})
	q.Enqueue(ctx, func(context.Context) { panic("boom") })
	q.Enqueue(ctx, func(context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker died after a panicking task")
	}
}

func TestWorkersDrainInOrderOfAvailability(t *testing.T) {
	q := New(100, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var executed atomic.Int64
	done := make(chan struct{})
	const total = 50

	q.Start(ctx, 4)
	for i := 0; i < total; i++ {
		q.Enqueue(ctx, func(context.Context) {
			if executed.Add(1) == total {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %d tasks executed, got %d", total, executed.Load())
	}
}

func TestShutdownStopsWorkers(t *testing.T) {
	q := New(10, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	q.Start(ctx, 2)
	cancel()

	finished := make(chan struct{})
	go func() {
		q.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop after cancellation")
	}
}
