package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestQueue(workers, capacity int) *Queue {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQueue(logger, workers, capacity)
}

func TestEnqueueAndProcess(t *testing.T) {
	q := newTestQueue(2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var processed atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			if processed.Add(1) == 5 {
				close(done)
			}
			return nil
		})
		if !ok {
			t.Fatalf("Enqueue returned false for job %d", i)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for jobs to be processed")
	}

	q.Shutdown()

	stats := q.GetStats()
	if stats.TotalEnqueued != 5 {
		t.Errorf("TotalEnqueued = %d, want 5", stats.TotalEnqueued)
	}
	if stats.TotalSucceeded != 5 {
		t.Errorf("TotalSucceeded = %d, want 5", stats.TotalSucceeded)
	}
}

func TestEnqueueFullDrops(t *testing.T) {
	q := newTestQueue(1, 1)
	// 不启动 worker，通道填满后入队应失败

	if !q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("first Enqueue should succeed")
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("Enqueue should fail when queue is full")
	}

	if got := q.GetStats().TotalDropped; got != 1 {
		t.Errorf("TotalDropped = %d, want 1", got)
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := newTestQueue(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Shutdown()

	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("Enqueue should fail after Shutdown")
	}
}

func TestErrorHandler(t *testing.T) {
	q := newTestQueue(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan error, 1)
	q.SetErrorHandler(func(err error, job Job) {
		called <- err
	})
	q.Start(ctx)

	wantErr := errors.New("send failed")
	q.Enqueue(func(ctx context.Context) error { return wantErr })

	select {
	case err := <-called:
		if !errors.Is(err, wantErr) {
			t.Errorf("error handler got %v, want %v", err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}

	q.Shutdown()
	if got := q.GetStats().TotalFailed; got != 1 {
		t.Errorf("TotalFailed = %d, want 1", got)
	}
}

func TestPanicRecovery(t *testing.T) {
	q := newTestQueue(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		panic("boom")
	})

	// panic 后 worker 应继续处理后续任务
	done := make(chan struct{})
	q.Enqueue(func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}

	q.Shutdown()
	if got := q.GetStats().TotalPanics; got != 1 {
		t.Errorf("TotalPanics = %d, want 1", got)
	}
}

func TestShutdownWithTimeout(t *testing.T) {
	q := newTestQueue(1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("ShutdownWithTimeout returned error: %v", err)
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatal("second ShutdownWithTimeout should return error")
	}
}
