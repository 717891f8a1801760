package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSweeper(interval time.Duration, sweep func(ctx context.Context) (int64, error)) *Sweeper {
	return &Sweeper{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval: interval,
		sweep:    sweep,
	}
}

func TestSweeper_RunsImmediatelyAndOnTick(t *testing.T) {
	var calls atomic.Int64
	s := newTestSweeper(20*time.Millisecond, func(ctx context.Context) (int64, error) {
		calls.Add(1)
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestSweeper_SurvivesSweepError(t *testing.T) {
	var calls atomic.Int64
	s := newTestSweeper(10*time.Millisecond, func(ctx context.Context) (int64, error) {
		calls.Add(1)
		return 0, errors.New("db gone")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected sweeper to keep running after error, calls=%d", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
