package callback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRunsTasks(t *testing.T) {
	var mu sync.Mutex
	results := map[string]error{}
	q := NewQueue(QueueOptions{Workers: 2, Size: 8, OnDone: func(name string, err error) {
		mu.Lock()
		results[name] = err
		mu.Unlock()
	}})

	if err := q.Submit("ok", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := q.Submit("fail", func(ctx context.Context) error { return errors.New("boom") }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := q.Submit("panic", func(ctx context.Context) error { panic("bad") }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %v", results)
	}
	if results["ok"] != nil || results["fail"] == nil || results["panic"] == nil {
		t.Fatalf("unexpected results: %v", results)
	}
}

func TestQueueSubmitDoesNotBlockWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(QueueOptions{Workers: 1, Size: 1})
	defer func() {
		close(release)
		_ = q.Close(context.Background())
	}()

	blocker := func(ctx context.Context) error {
		<-release
		return nil
	}
	_ = q.Submit("running", blocker)

	if err := q.Submit("queued", blocker); err != nil {
		t.Fatalf("one task should wait for the worker, got %v", err)
	}
	if err := q.Submit("overflow", blocker); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	q := NewQueue(QueueOptions{Workers: 2, Size: 4})

	task := func(ctx context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	}
	for i := 0; i < 6; i++ {
		if err := q.Submit("task", task); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := q.Submit("task", task); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull past workers plus size, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", got)
	}
}

func TestQueueCloseTimeoutSkipsWaitingTasks(t *testing.T) {
	var mu sync.Mutex
	results := map[string]error{}
	q := NewQueue(QueueOptions{Workers: 1, Size: 1, OnDone: func(name string, err error) {
		mu.Lock()
		results[name] = err
		mu.Unlock()
	}})
	_ = q.Submit("running", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_ = q.Submit("waiting", func(ctx context.Context) error { return ctx.Err() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline from close, got %v", err)
	}
	if results["running"] == nil || results["waiting"] == nil {
		t.Fatalf("both tasks should report cancellation: %v", results)
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(QueueOptions{})
	_ = q.Close(context.Background())
	if err := q.Submit("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueTaskTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue(QueueOptions{Workers: 1, TaskTimeout: 10 * time.Millisecond})
	_ = q.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task was not bounded by its timeout")
	}
	_ = q.Close(context.Background())
}
