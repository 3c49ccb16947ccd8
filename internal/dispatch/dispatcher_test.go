package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := New(Config{QueueSize: 4, Workers: 2}, testLogger())

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		if err := d.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 8 {
		t.Fatalf("expected 8 jobs got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	d := New(Config{QueueSize: 4, Workers: 1}, testLogger())

	release := make(chan struct{})
	var ran int32
	_ = d.Submit(context.Background(), func(context.Context) {
		<-release
		atomic.AddInt32(&ran, 1)
	})
	for i := 0; i < 3; i++ {
		_ = d.Submit(context.Background(), func(context.Context) { atomic.AddInt32(&ran, 1) })
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 4 {
		t.Fatalf("expected queued jobs drained, got %d", got)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	d := New(Config{}, testLogger())
	_ = d.Shutdown(context.Background())

	if err := d.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}
}

func TestJobContextSurvivesCallerCancel(t *testing.T) {
	d := New(Config{Workers: 1}, testLogger())
	defer d.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	result := make(chan error, 1)
	_ = d.Submit(ctx, func(jobCtx context.Context) {
		<-started
		result <- jobCtx.Err()
	})
	cancel()
	close(started)

	if err := <-result; err != nil {
		t.Fatalf("expected job context to outlive caller, got %v", err)
	}
}

func TestShutdownTimeoutCancelsRunningJobs(t *testing.T) {
	d := New(Config{Workers: 1}, testLogger())

	cancelled := make(chan struct{})
	_ = d.Submit(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected running job to be cancelled")
	}
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	d := New(Config{Workers: 1}, testLogger())
	defer d.Shutdown(context.Background())

	_ = d.Submit(context.Background(), func(context.Context) { panic("boom") })

	done := make(chan struct{})
	_ = d.Submit(context.Background(), func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected worker to survive panic")
	}
}
