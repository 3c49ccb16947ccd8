// Package dispatch runs remote writes off the caller's goroutine so local
// mutations return immediately.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned when submitting to a dispatcher that is shutting down.
var ErrClosed = errors.New("dispatch: dispatcher closed")

// Job is a unit of background work.
type Job func(ctx context.Context)

// Config controls the concurrency characteristics of the dispatcher.
type Config struct {
	QueueSize int
	Workers   int
}

// Dispatcher is a bounded queue drained by a fixed pool of workers.
type Dispatcher struct {
	logger *slog.Logger

	jobs     chan queued
	stopping chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

type queued struct {
	ctx context.Context
	job Job
}

// New starts the worker pool.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		logger:   logger,
		jobs:     make(chan queued, cfg.QueueSize),
		stopping: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Submit queues job. The job's context carries the values of ctx but is not
// cancelled with it; it is cancelled only if Shutdown gives up waiting.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("dispatch: nil job")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopping:
		return ErrClosed
	case d.jobs <- queued{ctx: context.WithoutCancel(ctx), job: job}:
		return nil
	}
}

// Shutdown stops accepting work and waits for queued jobs to finish. If ctx
// ends first, running jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		close(d.stopping)
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	case <-done:
		d.cancel()
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for q := range d.jobs {
		d.run(q)
	}
}

func (d *Dispatcher) run(q queued) {
	ctx, cancel := context.WithCancel(q.ctx)
	stop := context.AfterFunc(d.ctx, cancel)
	defer func() {
		stop()
		cancel()
		if rec := recover(); rec != nil {
			d.logger.Error("dispatched job panicked", "panic", rec)
		}
	}()

	q.job(ctx)
}

// Inline runs jobs synchronously on the submitting goroutine.
type Inline struct{}

func (Inline) Submit(ctx context.Context, job Job) error {
	job(context.WithoutCancel(ctx))
	return nil
}
