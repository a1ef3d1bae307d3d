package callback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("callback queue is full")

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("callback queue is closed")

// Queue runs tasks in the background. At most Workers tasks run at once and
// at most Size more wait for a worker; Submit never blocks.
type Queue struct {
	group   *errgroup.Group
	workers *semaphore.Weighted
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
	onDone  func(name string, err error)
	ctx     context.Context
	cancel  context.CancelFunc
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Workers int
	Size    int
	// TaskTimeout bounds each task. Zero means no bound.
	TaskTimeout time.Duration
	Logger      *slog.Logger
	// OnDone observes every finished task; err is nil on success.
	OnDone func(name string, err error)
}

// NewQueue returns a Queue ready to accept tasks.
func NewQueue(opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	group := new(errgroup.Group)
	group.SetLimit(opts.Workers + opts.Size)

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		group:   group,
		workers: semaphore.NewWeighted(int64(opts.Workers)),
		timeout: opts.TaskTimeout,
		logger:  opts.Logger,
		onDone:  opts.OnDone,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit schedules task without waiting for it to run.
func (q *Queue) Submit(name string, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	run := Wrap(q.logger, name, task, q.onDone)
	if !q.group.TryGo(func() error {
		q.execute(name, run)
		return nil
	}) {
		q.logger.Warn("callback queue full, dropping task", "name", name)
		return ErrQueueFull
	}
	return nil
}

func (q *Queue) execute(name string, run func(ctx context.Context)) {
	if err := q.workers.Acquire(q.ctx, 1); err != nil {
		q.logger.Warn("callback queue stopped before task ran", "name", name)
		if q.onDone != nil {
			q.onDone(name, err)
		}
		return
	}
	defer q.workers.Release(1)

	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	run(ctx)
}

// Close stops accepting tasks and waits for queued ones to finish, or for
// ctx to end, in which case running tasks are cancelled and waiting ones
// are skipped.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
