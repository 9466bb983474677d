// Package workerpool provides a bounded worker pool with per-task retries.
// The fulfillment worker runs one task per pharmacy order on it.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrShuttingDown is returned by Submit once Stop was called.
	ErrShuttingDown = errors.New("pool is shutting down")
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("task queue is full")
)

// Task is a unit of work carrying a typed payload.
type Task[T any] struct {
	ID      string
	Payload T
	// Context bounds all attempts. SubmitWait sets it when nil.
	Context context.Context

	done chan *Result
}

// Result is the outcome of a task after all attempts.
type Result struct {
	TaskID   string
	Attempts int
	Error    error
}

// WorkerFunc processes one attempt of a task.
type WorkerFunc[T any] func(ctx context.Context, task *Task[T]) error

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// RetryDelay doubles per retry, up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Retryable decides whether a failed attempt is retried; nil retries all.
	Retryable               func(err error) bool
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for pharmacy forwarding.
func DefaultConfig() Config {
	return Config{
		Workers:                 8,
		QueueSize:               256,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		MaxRetryDelay:           5 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs tasks on a fixed number of goroutines.
type Pool[T any] struct {
	config Config
	fn     WorkerFunc[T]
	logger *zap.Logger

	queue chan *Task[T]
	wg    sync.WaitGroup

	// mu guards stopped and the closing of queue.
	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	busy      atomic.Int64
}

// New creates a pool; call Start to launch the workers.
func New[T any](cfg Config, fn WorkerFunc[T], logger *zap.Logger) (*Pool[T], error) {
	if fn == nil {
		return nil, errors.New("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool[T]{
		config: cfg,
		fn:     fn,
		logger: logger,
		queue:  make(chan *Task[T], cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the workers.
func (p *Pool[T]) Start() {
	for i := range p.config.Workers {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues task without waiting. It fails with ErrQueueFull instead of blocking.
func (p *Pool[T]) Submit(task *Task[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrShuttingDown
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait enqueues task, waiting for a free slot if needed, and returns
// its result. It gives up when ctx is done.
func (p *Pool[T]) SubmitWait(ctx context.Context, task *Task[T]) (*Result, error) {
	task.done = make(chan *Result, 1)
	if task.Context == nil {
		task.Context = ctx
	}

	if err := p.enqueue(ctx, task); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-task.done:
		return res, nil
	}
}

func (p *Pool[T]) enqueue(ctx context.Context, task *Task[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrShuttingDown
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks and waits up to GracefulShutdownTimeout for the
// queue to drain. Tasks still running afterwards see a cancelled context.
func (p *Pool[T]) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	defer p.cancel()
	select {
	case <-drained:
		p.logger.Info("worker pool stopped")
		return nil
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool did not drain in time",
			zap.Int("queued", len(p.queue)),
			zap.Int64("running", p.busy.Load()))
		return fmt.Errorf("worker pool shutdown timed out after %s", p.config.GracefulShutdownTimeout)
	}
}

func (p *Pool[T]) work(id int) {
	defer p.wg.Done()

	for task := range p.queue {
		p.busy.Add(1)
		res := p.run(task)
		p.busy.Add(-1)

		if res.Error != nil {
			p.failed.Add(1)
			p.logger.Error("task failed",
				zap.String("task_id", task.ID),
				zap.Int("worker_id", id),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Error))
		} else {
			p.completed.Add(1)
		}
		if task.done != nil {
			task.done <- res
		}
	}
}

// run attempts task until it succeeds, fails with a non-retryable error or
// exhausts MaxRetries.
func (p *Pool[T]) run(task *Task[T]) *Result {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}
	res := &Result{TaskID: task.ID}

	delay := p.config.RetryDelay
	for {
		if err := ctx.Err(); err != nil {
			res.Error = err
			return res
		}
		res.Attempts++
		err := p.fn(ctx, task)
		if err == nil {
			res.Error = nil
			return res
		}
		res.Error = err

		if p.config.Retryable != nil && !p.config.Retryable(err) {
			return res
		}
		if res.Attempts > p.config.MaxRetries {
			res.Error = fmt.Errorf("gave up after %d attempts: %w", res.Attempts, err)
			return res
		}

		p.retried.Add(1)
		p.logger.Debug("retrying task",
			zap.String("task_id", task.ID),
			zap.Int("attempt", res.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			res.Error = ctx.Err()
			return res
		case <-time.After(delay):
		}
		delay = min(delay*2, p.config.MaxRetryDelay)
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	TasksRetried   int64 `json:"tasks_retried"`
	ActiveWorkers  int64 `json:"active_workers"`
	QueueDepth     int   `json:"queue_depth"`
	QueueCapacity  int   `json:"queue_capacity"`
	Workers        int   `json:"workers"`
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		TasksSubmitted: p.submitted.Load(),
		TasksCompleted: p.completed.Load(),
		TasksFailed:    p.failed.Load(),
		TasksRetried:   p.retried.Load(),
		ActiveWorkers:  p.busy.Load(),
		QueueDepth:     len(p.queue),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy reports whether the queue is less than 90% full.
func (p *Pool[T]) IsHealthy() bool {
	return len(p.queue)*10 < p.config.QueueSize*9
}
