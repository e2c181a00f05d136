// Package workerpool runs fire-and-forget tasks on a bounded set of workers
// with a bounded queue and per-task retries.
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
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("task queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("pool is stopped")
)

// Task is a unit of work.
type Task struct {
	ID      string
	Payload interface{}
}

// WorkerFunc processes one task. A non-nil error triggers a retry.
type WorkerFunc func(ctx context.Context, task *Task) error

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// MaxRetries is the number of extra attempts after a failure
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
	// TaskTimeout bounds each attempt; zero means no bound
	TaskTimeout time.Duration
}

// DefaultConfig suits background side effects such as audit delivery.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   1024,
		MaxRetries:  2,
		RetryDelay:  100 * time.Millisecond,
		TaskTimeout: 10 * time.Second,
	}
}

// Pool is a fixed set of workers draining a task queue.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	mu      sync.RWMutex
	stopped bool
	tasks   chan *Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	start   sync.Once

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	tasksRetried   int64
	tasksRejected  int64
}

// New creates a pool. Call Start before submitting.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
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
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		tasks:      make(chan *Task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.start.Do(func() {
		for i := 0; i < p.config.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("worker pool started",
			zap.Int("workers", p.config.Workers),
			zap.Int("queue_size", p.config.QueueSize))
	})
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		atomic.AddInt64(&p.tasksRejected, 1)
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.tasksRejected, 1)
		return ErrQueueFull
	}
}

// Stop rejects new tasks and waits for queued ones to drain. If ctx expires
// first, in-flight attempts are cancelled and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.Start()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("worker pool stop timed out; pending tasks abandoned")
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.process(id, task)
	}
}

func (p *Pool) process(workerID int, task *Task) {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&p.tasksRetried, 1)
			select {
			case <-p.ctx.Done():
				lastErr = p.ctx.Err()
				goto failed
			case <-time.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if lastErr = p.run(task); lastErr == nil {
			atomic.AddInt64(&p.tasksCompleted, 1)
			return
		}
		p.logger.Debug("task attempt failed",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}

failed:
	atomic.AddInt64(&p.tasksFailed, 1)
	p.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.Int("worker_id", workerID),
		zap.Error(lastErr))
}

func (p *Pool) run(task *Task) error {
	ctx := p.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}
	return p.workerFunc(ctx, task)
}

// Stats is a snapshot of pool counters.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksRetried   int64
	TasksRejected  int64
	QueueDepth     int
	QueueCapacity  int
	Workers        int
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		TasksRetried:   atomic.LoadInt64(&p.tasksRetried),
		TasksRejected:  atomic.LoadInt64(&p.tasksRejected),
		QueueDepth:     len(p.tasks),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}
