package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Submitter queues a run of a task
type Submitter interface {
	Submit(task string) (*Job, error)
}

// Sweeper fails runs left processing past their TTL
type Sweeper interface {
	ReconcileStale(ctx context.Context) (int, error)
}

// TriggerConfig holds the per-task run intervals
type TriggerConfig struct {
	// Intervals maps task name to run interval. Zero disables the task.
	Intervals map[string]time.Duration
	// SweepInterval is how often stale runs are reconciled. Zero disables it.
	SweepInterval time.Duration
	// CheckInterval is how often due tasks are checked
	CheckInterval time.Duration
}

// Validate checks the configuration
func (c TriggerConfig) Validate() error {
	for task, interval := range c.Intervals {
		if task == "" {
			return fmt.Errorf("%w: interval without task name", ErrInvalidConfig)
		}
		if interval < 0 {
			return fmt.Errorf("%w: negative interval for task %s", ErrInvalidConfig, task)
		}
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep interval cannot be negative", ErrInvalidConfig)
	}
	if c.CheckInterval < 0 {
		return fmt.Errorf("%w: check interval cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// IntervalTrigger submits tasks when their interval elapses and runs the
// stale sweep on its own interval
type IntervalTrigger struct {
	config    TriggerConfig
	submitter Submitter
	sweeper   Sweeper
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastRun   map[string]time.Time
	lastSweep time.Time
}

// NewIntervalTrigger creates a trigger. sweeper may be nil.
func NewIntervalTrigger(config TriggerConfig, submitter Submitter, sweeper Sweeper, logger *zap.Logger) (*IntervalTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = time.Minute
	}
	return &IntervalTrigger{
		config:    config,
		submitter: submitter,
		sweeper:   sweeper,
		logger:    logger,
		now:       time.Now,
		lastRun:   make(map[string]time.Time),
	}, nil
}

// Start starts the trigger loop. The first runs are due one interval after
// start.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	started := t.now()
	for task := range t.config.Intervals {
		t.lastRun[task] = started
	}
	t.lastSweep = started
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Strings("tasks", t.enabledTasks()),
		zap.Duration("sweep_interval", t.config.SweepInterval),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick submits every due task and runs the sweep when due
func (t *IntervalTrigger) Tick(ctx context.Context) {
	now := t.now()

	for _, task := range t.dueTasks(now) {
		if _, err := t.submitter.Submit(task); err != nil {
			t.logger.Warn("Failed to submit scheduled sync",
				zap.String("task", task),
				zap.Error(err),
			)
		}
	}

	if t.sweepDue(now) {
		n, err := t.sweeper.ReconcileStale(ctx)
		if err != nil {
			t.logger.Error("Stale run sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			t.logger.Warn("Stale runs reconciled", zap.Int("count", n))
		}
	}
}

func (t *IntervalTrigger) dueTasks(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var due []string
	for task, interval := range t.config.Intervals {
		if interval <= 0 {
			continue
		}
		if now.Sub(t.lastRun[task]) >= interval {
			t.lastRun[task] = now
			due = append(due, task)
		}
	}
	sort.Strings(due)
	return due
}

func (t *IntervalTrigger) sweepDue(now time.Time) bool {
	if t.sweeper == nil || t.config.SweepInterval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastSweep) < t.config.SweepInterval {
		return false
	}
	t.lastSweep = now
	return true
}

func (t *IntervalTrigger) enabledTasks() []string {
	tasks := make([]string, 0, len(t.config.Intervals))
	for task, interval := range t.config.Intervals {
		if interval > 0 {
			tasks = append(tasks, task)
		}
	}
	sort.Strings(tasks)
	return tasks
}
