package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one scheduled run of a sync task
type Job struct {
	ID          uuid.UUID
	Task        string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job for task
func NewJob(task string, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Task:       task,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff and
// returns the delay
func (j *Job) ScheduleRetry(baseDelay time.Duration) time.Duration {
	delay := baseDelay << j.RetryCount
	j.RetryCount++
	j.Status = JobStatusPending
	next := time.Now().Add(delay)
	j.NextRetryAt = &next
	j.Error = ""
	return delay
}

// Retryable reports whether a failed job may run again. A busy task is
// skipped until the next trigger.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var conflict *integration.RunConflictError
	if errors.As(err, &conflict) {
		return false
	}
	return !errors.Is(err, integration.ErrUnknownTask) && !errors.Is(err, context.Canceled)
}

// JobExecutor runs one job
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// ExecutorFunc adapts a function to JobExecutor
type ExecutorFunc func(ctx context.Context, job *Job) error

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Config holds scheduler configuration
type Config struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 2,
		QueueSize:         50,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     2,
		RetryDelay:        time.Minute,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("%w: max concurrent jobs must be at least 1", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue size must be at least 1", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler runs sync jobs on a bounded worker pool
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	timers    map[uuid.UUID]*time.Timer
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		timers:   make(map[uuid.UUID]*time.Timer),
	}, nil
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Submit queues a job for task
func (s *Scheduler) Submit(task string) (*Job, error) {
	job := NewJob(task, s.config.RetryAttempts)
	return job, s.SubmitJob(job)
}

// SubmitJob queues job without blocking
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("task", job.Task),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	s.logger.Info("Processing sync job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("task", job.Task),
		zap.Int("attempt", job.RetryCount+1),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.runSafely(jobCtx, job)
	if err == nil {
		job.Complete()
		s.logger.Info("Sync job completed",
			zap.String("job_id", job.ID.String()),
			zap.String("task", job.Task),
		)
		return
	}

	job.Fail(err.Error())
	if !Retryable(err) {
		s.logger.Warn("Sync job skipped",
			zap.String("job_id", job.ID.String()),
			zap.String("task", job.Task),
			zap.Error(err),
		)
		return
	}

	s.logger.Error("Sync job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("task", job.Task),
		zap.Error(err),
	)
	if job.ShouldRetry() {
		delay := job.ScheduleRetry(s.config.RetryDelay)
		s.retryAfter(job, delay)
	}
}

func (s *Scheduler) runSafely(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.executor.Execute(ctx, job)
}

func (s *Scheduler) retryAfter(job *Job, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}

	s.logger.Info("Sync job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Duration("delay", delay),
	)
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, job.ID)
		s.mu.Unlock()
		if err := s.SubmitJob(job); err != nil {
			s.logger.Warn("Failed to re-queue sync job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
}
