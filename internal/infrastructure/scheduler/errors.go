package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a sync is submitted to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("sync scheduler is not running")

	// ErrJobQueueFull is returned when no queue slot is free for a sync
	ErrJobQueueFull = errors.New("sync job queue is full")

	// ErrInvalidConfig is returned by NewScheduler and NewIntervalTrigger
	// for an unusable worker pool or trigger configuration
	ErrInvalidConfig = errors.New("invalid sync scheduler configuration")
)
