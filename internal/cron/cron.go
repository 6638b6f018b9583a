// Package cron runs periodic maintenance: expiring session trust, pruning
// rate-limit windows, evicting idle sessions and dropping stale buffered
// sub-agent events.
package cron

import (
	"context"
	"errors"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// Errors returned by Scheduler.RunNow.
var (
	ErrUnknownJob = errors.New("cron: unknown job")
	ErrJobBusy    = errors.New("cron: job already running")
)

// DefaultSchedule is used by jobs with no explicit schedule.
const DefaultSchedule = "*/5 * * * *"
