package cron

import (
	"context"
	"log/slog"
	"time"
)

// Pruner drops expired entries and reports how many went.
type Pruner interface {
	Prune() int
}

// PruneJob calls Target.Prune on schedule. It serves the trust store and
// the rate limiter, whose entries carry their own expiry.
type PruneJob struct {
	JobName      string
	Target       Pruner
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*PruneJob)(nil)

// Name implements Job.
func (j *PruneJob) Name() string { return j.JobName }

// Schedule implements Job.
func (j *PruneJob) Schedule() string { return scheduleOr(j.ScheduleExpr) }

// Run implements Job.
func (j *PruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := j.Target.Prune(); n > 0 {
		logger(j.Logger).Info("cron: pruned expired entries", "job", j.JobName, "count", n)
	}
	return nil
}

// SessionPruner evicts sessions idle for longer than maxIdle.
type SessionPruner interface {
	Prune(maxIdle time.Duration) int
}

// SessionCleanupJob removes sessions idle longer than MaxIdle. A zero
// MaxIdle disables it.
type SessionCleanupJob struct {
	Sessions     SessionPruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string { return scheduleOr(j.ScheduleExpr) }

// Run implements Job.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.MaxIdle <= 0 {
		return nil
	}
	if n := j.Sessions.Prune(j.MaxIdle); n > 0 {
		logger(j.Logger).Info("cron: pruned idle sessions", "count", n, "max_idle", j.MaxIdle)
	}
	return nil
}

// EventPruner drops buffered events older than maxAge.
type EventPruner interface {
	PruneBuffered(maxAge time.Duration) int
}

// EventBufferJob drops sub-agent events buffered for agents that never
// registered.
type EventBufferJob struct {
	Buffer       EventPruner
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string
}

var _ Job = (*EventBufferJob)(nil)

// Name implements Job.
func (j *EventBufferJob) Name() string { return "event_buffer_prune" }

// Schedule implements Job.
func (j *EventBufferJob) Schedule() string { return scheduleOr(j.ScheduleExpr) }

// Run implements Job.
func (j *EventBufferJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := j.Buffer.PruneBuffered(j.MaxAge); n > 0 {
		logger(j.Logger).Warn("cron: dropped orphaned agent events", "count", n, "max_age", j.MaxAge)
	}
	return nil
}

func scheduleOr(expr string) string {
	if expr == "" {
		return DefaultSchedule
	}
	return expr
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
