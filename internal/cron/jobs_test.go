package cron_test

import (
	"context"
	"testing"
	"time"

	"github.com/flemzord/toolpipe/internal/cron"
	"github.com/flemzord/toolpipe/internal/cron/crontest"
)

type idleSessions struct {
	got   time.Duration
	calls int
}

func (s *idleSessions) Prune(maxIdle time.Duration) int {
	s.got = maxIdle
	s.calls++
	return 2
}

func TestPruneJob(t *testing.T) {
	t.Parallel()
	p := &crontest.CountingPruner{Result: 3}
	j := &cron.PruneJob{JobName: "trust_expiry", Target: p}

	if j.Name() != "trust_expiry" || j.Schedule() != cron.DefaultSchedule {
		t.Errorf("name=%q schedule=%q", j.Name(), j.Schedule())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Calls.Load() != 1 {
		t.Errorf("calls = %d", p.Calls.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Error("Run on cancelled context succeeded")
	}
	if p.Calls.Load() != 1 {
		t.Error("cancelled run still pruned")
	}
}

func TestSessionCleanupJob(t *testing.T) {
	t.Parallel()
	s := &idleSessions{}
	j := &cron.SessionCleanupJob{Sessions: s, MaxIdle: 30 * time.Minute, ScheduleExpr: "0 * * * *"}
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.got != 30*time.Minute {
		t.Errorf("maxIdle = %v", s.got)
	}

	disabled := &cron.SessionCleanupJob{Sessions: s}
	_ = disabled.Run(context.Background())
	if s.calls != 1 {
		t.Errorf("zero MaxIdle still pruned (%d calls)", s.calls)
	}
}

func TestEventBufferJob(t *testing.T) {
	t.Parallel()
	p := &crontest.CountingPruner{Result: 1}
	j := &cron.EventBufferJob{Buffer: p, MaxAge: 10 * time.Minute}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if args := p.Args(); len(args) != 1 || args[0] != 10*time.Minute {
		t.Errorf("args = %v", args)
	}
}
