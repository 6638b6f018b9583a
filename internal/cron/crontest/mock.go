// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/toolpipe/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CountingPruner is a cron.Pruner and cron.EventPruner
// that returns fixed counts and records its arguments.
type CountingPruner struct {
	Result int
	Calls  atomic.Int32

	mu   sync.Mutex
	args []time.Duration
}

var (
	_ cron.Pruner      = (*CountingPruner)(nil)
	_ cron.EventPruner = (*CountingPruner)(nil)
)

// Prune implements cron.Pruner.
func (p *CountingPruner) Prune() int {
	p.Calls.Add(1)
	return p.Result
}

// PruneBuffered implements cron.EventPruner.
func (p *CountingPruner) PruneBuffered(maxAge time.Duration) int {
	p.Calls.Add(1)
	p.mu.Lock()
	p.args = append(p.args, maxAge)
	p.mu.Unlock()
	return p.Result
}

// Args returns the durations passed to PruneBuffered.
func (p *CountingPruner) Args() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.args...)
}
