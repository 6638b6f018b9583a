// Package core runs the process's components in order and shuts them down
// in reverse.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds Stop when the caller's context has no
// deadline.
const DefaultShutdownTimeout = 30 * time.Second

// App manages the lifecycle of an ordered set of components.
type App struct {
	mu         sync.Mutex
	components []entry
	logger     *slog.Logger
	timeout    time.Duration
}

type entry struct {
	component Component
	started   bool
}

// NewApp creates an empty App. A nil logger uses slog.Default().
func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		logger:  logger.With("component", "core"),
		timeout: DefaultShutdownTimeout,
	}
}

// Add appends components. They start in the order they were added.
func (a *App) Add(cs ...Component) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range cs {
		a.components = append(a.components, entry{component: c})
	}
}

// Components returns component names in start order.
func (a *App) Components() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.components))
	for i, e := range a.components {
		names[i] = e.component.Name()
	}
	return names
}

// Start starts every component in order. If one fails, the components
// already started are stopped in reverse order and the error is returned.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.components {
		e := &a.components[i]
		if e.started {
			continue
		}
		if s, ok := e.component.(Starter); ok {
			a.logger.Info("starting component", "name", e.component.Name())
			if err := s.Start(ctx); err != nil {
				a.logger.Error("component start failed", "name", e.component.Name(), "error", err)
				stopErr := a.stopLocked(context.WithoutCancel(ctx))
				return errors.Join(fmt.Errorf("starting %s: %w", e.component.Name(), err), stopErr)
			}
		}
		e.started = true
	}
	a.logger.Info("all components started", "count", len(a.components))
	return nil
}

// Stop stops started components in reverse order. Every component is given
// a chance to stop; errors are joined.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked(ctx)
}

func (a *App) stopLocked(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var errs []error
	for i := len(a.components) - 1; i >= 0; i-- {
		e := &a.components[i]
		if !e.started {
			continue
		}
		e.started = false
		s, ok := e.component.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping component", "name", e.component.Name())
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("component stop error", "name", e.component.Name(), "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", e.component.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run starts every component and blocks until ctx is done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutdown requested")

	err := a.Stop(context.WithoutCancel(ctx))
	a.logger.Info("shutdown complete")
	return err
}
