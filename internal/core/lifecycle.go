package core

import "context"

// Component is a named part of the running process.
type Component interface {
	Name() string
}

// Starter is implemented by components that start background work
// (listeners, schedulers). Start must not block.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that release resources. Stop is
// called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Hook adapts plain functions to a Component. Either function may be nil.
type Hook struct {
	ID      string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Name implements Component.
func (h Hook) Name() string { return h.ID }

// Start implements Starter.
func (h Hook) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop implements Stopper.
func (h Hook) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

// Closer wraps a resource whose only lifecycle is Close.
func Closer(name string, close func() error) Hook {
	return Hook{ID: name, OnStop: func(context.Context) error { return close() }}
}

var (
	_ Starter = Hook{}
	_ Stopper = Hook{}
)
