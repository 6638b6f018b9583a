package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/flemzord/toolpipe/internal/core"
	"github.com/flemzord/toolpipe/internal/gateway"
)

// NewGateway builds the HTTP gateway over rt and registers it, together
// with the maintenance scheduler, on rt.App.
func NewGateway(rt *Runtime) (*gateway.Gateway, error) {
	deps := gateway.Deps{
		Sessions:    rt.Sessions,
		Classifier:  rt.Classifier,
		Hub:         rt.Hub,
		Health:      rt.Health,
		Audit:       rt.Audit,
		RateLimiter: rt.RateLimiter,
		Metrics:     rt.Metrics,
		Logger:      rt.Logger,
	}
	// Leave the interface nil when metrics are off so /metrics is not mounted.
	if rt.Registry != nil {
		deps.Gatherer = rt.Registry
	}
	gw, err := gateway.New(rt.Config.Gateway, deps)
	if err != nil {
		return nil, err
	}
	rt.App.Add(
		core.Hook{
			ID:      "scheduler",
			OnStart: func(context.Context) error { return rt.Scheduler.Start() },
			OnStop:  rt.Scheduler.Stop,
		},
		gw,
	)
	return gw, nil
}

// Serve runs the gateway and scheduler until SIGINT or SIGTERM, then stops
// every component in reverse order.
func Serve(ctx context.Context, rt *Runtime) error {
	if _, err := NewGateway(rt); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rt.App.Run(ctx)
}
