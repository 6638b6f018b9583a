package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func tracked(rec *recorder, name string, startErr error) Hook {
	return Hook{
		ID: name,
		OnStart: func(context.Context) error {
			rec.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			rec.add("stop " + name)
			return nil
		},
	}
}

func quietApp() *App {
	return NewApp(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	app := quietApp()
	app.Add(tracked(rec, "store", nil), tracked(rec, "sessions", nil), tracked(rec, "gateway", nil))

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start store", "start sessions", "start gateway", "stop gateway", "stop sessions", "stop store"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}

	// A second Stop is a no-op.
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := len(rec.list()); got != len(want) {
		t.Errorf("second Stop ran %d more calls", got-len(want))
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	boom := errors.New("boom")
	app := quietApp()
	app.Add(tracked(rec, "a", nil), tracked(rec, "b", nil), tracked(rec, "c", boom), tracked(rec, "d", nil))

	err := app.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Start err = %v, want boom", err)
	}
	want := []string{"start a", "start b", "start c", "stop b", "stop a"}
	if got := rec.list(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	t.Parallel()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	app := quietApp()
	app.Add(
		Hook{ID: "a", OnStop: func(context.Context) error { return errA }},
		Closer("b", func() error { return errB }),
		Hook{ID: "plain"},
	)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := app.Stop(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Stop err = %v, want both errors", err)
	}
	if got := app.Components(); !slices.Equal(got, []string{"a", "b", "plain"}) {
		t.Errorf("Components() = %v", got)
	}
}

func TestApp_StopHasDeadline(t *testing.T) {
	t.Parallel()
	app := quietApp()
	app.timeout = 50 * time.Millisecond
	app.Add(Hook{ID: "slow", OnStop: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop err = %v, want deadline exceeded", err)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	app := quietApp()
	app.Add(tracked(rec, "gateway", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(rec.list()) == 0 {
		select {
		case <-deadline:
			t.Fatal("component never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := rec.list(); !slices.Equal(got, []string{"start gateway", "stop gateway"}) {
		t.Errorf("calls = %v", got)
	}
}
