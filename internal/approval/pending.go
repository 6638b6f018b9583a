package approval

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the state of a PendingApproval.
type State int

// State values.
const (
	StateIdle    State = iota // no request in flight
	StatePending              // waiting for the requester
	StateTimeout              // last request timed out and was denied
)

// TimeoutReason is the rejection reason recorded when a request times out.
const TimeoutReason = "Approval timed out."

// PendingApproval runs one approval request at a time against a Requester.
// A timeout denies the call; it is never treated as consent.
type PendingApproval struct {
	mu    sync.Mutex
	state State
}

// NewPendingApproval creates an idle PendingApproval.
func NewPendingApproval() *PendingApproval {
	return &PendingApproval{}
}

// State returns the current state.
func (p *PendingApproval) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Await sends req to requester and waits for the decision. A timeout of zero
// waits until ctx is done.
func (p *PendingApproval) Await(
	ctx context.Context,
	requester Requester,
	req Request,
	timeout time.Duration,
) (Response, error) {
	if requester == nil {
		return Response{}, ErrNoRequester
	}

	p.mu.Lock()
	if p.state == StatePending {
		p.mu.Unlock()
		return Response{}, ErrApprovalBusy
	}
	p.state = StatePending
	p.mu.Unlock()

	final := StateIdle
	defer func() {
		p.mu.Lock()
		p.state = final
		p.mu.Unlock()
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		resp Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := requester.RequestApproval(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return o.resp, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			final = StateTimeout
			return Response{Reason: TimeoutReason}, ErrApprovalTimeout
		}
		return Response{}, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			final = StateTimeout
			return Response{Reason: TimeoutReason}, ErrApprovalTimeout
		}
		return Response{}, ctx.Err()
	}
}
