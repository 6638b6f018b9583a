// Package approvaltest provides test doubles for the approval package.
package approvaltest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/toolpipe/internal/approval"
)

// Requester records requests and answers with a fixed response.
type Requester struct {
	Response approval.Response
	Err      error

	mu       sync.Mutex
	requests []approval.Request
}

// Approving returns a Requester that approves everything.
func Approving() *Requester {
	return &Requester{Response: approval.Response{Approved: true}}
}

// Rejecting returns a Requester that rejects everything with reason.
func Rejecting(reason string) *Requester {
	return &Requester{Response: approval.Response{Reason: reason}}
}

// RequestApproval implements approval.Requester.
func (r *Requester) RequestApproval(_ context.Context, req approval.Request) (approval.Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.Response, r.Err
}

// Requests returns a snapshot of received requests.
func (r *Requester) Requests() []approval.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]approval.Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ approval.Requester = (*Requester)(nil)
