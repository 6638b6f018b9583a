package toolcall

import "errors"

var (
	// ErrCallNotFound is returned when no call has the given id.
	ErrCallNotFound = errors.New("tool call not found")

	// ErrDuplicateCall is returned when a call id is already tracked.
	ErrDuplicateCall = errors.New("duplicate tool call id")

	// ErrInvalidTransition is returned for a transition the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid tool call transition")

	// ErrPartial is returned when a call whose arguments are still streaming
	// is surfaced for approval or executed.
	ErrPartial = errors.New("tool call arguments are still partial")

	// ErrNotPartial is returned when arguments are appended to a finalized call.
	ErrNotPartial = errors.New("tool call arguments are already final")

	// ErrApprovalDenied marks a call the user rejected. Rejection is a normal
	// terminal state; this error only reports it to callers that asked for
	// execution.
	ErrApprovalDenied = errors.New("tool call rejected")
)
