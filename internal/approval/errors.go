package approval

import "errors"

var (
	// ErrUnknownMode is returned when a configured mode name is not recognised.
	ErrUnknownMode = errors.New("unknown approval mode")

	// ErrApprovalTimeout is returned when an approval request times out.
	ErrApprovalTimeout = errors.New("approval request timed out")

	// ErrApprovalBusy is returned when a PendingApproval is already waiting.
	ErrApprovalBusy = errors.New("approval already pending")

	// ErrNoRequester is returned when interactive approval is needed but no
	// requester is configured.
	ErrNoRequester = errors.New("no approval requester configured")
)
