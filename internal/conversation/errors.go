package conversation

import "errors"

var (
	// ErrInvalidMessage is returned when a message breaks a structural rule.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrDuplicateMessage is returned when a message id is already in the thread.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrThreadNotFound is returned by stores for unknown thread ids.
	ErrThreadNotFound = errors.New("thread not found")
)
