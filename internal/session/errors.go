package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrEmptyInput      = errors.New("session: empty input")
	ErrNothingToResume = errors.New("session: nothing to resume")
	ErrClosed          = errors.New("session: manager closed")
	ErrOutOfOrder      = errors.New("session: an earlier call is still undecided")
)

// ErrNoProvider is returned for turns that need the model when none is
// configured.
var ErrNoProvider = errors.New("session: no model provider configured")
