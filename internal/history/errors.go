package history

import "errors"

// ErrHistoryMalformed is returned when a thread cannot be turned into a
// provider-valid history. Nothing is emitted for a malformed thread.
var ErrHistoryMalformed = errors.New("history malformed")
