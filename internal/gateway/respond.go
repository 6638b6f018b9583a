package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flemzord/toolpipe/internal/session"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

// maxBodyBytes caps request bodies on the API.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, toolcall.ErrCallNotFound):
		return http.StatusNotFound
	case errors.Is(err, toolcall.ErrInvalidTransition),
		errors.Is(err, toolcall.ErrPartial),
		errors.Is(err, session.ErrNothingToResume),
		errors.Is(err, session.ErrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoProvider), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body into v, rejecting unknown fields. An empty
// body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
