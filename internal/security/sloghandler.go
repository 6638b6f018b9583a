package security

import (
	"context"
	"encoding/json"
	"log/slog"
)

// RedactingHandler wraps a slog.Handler and scrubs every record before the
// inner handler sees it: the message, string attributes, attributes whose
// key names a secret, tool payloads logged as json.RawMessage or []byte,
// and errors whose text carries a credential.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler creates a handler that wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record and passes a copy to the inner handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs redacts attrs once and folds them into the inner handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup delegates to the inner handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && secretKeyPattern.MatchString(a.Key) {
			a.Value = slog.StringValue(RedactPlaceholder)
			return a
		}
		a.Value = slog.StringValue(h.redactor.Redact(s))
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(redacted...)
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case json.RawMessage:
			a.Value = slog.StringValue(string(h.redactor.RedactJSON(v)))
		case []byte:
			a.Value = slog.StringValue(h.redactor.Redact(string(v)))
		default:
			text := a.Value.String()
			if redacted := h.redactor.Redact(text); redacted != text {
				a.Value = slog.StringValue(redacted)
			}
		}
	}
	return a
}
