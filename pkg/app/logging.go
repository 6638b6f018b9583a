package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/toolpipe/internal/config"
	"github.com/flemzord/toolpipe/internal/security"
)

// NewLogger builds the process logger: a text handler on w wrapped in a
// redacting handler.
func NewLogger(w io.Writer, level slog.Level, redactor *security.Redactor) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// NewRedactor returns a redactor that also scrubs every secret found in
// cfg.
func NewRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	for _, s := range secrets(cfg) {
		r.AddLiteral(s)
	}
	return r
}

func secrets(cfg *config.Config) []string {
	var out []string
	for _, s := range []string{
		cfg.Provider.APIKey,
		envOrEmpty(cfg.Provider.APIKeyEnv),
		cfg.Classifier.Model.APIKey,
		envOrEmpty(cfg.Classifier.Model.APIKeyEnv),
		cfg.Gateway.Auth.BearerToken,
		cfg.Gateway.Auth.BasicPass,
	} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
