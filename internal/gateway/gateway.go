package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/session"
)

// Deps are the collaborators the gateway serves.
type Deps struct {
	// Sessions is required.
	Sessions *session.Manager

	// Classifier defaults to the session manager's classifier.
	Classifier *classify.Classifier

	// Hub feeds /ws/events. A fresh hub is created when nil.
	Hub *Hub

	// Gatherer backs /metrics. The endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer

	// Health probes are reported by /health under their map key.
	Health map[string]provider.HealthChecker

	Audit       *security.AuditLogger
	RateLimiter *security.RateLimiter
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Gateway is the HTTP and websocket front end over the session manager.
type Gateway struct {
	cfg         Config
	sessions    *session.Manager
	classifier  *classify.Classifier
	hub         *Hub
	gatherer    prometheus.Gatherer
	health      map[string]provider.HealthChecker
	audit       *security.AuditLogger
	rateLimiter *security.RateLimiter
	metrics     *observability.Metrics
	logger      *slog.Logger

	handler   http.Handler
	server    *http.Server
	startedAt time.Time
}

// New builds a gateway. It does not listen until Start.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Sessions == nil {
		return nil, errors.New("gateway: session manager is required")
	}
	cfg = cfg.withDefaults()
	if _, _, err := net.SplitHostPort(cfg.Bind); err != nil {
		return nil, fmt.Errorf("gateway: invalid bind address %q: %w", cfg.Bind, err)
	}

	g := &Gateway{
		cfg:         cfg,
		sessions:    deps.Sessions,
		classifier:  deps.Classifier,
		hub:         deps.Hub,
		gatherer:    deps.Gatherer,
		health:      deps.Health,
		audit:       deps.Audit,
		rateLimiter: deps.RateLimiter,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		startedAt:   time.Now(),
	}
	if g.classifier == nil {
		g.classifier = deps.Sessions.Classifier()
	}
	if g.hub == nil {
		g.hub = NewHub()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	g.handler = g.buildRouter()
	return g, nil
}

// Handler returns the routed handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Hub returns the event hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// Name identifies the gateway in the component lifecycle.
func (g *Gateway) Name() string { return "gateway" }

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:              g.cfg.Bind,
		Handler:           g.handler,
		ReadHeaderTimeout: g.cfg.ReadTimeout,
		ReadTimeout:       g.cfg.ReadTimeout,
		WriteTimeout:      g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	g.startedAt = time.Now()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop closes websocket streams and shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	g.hub.Close()
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
