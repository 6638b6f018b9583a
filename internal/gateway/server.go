package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.observe)

	// Public.
	r.Get("/health", g.handleHealth)
	if g.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if g.cfg.Auth.IsConfigured() {
			r.Use(authMiddleware(g.cfg.Auth, g.audit, g.rateLimiter))
		}
		r.Get("/ws/events", g.handleEvents)
		r.Route("/api", func(r chi.Router) {
			r.Post("/classify", g.handleClassify)
			r.Post("/classify/batch", g.handleClassifyBatch)
			r.Get("/sessions", g.handleListSessions)
			r.Route("/sessions/{session}", func(r chi.Router) {
				r.Post("/messages", g.handleMessage)
				r.Post("/resume", g.handleResume)
				r.Get("/calls", g.handleCalls)
				r.Post("/calls/{call}/approve", g.handleApprove)
				r.Post("/calls/{call}/reject", g.handleReject)
				r.Get("/history", g.handleHistory)
			})
		})
	})

	return r
}

// observe records request counts and latency keyed by route pattern so
// path parameters do not explode label cardinality.
func (g *Gateway) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}
