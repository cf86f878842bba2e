// Package httptransport assembles the full API surface: the three registry
// handlers, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatehandler "tokengate/internal/gate/handler"
	identityhandler "tokengate/internal/identity/handler"
	messagehandler "tokengate/internal/message/handler"
	"tokengate/internal/platform/middleware"
)

// HealthChecker reports backing-store liveness for the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger   *slog.Logger
	Gate     *gatehandler.Handler
	Identity *identityhandler.Handler
	Message  *messagehandler.Handler
	Gatherer prometheus.Gatherer
	// Checks run on /healthz; nil entries are skipped.
	Checks []HealthChecker
}

// NewRouter wires the middleware chain and mounts every handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Caller)

	r.Route("/gate", deps.Gate.Register)
	r.Route("/identity", deps.Identity.Register)
	r.Route("/messages", deps.Message.Register)

	r.Get("/healthz", healthHandler(deps.Checks))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	return r
}

func healthHandler(checks []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
