package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/payflow/payflow/internal/auth"
	"github.com/payflow/payflow/internal/observability"
	"github.com/payflow/payflow/internal/payments"
	"github.com/payflow/payflow/internal/resilience"
	"github.com/payflow/payflow/internal/webhooks"
	"github.com/payflow/payflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthService     *auth.Service
	PaymentsHandler *payments.Handler
	WebhooksHandler *webhooks.Handler
	JobHandler      *jobs.Handler
	Resilience      *resilience.Manager
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router for the service.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Resilience))

	// Provider callbacks authenticate by signature, not API key.
	if params.WebhooksHandler != nil {
		r.Route("/webhooks", params.WebhooksHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.AuthService != nil {
			api.Use(auth.Middleware(params.AuthService, params.Logger))
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(api)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// healthHandler reports liveness plus every breaker state.
func healthHandler(guard *resilience.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if guard != nil {
			states := guard.States()
			breakers := make(map[string]string, len(states))
			for name, state := range states {
				breakers[name] = state.String()
			}
			body["breakers"] = breakers
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}
