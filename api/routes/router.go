package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pimsync/api/controllers"
	webhookcontrollers "github.com/angelmondragon/pimsync/api/controllers/webhooks"
	"github.com/angelmondragon/pimsync/api/middleware"
	"github.com/angelmondragon/pimsync/pkg/config"
	"github.com/angelmondragon/pimsync/pkg/logger"
)

// RouterParams bundles the collaborators the API surface needs.
type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	Ledger  webhookcontrollers.EventLedger
	Queue   webhookcontrollers.JobEnqueuer
	Monitor controllers.HealthChecker
	// Readiness dependencies, keyed by the name reported in the response.
	Pingers map[string]controllers.Pinger
	Metrics http.Handler
}

// NewRouter wires the HTTP surface: health probes, the webhook ingress, the
// sync health endpoint, and prometheus metrics.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Pingers, params.Monitor))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/akeneo", webhookcontrollers.AkeneoWebhook(
			params.Ledger,
			params.Queue,
			webhookcontrollers.SecretFunc(func() string { return cfg.Akeneo.WebhookSecret }),
			logg,
		))
		r.Get("/sync/health", controllers.SyncHealth(params.Monitor, logg))
	})

	metricsHandler := params.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	return r
}
