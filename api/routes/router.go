package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torresline/eventgate/api/controllers"
	"github.com/torresline/eventgate/api/middleware"
	"github.com/torresline/eventgate/internal/dispatch"
	"github.com/torresline/eventgate/internal/pools"
	"github.com/torresline/eventgate/internal/subscriptions"
	"github.com/torresline/eventgate/pkg/config"
	"github.com/torresline/eventgate/pkg/logger"
)

// Deps collects everything the HTTP surface needs. The zero value of any
// optional dependency disables its routes.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Outbox        *dispatch.Outbox
	Subscriptions subscriptions.Service
	Pools         pools.Service
	Jobs          controllers.JobReader
	Limiter       middleware.RateLimiter
	Pingers       map[string]controllers.Pinger
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/events", func(r chi.Router) {
			r.Use(middleware.Throttle(deps.Limiter, cfg.App.IngestRateLimit, cfg.App.IngestRateWindow, logg))
			r.Post("/", controllers.IngestEvent(deps.Outbox, logg))
			r.Post("/batch", controllers.IngestEventBatch(deps.Outbox, logg))
		})

		r.Route("/v1/dispatch-jobs", func(r chi.Router) {
			r.Get("/", controllers.ListDispatchJobs(deps.Jobs, logg))
			r.Get("/{jobID}", controllers.GetDispatchJob(deps.Jobs, logg))
			r.Get("/{jobID}/attempts", controllers.GetDispatchJobAttempts(deps.Jobs, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAnchor(logg))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.CreateSubscription(deps.Subscriptions, logg))
			r.Get("/", controllers.ListSubscriptions(deps.Subscriptions, logg))
			r.Get("/{subscriptionID}", controllers.GetSubscription(deps.Subscriptions, logg))
			r.Put("/{subscriptionID}", controllers.UpdateSubscription(deps.Subscriptions, logg))
			r.Post("/{subscriptionID}/pause", controllers.PauseSubscription(deps.Subscriptions, logg))
			r.Post("/{subscriptionID}/resume", controllers.ResumeSubscription(deps.Subscriptions, logg))
		})

		r.Route("/pools", func(r chi.Router) {
			r.Post("/", controllers.CreatePool(deps.Pools, logg))
			r.Get("/", controllers.ListPools(deps.Pools, logg))
			r.Get("/{poolID}", controllers.GetPool(deps.Pools, logg))
			r.Put("/{poolID}", controllers.UpdatePool(deps.Pools, logg))
			r.Post("/{poolID}/suspend", controllers.SuspendPool(deps.Pools, logg))
			r.Post("/{poolID}/reactivate", controllers.ReactivatePool(deps.Pools, logg))
		})
	})

	return r
}
