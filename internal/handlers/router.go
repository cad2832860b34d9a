package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"polar-flow-sync/internal/analytics"
	"polar-flow-sync/internal/config"
	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/metrics"
	"polar-flow-sync/internal/middleware"
	"polar-flow-sync/internal/polar"
	"polar-flow-sync/internal/scheduler"
)

// NewRouter wires every exposed contract onto a chi router
func NewRouter(cfg *config.Config, db *database.DB, engine *analytics.Engine, sched *scheduler.Scheduler, tracker *polar.RateLimitTracker) http.Handler {
	syncH := NewSyncHandler(db, sched)
	analyticsH := NewAnalyticsHandler(db, engine)
	usersH := NewUsersHandler(db)
	healthH := NewHealthHandler(db)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.With(middleware.Metrics(metrics.EndpointHealth)).
		Get("/health", healthH.HandleHealth)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(middleware.RateLimitHeaders(tracker))

		r.With(middleware.InternalAuth(cfg.InternalAPIKey)).
			Put("/", usersH.HandleUpsertUser)

		r.With(middleware.InternalAuth(cfg.InternalAPIKey), middleware.Metrics(metrics.EndpointSync)).
			Post("/sync", syncH.HandleTriggerSync)
		r.With(middleware.Metrics(metrics.EndpointSyncInfo)).
			Get("/sync/status", syncH.HandleSyncStatus)

		r.With(middleware.Metrics(metrics.EndpointBaselines)).
			Get("/baselines", analyticsH.HandleGetBaselines)
		r.With(middleware.Metrics(metrics.EndpointBaselines)).
			Get("/baselines/{metric}", analyticsH.HandleGetBaseline)

		r.With(middleware.Metrics(metrics.EndpointPatterns)).
			Get("/patterns", analyticsH.HandleGetPatterns)
		r.With(middleware.InternalAuth(cfg.InternalAPIKey), middleware.Metrics(metrics.EndpointPatterns)).
			Post("/patterns/detect", analyticsH.HandleDetectPatterns)

		r.With(middleware.Metrics(metrics.EndpointAnomalies)).
			Get("/anomalies", analyticsH.HandleScanAnomalies)

		r.With(middleware.Metrics(metrics.EndpointInsights)).
			Get("/insights", analyticsH.HandleGetInsights)
	})

	return r
}
