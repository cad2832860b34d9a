package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"polar-flow-sync/internal/analytics"
	"polar-flow-sync/internal/database"
)

// AnalyticsHandler exposes baselines, patterns, anomalies and insights
type AnalyticsHandler struct {
	db     *database.DB
	engine *analytics.Engine
	logger *slog.Logger
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(db *database.DB, engine *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{
		db:     db,
		engine: engine,
		logger: slog.Default(),
	}
}

// HandleGetBaselines handles GET /users/{userID}/baselines
func (h *AnalyticsHandler) HandleGetBaselines(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	baselines, err := h.db.GetBaselines(userID)
	if err != nil {
		h.logger.Error("failed to load baselines", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if baselines == nil {
		baselines = []*database.Baseline{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"baselines": baselines})
}

// HandleGetBaseline handles GET /users/{userID}/baselines/{metric}
func (h *AnalyticsHandler) HandleGetBaseline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	metric := chi.URLParam(r, "metric")

	baseline, err := h.db.GetBaseline(userID, metric)
	if err != nil {
		h.logger.Error("failed to load baseline", "user_id", userID, "metric", metric, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if baseline == nil {
		http.Error(w, "Baseline not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

// HandleGetPatterns handles GET /users/{userID}/patterns
func (h *AnalyticsHandler) HandleGetPatterns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	patterns, err := h.db.GetPatterns(userID)
	if err != nil {
		h.logger.Error("failed to load patterns", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if patterns == nil {
		patterns = []*database.Pattern{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

// HandleDetectPatterns handles POST /users/{userID}/patterns/detect,
// recomputing all patterns and returning their significance
func (h *AnalyticsHandler) HandleDetectPatterns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	results, err := h.engine.DetectPatterns(userID)
	if err != nil {
		h.logger.Error("pattern detection failed", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": results})
}

// HandleScanAnomalies handles GET /users/{userID}/anomalies
func (h *AnalyticsHandler) HandleScanAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	anomalies, err := h.engine.ScanAnomalies(userID)
	if err != nil {
		h.logger.Error("anomaly scan failed", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if anomalies == nil {
		anomalies = []analytics.Anomaly{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": anomalies})
}

// HandleGetInsights handles GET /users/{userID}/insights
func (h *AnalyticsHandler) HandleGetInsights(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	payload, err := h.engine.GetInsights(userID)
	if err != nil {
		h.logger.Error("insights assembly failed", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
