package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/scheduler"
	"polar-flow-sync/internal/syncer"
)

// SyncHandler exposes sync triggering and sync status
type SyncHandler struct {
	db        *database.DB
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(db *database.DB, sched *scheduler.Scheduler) *SyncHandler {
	return &SyncHandler{
		db:        db,
		scheduler: sched,
		logger:    slog.Default(),
	}
}

// HandleTriggerSync handles POST /users/{userID}/sync. The sync runs
// synchronously through the same executor and audit path as scheduled syncs.
func (h *SyncHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	result, err := h.scheduler.SyncNow(r.Context(), userID, syncer.TriggerAPI)
	if err != nil {
		if strings.Contains(err.Error(), "unknown user") {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		if strings.Contains(err.Error(), "already in progress") {
			http.Error(w, "Sync already in progress", http.StatusConflict)
			return
		}
		h.logger.Error("manual sync failed", "user_id", userID, "error", err)
		http.Error(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// syncStatusResponse is the GET sync status payload
type syncStatusResponse struct {
	UserID        string                   `json:"user_id"`
	LastSyncedAt  *int64                   `json:"last_synced_at"`
	LastSuccessAt *int64                   `json:"last_success_at"`
	NextCycleAt   time.Time                `json:"next_cycle_at"`
	InFlight      int                      `json:"in_flight"`
	RecentHistory []*database.SyncLogEntry `json:"recent_history"`
	Stats24h      *database.SyncStats      `json:"stats_24h"`
}

// HandleSyncStatus handles GET /users/{userID}/sync/status
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := h.db.GetUser(userID)
	if err != nil {
		h.logger.Error("failed to load user", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	history, err := h.db.GetSyncHistory(userID, 10)
	if err != nil {
		h.logger.Error("failed to load sync history", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*database.SyncLogEntry{}
	}

	stats, err := h.db.GetSyncStats(time.Now().Add(-24 * time.Hour))
	if err != nil {
		h.logger.Error("failed to load sync stats", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	schedStatus := h.scheduler.GetStatus()
	writeJSON(w, http.StatusOK, syncStatusResponse{
		UserID:        userID,
		LastSyncedAt:  user.LastSyncedAt,
		LastSuccessAt: user.LastSuccessAt,
		NextCycleAt:   schedStatus.NextCycleAt,
		InFlight:      schedStatus.InFlight,
		RecentHistory: history,
		Stats24h:      stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
