package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"polar-flow-sync/internal/database"
)

// UsersHandler registers users and their credentials. Token exchange itself
// happens upstream; this service only receives the resulting token.
type UsersHandler struct {
	db     *database.DB
	logger *slog.Logger
}

// NewUsersHandler creates a users handler
func NewUsersHandler(db *database.DB) *UsersHandler {
	return &UsersHandler{db: db, logger: slog.Default()}
}

type upsertUserRequest struct {
	AccessToken    string `json:"access_token"`
	TokenExpiresAt int64  `json:"token_expires_at"`
}

// HandleUpsertUser handles PUT /users/{userID}
func (h *UsersHandler) HandleUpsertUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req upsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" || req.TokenExpiresAt == 0 {
		http.Error(w, "access_token and token_expires_at are required", http.StatusBadRequest)
		return
	}

	if err := h.db.UpsertUser(&database.User{
		UserID:         userID,
		AccessToken:    req.AccessToken,
		TokenExpiresAt: req.TokenExpiresAt,
	}); err != nil {
		h.logger.Error("failed to upsert user", "user_id", userID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user upserted", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}
