package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/metrics"
)

// User is a tracked account whose health data we sync.
// The identity itself is owned elsewhere; we hold only the sync-relevant facts.
type User struct {
	UserID         string
	AccessToken    string
	TokenExpiresAt int64
	LastSyncedAt   *int64
	LastSuccessAt  *int64
	CreatedAt      int64
	UpdatedAt      int64
}

// TokenValid reports whether the user's access token is still usable at the given time.
func (u *User) TokenValid(now time.Time) bool {
	return u.AccessToken != "" && u.TokenExpiresAt > now.Unix()
}

// UpsertUser inserts a user or updates its token facts if it already exists
func (db *DB) UpsertUser(u *User) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertUser))
	defer timer.ObserveDuration()

	now := time.Now().Unix()
	_, err := db.conn.Exec(`
		INSERT INTO users (user_id, access_token, token_expires_at, last_synced_at, last_success_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
	`, u.UserID, u.AccessToken, u.TokenExpiresAt, u.LastSyncedAt, u.LastSuccessAt, now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertUser).Inc()
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID, returning nil if not found
func (db *DB) GetUser(userID string) (*User, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetUser))
	defer timer.ObserveDuration()

	var u User
	err := db.conn.QueryRow(`
		SELECT user_id, access_token, token_expires_at, last_synced_at, last_success_at, created_at, updated_at
		FROM users WHERE user_id = ?
	`, userID).Scan(
		&u.UserID, &u.AccessToken, &u.TokenExpiresAt, &u.LastSyncedAt, &u.LastSuccessAt,
		&u.CreatedAt, &u.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetUser).Inc()
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns every tracked user, oldest last-success first so the
// stalest users surface first in scheduling
func (db *DB) ListUsers() ([]*User, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListUsers))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT user_id, access_token, token_expires_at, last_synced_at, last_success_at, created_at, updated_at
		FROM users
		ORDER BY last_success_at ASC NULLS FIRST
	`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListUsers).Inc()
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		err := rows.Scan(
			&u.UserID, &u.AccessToken, &u.TokenExpiresAt, &u.LastSyncedAt, &u.LastSuccessAt,
			&u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdateSyncTimes records a sync attempt for a user. lastSuccess is only
// advanced when the attempt produced at least one successful endpoint.
func (db *DB) UpdateSyncTimes(userID string, syncedAt time.Time, success bool) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpdateSyncTimes))
	defer timer.ObserveDuration()

	var result sql.Result
	var err error
	if success {
		result, err = db.conn.Exec(`
			UPDATE users
			SET last_synced_at = ?, last_success_at = ?, updated_at = ?
			WHERE user_id = ?
		`, syncedAt.Unix(), syncedAt.Unix(), time.Now().Unix(), userID)
	} else {
		result, err = db.conn.Exec(`
			UPDATE users
			SET last_synced_at = ?, updated_at = ?
			WHERE user_id = ?
		`, syncedAt.Unix(), time.Now().Unix(), userID)
	}

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpdateSyncTimes).Inc()
		return fmt.Errorf("failed to update sync times: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}
