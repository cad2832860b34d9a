// Package syncer runs one user's full sync against the upstream API with
// per-endpoint failure isolation and a durable audit trail.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/analytics"
	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/metrics"
	"polar-flow-sync/internal/polar"
)

// Trigger sources for a sync attempt
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerAPI       = "api"
)

// Result is the outcome of one full sync attempt for one user
type Result struct {
	JobID          string                            `json:"job_id"`
	UserID         string                            `json:"user_id"`
	Status         string                            `json:"status"`
	EndpointCounts map[string]int                    `json:"endpoint_counts"`
	EndpointErrors map[string]database.EndpointError `json:"endpoint_errors"`
	StartedAt      time.Time                         `json:"started_at"`
	FinishedAt     time.Time                         `json:"finished_at"`
}

// Executor performs per-user syncs. One endpoint's failure never prevents
// the remaining endpoints from being attempted; a single revoked consent
// must not discard the other endpoints' fresh data.
type Executor struct {
	db              *database.DB
	fetcher         polar.Fetcher
	tracker         *polar.RateLimitTracker
	engine          *analytics.Engine
	logger          *slog.Logger
	endpointTimeout time.Duration
	now             func() time.Time
}

// NewExecutor creates a sync executor
func NewExecutor(db *database.DB, fetcher polar.Fetcher, tracker *polar.RateLimitTracker, engine *analytics.Engine, endpointTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		db:              db,
		fetcher:         fetcher,
		tracker:         tracker,
		engine:          engine,
		logger:          logger,
		endpointTimeout: endpointTimeout,
		now:             time.Now,
	}
}

// SyncUser runs one full sync for the user and writes the audit row. Every
// attempt produces a Result and an audit row; errors after entry are
// recorded, not raised. Analytics recomputation is a separate step, see
// Recompute.
func (ex *Executor) SyncUser(ctx context.Context, userID, trigger, priority string) (*Result, error) {
	started := ex.now()
	result := &Result{
		JobID:          uuid.NewString(),
		UserID:         userID,
		EndpointCounts: make(map[string]int),
		EndpointErrors: make(map[string]database.EndpointError),
		StartedAt:      started,
	}

	user, err := ex.db.GetUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for sync: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q", userID)
	}

	if !user.TokenValid(started) {
		// fatal pre-flight condition, no endpoint is attempted
		result.Status = database.SyncStatusFailed
		result.FinishedAt = ex.now()
		ex.logger.Warn("sync aborted, no valid token", "user_id", userID, "job_id", result.JobID)
		if err := ex.finishSync(result, trigger, priority, polar.NewError(polar.ErrTokenExpired, "no valid access token")); err != nil {
			return nil, err
		}
		return result, nil
	}

	successes := 0
	for _, endpoint := range polar.AllEndpoints {
		if ctx.Err() != nil {
			// shutting down: keep what we have, skip the rest
			ex.logger.Info("sync interrupted", "user_id", userID, "job_id", result.JobID, "after_endpoints", successes+len(result.EndpointErrors))
			break
		}
		if ex.syncEndpoint(ctx, user, endpoint, result) {
			successes++
		}
	}

	switch {
	case len(result.EndpointErrors) == 0:
		result.Status = database.SyncStatusSuccess
	case successes == 0:
		result.Status = database.SyncStatusFailed
	default:
		result.Status = database.SyncStatusPartial
	}
	result.FinishedAt = ex.now()

	if err := ex.db.UpdateSyncTimes(userID, result.FinishedAt, successes > 0); err != nil {
		return nil, err
	}
	if err := ex.finishSync(result, trigger, priority, nil); err != nil {
		return nil, err
	}

	ex.logger.Info("sync finished",
		"user_id", userID,
		"job_id", result.JobID,
		"status", result.Status,
		"endpoints_ok", successes,
		"endpoints_failed", len(result.EndpointErrors),
		"duration_ms", result.FinishedAt.Sub(started).Milliseconds(),
	)
	return result, nil
}

// syncEndpoint attempts one endpoint: permit, fetch, transform, upsert.
// Failures are classified and recorded on the result; true means the
// endpoint succeeded.
func (ex *Executor) syncEndpoint(ctx context.Context, user *database.User, endpoint polar.Endpoint, result *Result) bool {
	name := string(endpoint)

	if denied := ex.tracker.TryAcquire(user.UserID); denied != nil {
		window := metrics.RateLimitShort
		if denied.Type == polar.ErrRateLimited24h {
			window = metrics.RateLimitLong
		}
		metrics.RateLimitDeniedTotal.WithLabelValues(window).Inc()
		ex.recordError(result, name, denied)
		return false
	}
	short, long := ex.tracker.Remaining(user.UserID)
	metrics.RateLimitRemaining.WithLabelValues(metrics.RateLimitShort).Set(float64(short))
	metrics.RateLimitRemaining.WithLabelValues(metrics.RateLimitLong).Set(float64(long))

	// the endpoint timeout is independent of shutdown cancellation so an
	// in-progress endpoint finishes its write instead of aborting midway
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ex.endpointTimeout)
	defer cancel()

	samples, err := ex.fetcher.Fetch(fetchCtx, endpoint, user.AccessToken)
	if err != nil {
		ex.recordError(result, name, polar.Classify(err))
		return false
	}

	if err := ex.upsertSamples(user.UserID, endpoint, samples); err != nil {
		ex.recordError(result, name, polar.WrapError(polar.ErrDatabase, "failed to store "+name+" records", err))
		return false
	}

	result.EndpointCounts[name] = len(samples)
	metrics.SyncEndpointResultsTotal.WithLabelValues(name, metrics.ResultSuccess).Inc()
	metrics.SyncRecordsUpserted.WithLabelValues(name).Add(float64(len(samples)))
	return true
}

// upsertSamples fans one endpoint's samples out to its metric series
func (ex *Executor) upsertSamples(userID string, endpoint polar.Endpoint, samples []polar.Sample) error {
	for _, metric := range polar.EndpointMetrics[endpoint] {
		var points []database.SeriesPoint
		for _, s := range samples {
			if v, ok := s.Metrics[metric]; ok {
				points = append(points, database.SeriesPoint{Date: s.Date, Value: v})
			}
		}
		if err := ex.db.UpsertSamples(userID, metric, points); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) recordError(result *Result, endpoint string, perr *polar.Error) {
	result.EndpointErrors[endpoint] = database.EndpointError{
		Type:    string(perr.Type),
		Message: perr.Message,
	}
	metrics.SyncEndpointResultsTotal.WithLabelValues(endpoint, metrics.ResultFailed).Inc()
	metrics.SyncErrorsTotal.WithLabelValues(endpoint, string(perr.Type)).Inc()
	ex.logger.Warn("endpoint sync failed",
		"user_id", result.UserID,
		"job_id", result.JobID,
		"endpoint", endpoint,
		"error_type", perr.Type,
		"error", perr.Message,
	)
}

// finishSync writes the audit row and records outcome metrics. fatal is
// non-nil only when a pre-flight failure prevented any endpoint attempt.
func (ex *Executor) finishSync(result *Result, trigger, priority string, fatal *polar.Error) error {
	entry := &database.SyncLogEntry{
		JobID:          result.JobID,
		UserID:         result.UserID,
		TriggerSource:  trigger,
		Priority:       priority,
		Status:         result.Status,
		StartedAt:      result.StartedAt.Unix(),
		FinishedAt:     result.FinishedAt.Unix(),
		DurationMs:     result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		EndpointCounts: result.EndpointCounts,
		EndpointErrors: result.EndpointErrors,
	}
	if fatal != nil {
		t := string(fatal.Type)
		m := fatal.Message
		entry.ErrorType = &t
		entry.ErrorMessage = &m
	}

	if err := ex.db.InsertSyncLog(entry); err != nil {
		return fmt.Errorf("failed to write sync audit row: %w", err)
	}

	metrics.SyncsTotal.WithLabelValues(trigger, result.Status).Inc()
	metrics.SyncDuration.WithLabelValues(result.Status).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	return nil
}

// Recompute refreshes the user's baselines and patterns after a sync landed
// data. The scheduler calls it once SyncUser has returned, so callers are
// never held up by the analytics pass. Failures here are logged, never
// propagated into the sync outcome.
func (ex *Executor) Recompute(userID string) {
	timer := prometheus.NewTimer(metrics.AnalyticsRunDuration)
	defer timer.ObserveDuration()

	if err := ex.engine.ComputeAllBaselines(userID); err != nil {
		metrics.AnalyticsRunsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		ex.logger.Error("baseline recomputation failed", "user_id", userID, "error", err)
		return
	}
	if _, err := ex.engine.DetectPatterns(userID); err != nil {
		metrics.AnalyticsRunsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		ex.logger.Error("pattern recomputation failed", "user_id", userID, "error", err)
		return
	}
	metrics.AnalyticsRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
}
