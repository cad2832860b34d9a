package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Sync statuses
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailed  = "failed"

	// Sync trigger sources
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerAPI       = "api"

	// Scheduler cycle outcomes
	OutcomeDispatched = "dispatched"
	OutcomeIdle       = "idle"
	OutcomeBudgetLow  = "budget_low"

	// HTTP endpoints
	EndpointSync      = "sync"
	EndpointSyncInfo  = "sync_status"
	EndpointBaselines = "baselines"
	EndpointPatterns  = "patterns"
	EndpointAnomalies = "anomalies"
	EndpointInsights  = "insights"
	EndpointHealth    = "health"

	// Rate limit windows
	RateLimitShort = "short_window"
	RateLimitLong  = "long_window"

	// Database operations
	DBOpGetUser           = "get_user"
	DBOpListUsers         = "list_users"
	DBOpUpsertUser        = "upsert_user"
	DBOpUpdateSyncTimes   = "update_sync_times"
	DBOpUpsertSamples     = "upsert_samples"
	DBOpGetSeries         = "get_series"
	DBOpGetLatestSample   = "get_latest_sample"
	DBOpGetEarliestSample = "get_earliest_sample"
	DBOpReplaceBaseline   = "replace_baseline"
	DBOpGetBaselines      = "get_baselines"
	DBOpReplacePattern    = "replace_pattern"
	DBOpGetPatterns       = "get_patterns"
	DBOpInsertSyncLog     = "insert_sync_log"
	DBOpGetSyncHistory    = "get_sync_history"
	DBOpGetSyncStats      = "get_sync_stats"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Sync Metrics
var (
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncs_total",
			Help: "Total number of user syncs by trigger and final status",
		},
		[]string{"trigger", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of one full user sync",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	SyncEndpointResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_endpoint_results_total",
			Help: "Per-endpoint sync attempt outcomes",
		},
		[]string{"endpoint", "result"},
	)

	SyncRecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_upserted_total",
			Help: "Total number of records upserted per endpoint",
		},
		[]string{"endpoint"},
	)

	SyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Classified sync errors by endpoint and error type",
		},
		[]string{"endpoint", "error_type"},
	)
)

// Scheduler Metrics
var (
	SchedulerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_cycles_total",
			Help: "Total number of scheduler cycles by outcome",
		},
		[]string{"outcome"},
	)

	SchedulerUsersSelected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_users_selected",
			Help:    "Number of users selected per scheduling cycle",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	SchedulerPriorityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_priority_total",
			Help: "Dispatched syncs by computed priority",
		},
		[]string{"priority"},
	)

	SyncsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncs_in_flight",
			Help: "Number of user syncs currently in flight",
		},
	)
)

// Rate Limit Metrics
var (
	RateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_remaining",
			Help: "Remaining upstream call budget per window, as of the latest acquisition",
		},
		[]string{"window"},
	)

	RateLimitDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_denied_total",
			Help: "Total number of denied rate limit acquisitions per window",
		},
		[]string{"window"},
	)
)

// Analytics Metrics
var (
	AnalyticsRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_runs_total",
			Help: "Total number of post-sync analytics recomputations",
		},
		[]string{"result"},
	)

	AnalyticsRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_run_duration_seconds",
			Help:    "Duration of a full per-user analytics recomputation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected by severity",
		},
		[]string{"severity"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
