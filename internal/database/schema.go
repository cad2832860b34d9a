package database

// Schema contains all table and index definitions.
// Executed as one script by Open; every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id          TEXT PRIMARY KEY,
    access_token     TEXT NOT NULL,
    token_expires_at INTEGER NOT NULL,
    last_synced_at   INTEGER,
    last_success_at  INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_series (
    user_id    TEXT NOT NULL,
    metric     TEXT NOT NULL,
    date       TEXT NOT NULL,
    value      REAL NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(user_id, metric, date)
);

CREATE INDEX IF NOT EXISTS idx_metric_series_lookup
    ON metric_series(user_id, metric, date);

CREATE TABLE IF NOT EXISTS baselines (
    user_id      TEXT NOT NULL,
    metric       TEXT NOT NULL,
    mean_all     REAL,
    mean_7d      REAL,
    mean_30d     REAL,
    mean_90d     REAL,
    median       REAL,
    q1           REAL,
    q3           REAL,
    iqr          REAL,
    std_dev      REAL,
    min_value    REAL,
    max_value    REAL,
    sample_count INTEGER NOT NULL,
    status       TEXT NOT NULL,
    computed_at  INTEGER NOT NULL,
    UNIQUE(user_id, metric)
);

CREATE TABLE IF NOT EXISTS patterns (
    user_id          TEXT NOT NULL,
    name             TEXT NOT NULL,
    pattern_type     TEXT NOT NULL,
    score            REAL NOT NULL,
    confidence       REAL NOT NULL,
    significance     TEXT NOT NULL,
    metrics_involved TEXT NOT NULL,
    details          TEXT NOT NULL,
    sample_count     INTEGER NOT NULL,
    computed_at      INTEGER NOT NULL,
    UNIQUE(user_id, name)
);

CREATE TABLE IF NOT EXISTS sync_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id          TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    trigger_source  TEXT NOT NULL,
    priority        TEXT NOT NULL,
    status          TEXT NOT NULL,
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER NOT NULL,
    duration_ms     INTEGER NOT NULL,
    endpoint_counts TEXT NOT NULL,
    endpoint_errors TEXT NOT NULL,
    error_type      TEXT,
    error_message   TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_log_user
    ON sync_log(user_id, started_at DESC);

CREATE INDEX IF NOT EXISTS idx_sync_log_started
    ON sync_log(started_at);
`
