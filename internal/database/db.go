// Package database persists users, metric series, analytics snapshots and
// the sync audit log in one SQLite file.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the shared SQLite connection. All stores hang off it.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite file at path and ensures the schema exists. WAL mode
// with a single connection: SQLite serializes writes anyway, and one writer
// avoids busy-timeout churn between the scheduler and the HTTP handlers.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the underlying connection
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Health pings the connection for the health endpoint
func (db *DB) Health() error {
	return db.conn.Ping()
}
