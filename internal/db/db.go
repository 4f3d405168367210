// Package db provides database connection handling for the PeakForm API.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

// Pool sizing defaults. Webhook deliveries burst on provider retries, so the
// pool is kept modest but non-trivial.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
)

// Open opens a PostgreSQL connection pool and verifies connectivity.
// The caller owns the returned *sql.DB and must Close it.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(DefaultMaxOpenConns)
	conn.SetMaxIdleConns(DefaultMaxIdleConns)
	conn.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}
