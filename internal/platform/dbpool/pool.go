package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/socialstream/platform/internal/platform/env"
)

// Pool sizing is tuned for short CRUD statements: a request holds a
// connection for one statement at a time, so the ceiling tracks HTTP
// concurrency rather than transaction length.
const (
	defaultMinConns          = 2
	defaultMaxConns          = 16
	defaultConnMaxLifetime   = 45 * time.Minute
	defaultConnMaxIdle       = 10 * time.Minute
	defaultHealthcheckPeriod = time.Minute

	// Every store statement runs under this deadline. A hung query fails the
	// request as a Timeout fault instead of holding the handler open.
	queryTimeout = 3 * time.Second
)

func New(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns, maxConns := clampConns(
		env.Int("PG_MIN_CONNS", defaultMinConns),
		env.Int("PG_MAX_CONNS", defaultMaxConns),
	)
	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)
	cfg.MaxConnLifetime = env.Duration("PG_CONN_MAX_LIFETIME", defaultConnMaxLifetime)
	cfg.MaxConnIdleTime = env.Duration("PG_CONN_MAX_IDLE", defaultConnMaxIdle)
	cfg.HealthCheckPeriod = env.Duration("PG_HEALTHCHECK_INTERVAL", defaultHealthcheckPeriod)

	return pgxpool.NewWithConfig(ctx, cfg)
}

func clampConns(min, max int) (int, int) {
	if max <= 0 {
		max = defaultMaxConns
	}
	if min < 0 {
		min = defaultMinConns
	}
	if min > max {
		min = max
	}
	return min, max
}

// WithQueryTimeout derives the per-statement context for a store call.
// Repositories wrap every query with it so no request-path statement runs
// without a deadline.
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}
