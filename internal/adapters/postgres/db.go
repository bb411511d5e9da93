package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/pkg/metrics"
)

// DB wraps pgxpool.Pool and provides a shared connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new DB connection pool.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 50
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ReportPoolStats publishes pool gauges every interval until ctx ends.
func (db *DB) ReportPoolStats(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}

// Close releases pool resources.
func (db *DB) Close() {
	db.Pool.Close()
}

const uniqueViolation = "23505"

// mapErr translates driver errors into domain errors.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, domain.ErrAlreadySubmitted)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// point converts nullable lat/lng columns into a GeoPoint.
func point(lat, lng *float64) *domain.GeoPoint {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.GeoPoint{Lat: *lat, Lon: *lng}
}

// latLng splits an optional GeoPoint into nullable column values.
func latLng(p *domain.GeoPoint) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	la, lo := p.Lat, p.Lon
	return &la, &lo
}
