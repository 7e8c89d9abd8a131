package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MinConns = 0
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeErr("create postgres pool", err)
	}

	return pool, nil
}

// Ping reports whether the pool can reach the database.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errPoolNil
	}
	if err := pool.Ping(ctx); err != nil {
		return storeErr("ping postgres", err)
	}
	return nil
}
