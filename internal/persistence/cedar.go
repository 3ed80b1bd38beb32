package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-service/internal/config"
)

// Cedar wraps the connection pool to the external CMMS database. It is a
// separate pool from the local ticket store; the two share no transaction
// coordinator.
type Cedar struct {
	Pool *pgxpool.Pool
}

// NewCedar connects to the Cedar database when DSN is provided. A missing DSN
// is tolerated: ticket operations still work, external sync degrades to
// logged failures.
func NewCedar(ctx context.Context, cfg config.CedarConfig, logger *zap.Logger) (*Cedar, error) {
	if cfg.DSN == "" {
		logger.Warn("CEDAR_DSN not provided; external sync disabled")
		return &Cedar{Pool: nil}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse cedar dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Warn("unable to reach cedar", zap.Error(err))
	} else {
		logger.Info("connected to cedar")
	}

	return &Cedar{Pool: pool}, nil
}

// Close releases pool resources.
func (c *Cedar) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}

// PoolHandle returns the underlying pgx pool, nil when sync is disabled.
func (c *Cedar) PoolHandle() *pgxpool.Pool {
	if c == nil {
		return nil
	}
	return c.Pool
}

// Ping verifies Cedar connectivity.
func (c *Cedar) Ping(ctx context.Context) error {
	if c == nil || c.Pool == nil {
		return errors.New("cedar pool not configured")
	}
	return c.Pool.Ping(ctx)
}
