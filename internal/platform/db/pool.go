package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the pool shared by every request.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// MaxConnIdle closes connections idle for longer; zero keeps the
	// driver default.
	MaxConnIdle time.Duration
}

const applicationName = "medpay"

// Open parses cfg, pins every session to schema's search_path and pings
// the server once before returning.
func Open(ctx context.Context, cfg PoolConfig, schema Schema) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.MinConns = cfg.MinConns
	if cfg.MaxConnIdle > 0 {
		pcfg.MaxConnIdleTime = cfg.MaxConnIdle
	}

	params := pcfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if schema.Name != "" {
		params["search_path"] = schema.SearchPath()
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open pool for schema %s: %w", schema.Name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
