package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Journal pool defaults. A single recorder writes one row at a time.
const (
	journalMaxConns       = 2
	journalMaxIdleTime    = 5 * time.Minute
	journalConnectTimeout = 5 * time.Second
	applicationName       = "solana-sniper"
)

const pgErrUniqueViolation = "23505"

// Pool is the journal's Postgres connection pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects with journal pool settings and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// poolConfig parses dsn and applies the journal defaults. Settings given in the
// DSN (pool_max_conns, connect_timeout, application_name) are kept.
func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = journalMaxConns
	}
	cfg.MaxConnIdleTime = journalMaxIdleTime
	if cfg.ConnConfig.ConnectTimeout == 0 {
		cfg.ConnConfig.ConnectTimeout = journalConnectTimeout
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
