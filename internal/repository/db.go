package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        8,
		MaxConnLifetime: 30 * time.Minute,
		DialTimeout:     5 * time.Second,
	}
}

// Open creates a pgx pool and wraps it as *sql.DB.
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*sql.DB, *pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = "savana-gateway"

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("successfully connected to database")
	return stdlib.OpenDBFromPool(pool), pool, nil
}

func Close(db *sql.DB, pool *pgxpool.Pool, logger logrus.FieldLogger) {
	if db != nil {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database handle")
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}
