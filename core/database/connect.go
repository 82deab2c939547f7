package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/zoomigo/rentalbot/core/logger"
)

const connectTimeout = 5 * time.Second

func logAttrs(c Config) []slog.Attr {
	return []slog.Attr{
		slog.String("db", c.Name),
		slog.String("host", c.Host + ":" + c.Port),
	}
}

// Connect opens the Postgres pool and verifies connectivity before handing
// it out.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		logger.Error(ctx, "db", "db.connect.failed",
			append(logAttrs(cfg), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		logger.Error(ctx, "db", "db.ping.failed",
			append(logAttrs(cfg), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, "db", "db.connect",
		append(logAttrs(cfg),
			slog.Int("count", cfg.MaxConnections),
			slog.Duration("duration", logger.Took(start)),
		)...)
	return db, nil
}

// WaitForPostgres polls the database until it accepts connections or the
// timeout expires.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			err = db.Ping()
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}
