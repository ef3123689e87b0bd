package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/logger"
)

//go:embed schema.sql
var schema string

const pingAttempts = 5

// Open opens the postgres pool described by cfg and waits for it to answer.
func Open(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := pingWithRetry(ctx, db, pingAttempts, 2*time.Second, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info("Database connected",
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name))
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, backoff time.Duration, log *logger.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		log.Warn("Database ping failed",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}
