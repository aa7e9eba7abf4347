// Package database provides the PostgreSQL client and migration utilities
// for the classroom read model.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql (migrations, health)
	"github.com/jackc/pgx/v5/tracelog"
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the pgx pool used for queries and a database/sql handle used
// for migrations and health checks.
type Client struct {
	pool *pgxpool.Pool
	db   *stdsql.DB
}

// Pool returns the pgx pool for queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// DB returns the database/sql handle for health checks.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// NewClient connects, configures pooling, and runs pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return &Client{pool: pool, db: db}, nil
}

// poolConfig builds the pgx pool configuration, attaching a query tracer
// when DB_LOGGING is enabled.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.Logging {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   tracelog.LoggerFunc(logQuery),
			LogLevel: tracelog.LogLevelDebug,
		}
	}
	return poolCfg, nil
}

func logQuery(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	attrs := make([]any, 0, len(data)*2)
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	switch level {
	case tracelog.LogLevelError:
		slog.ErrorContext(ctx, msg, attrs...)
	case tracelog.LogLevelWarn:
		slog.WarnContext(ctx, msg, attrs...)
	default:
		slog.DebugContext(ctx, msg, attrs...)
	}
}

// NewClientFromPool wraps existing connections (useful for tests).
func NewClientFromPool(pool *pgxpool.Pool, db *stdsql.DB) *Client {
	return &Client{pool: pool, db: db}
}

// RunMigrations applies the embedded migrations to the database.
func RunMigrations(db *stdsql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	slog.Info("Database migrations up to date")
	return nil
}

// Close releases both connection handles.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
