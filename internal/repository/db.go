package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a database/sql handle together with the driver it was opened
// with. The driver matters for placeholder rebinding and schema types.
type DB struct {
	*sql.DB
	driver string
	pool   *pgxpool.Pool // non-nil only for postgres
}

// Open connects using the configured driver. Postgres goes through a pgx
// pool wrapped as *sql.DB; sqlite is opened directly (modernc, no cgo).
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("db.open", "driver", cfg.Driver, "dsn", cfg.DSN)

	switch cfg.Driver {
	case DriverSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			return nil, common.NewAppError("DB_OPEN", "failed to open sqlite database", err)
		}
		// sqlite serializes writes anyway; a single connection avoids
		// SQLITE_BUSY under concurrent pipeline workers.
		db.SetMaxOpenConns(1)
		return &DB{DB: db, driver: DriverSQLite}, nil

	case DriverPostgres:
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database config", "error", err)
			return nil, common.NewAppError("DB_OPEN", "invalid postgres DSN", err)
		}
		pc.MaxConns = int32(cfg.MaxConns)
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "invoice-pipeline"

		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, common.NewAppError("DB_OPEN", "failed to connect to postgres", err)
		}

		// Wrap the pool as *sql.DB so every repository speaks database/sql.
		db := stdlib.OpenDBFromPool(pool)
		logger.Info("db.open.ok", "driver", cfg.Driver)
		return &DB{DB: db, driver: DriverPostgres, pool: pool}, nil

	default:
		return nil, common.NewAppError("DB_OPEN",
			fmt.Sprintf("unsupported DB_DRIVER %q", cfg.Driver), common.ErrInvalidInput)
	}
}

// Close closes the handle and, for postgres, the underlying pool.
func (d *DB) Close(logger *slog.Logger) {
	logger.Info("db.close")
	if err := d.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.PingContext(ctx)
}

// rebind rewrites '?' placeholders to '$n' for postgres. Queries in this
// package are written in the sqlite style and rebound at execution time.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
