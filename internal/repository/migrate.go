package repository

import (
	"context"
	"log/slog"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

// Migrate creates the schema if it does not exist. The DDL is written in the
// portable subset both sqlite and postgres accept: TEXT primary keys for
// UUIDs, TEXT columns for JSON payloads, TIMESTAMP for times.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			filename    TEXT NOT NULL,
			mime_type   TEXT NOT NULL,
			source_path TEXT NOT NULL,
			size_bytes  BIGINT NOT NULL,
			created_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			id              TEXT PRIMARY KEY,
			document_id     TEXT NOT NULL REFERENCES documents(id),
			kind            TEXT NOT NULL,
			fields          TEXT,
			attempts        TEXT NOT NULL,
			failure_reason  TEXT NOT NULL DEFAULT '',
			anomaly_reasons TEXT,
			audit_notes     TEXT,
			created_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_document ON outcomes (document_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("migration failed", "error", err)
			return common.NewAppError("DB_MIGRATE", "schema bootstrap failed", err)
		}
	}
	logger.Info("db.migrate.ok")
	return nil
}
