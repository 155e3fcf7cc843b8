package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

// VendorRepository manages the vendor allow-list. ListActiveVendors
// satisfies allowlist.VendorSource.
type VendorRepository interface {
	ListActiveVendors(ctx context.Context) ([]string, error)
	AddVendor(ctx context.Context, name string) error
	DeactivateVendor(ctx context.Context, name string) error
}

type vendorRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewVendorRepository(db *DB, logger *slog.Logger) VendorRepository {
	return &vendorRepository{db: db, logger: logger}
}

func (r *vendorRepository) ListActiveVendors(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM vendors WHERE active ORDER BY name`)
	if err != nil {
		r.logger.Error("failed to list vendors", "error", err)
		return nil, common.NewAppError("DB_QUERY", "failed to list vendors", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, common.NewAppError("DB_QUERY", "failed to scan vendor", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *vendorRepository) AddVendor(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return common.NewAppError("VENDOR_INVALID", "vendor name is empty", common.ErrInvalidInput)
	}
	// Re-adding a known vendor reactivates it rather than failing on the
	// unique constraint. Same UPSERT syntax on sqlite and postgres.
	q := r.db.rebind(`INSERT INTO vendors (id, name, active, created_at) VALUES (?, ?, TRUE, ?)
		ON CONFLICT (name) DO UPDATE SET active = TRUE`)
	_, err := r.db.ExecContext(ctx, q, uuid.New().String(), name, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to add vendor", "vendor", name, "error", err)
		return common.NewAppError("DB_INSERT", "failed to add vendor", err)
	}
	r.logger.Info("vendor.added", "vendor", name)
	return nil
}

func (r *vendorRepository) DeactivateVendor(ctx context.Context, name string) error {
	q := r.db.rebind(`UPDATE vendors SET active = FALSE WHERE name = ?`)
	res, err := r.db.ExecContext(ctx, q, strings.TrimSpace(name))
	if err != nil {
		r.logger.Error("failed to deactivate vendor", "vendor", name, "error", err)
		return common.NewAppError("DB_UPDATE", "failed to deactivate vendor", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("VENDOR_NOT_FOUND", "vendor not found", common.ErrNotFound)
	}
	r.logger.Info("vendor.deactivated", "vendor", name)
	return nil
}
