package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// DocumentRepository persists document references so a stored document can
// be reprocessed later without re-uploading.
type DocumentRepository interface {
	SaveDocument(ctx context.Context, ref entity.DocumentRef) error
	GetDocument(ctx context.Context, id uuid.UUID) (*entity.DocumentRef, error)
	ListDocuments(ctx context.Context) ([]entity.DocumentRef, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	return &documentRepository{db: db, logger: logger}
}

func (r *documentRepository) SaveDocument(ctx context.Context, ref entity.DocumentRef) error {
	q := r.db.rebind(`INSERT INTO documents (id, filename, mime_type, source_path, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		ref.ID.String(), ref.Filename, ref.MIMEType, ref.SourcePath, ref.SizeBytes, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to save document", "document_id", ref.ID, "error", err)
		return common.NewAppError("DB_INSERT", "failed to save document", err)
	}
	return nil
}

func (r *documentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*entity.DocumentRef, error) {
	q := r.db.rebind(`SELECT id, filename, mime_type, source_path, size_bytes
		FROM documents WHERE id = ?`)
	var ref entity.DocumentRef
	var rawID string
	err := r.db.QueryRowContext(ctx, q, id.String()).
		Scan(&rawID, &ref.Filename, &ref.MIMEType, &ref.SourcePath, &ref.SizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("DOCUMENT_NOT_FOUND", "document not found", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get document", "document_id", id, "error", err)
		return nil, common.NewAppError("DB_QUERY", "failed to get document", err)
	}
	ref.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "corrupt document id", err)
	}
	return &ref, nil
}

func (r *documentRepository) ListDocuments(ctx context.Context) ([]entity.DocumentRef, error) {
	q := `SELECT id, filename, mime_type, source_path, size_bytes FROM documents ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list documents", err)
	}
	defer rows.Close()

	var refs []entity.DocumentRef
	for rows.Next() {
		var ref entity.DocumentRef
		var rawID string
		if err := rows.Scan(&rawID, &ref.Filename, &ref.MIMEType, &ref.SourcePath, &ref.SizeBytes); err != nil {
			return nil, common.NewAppError("DB_QUERY", "failed to scan document", err)
		}
		if ref.ID, err = uuid.Parse(rawID); err != nil {
			return nil, common.NewAppError("DB_QUERY", "corrupt document id", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
