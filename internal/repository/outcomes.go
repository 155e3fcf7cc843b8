package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// OutcomeRepository stores terminal pipeline records. SaveOutcome satisfies
// pipeline.ResultSink. Outcomes are append-only: a reprocess inserts a new
// row, the prior one is never touched.
type OutcomeRepository interface {
	SaveOutcome(ctx context.Context, outcome *entity.Outcome) error
	GetLatestOutcome(ctx context.Context, documentID uuid.UUID) (*entity.Outcome, error)
	ListOutcomes(ctx context.Context, documentID uuid.UUID) ([]*entity.Outcome, error)
	ListAllOutcomes(ctx context.Context) ([]*entity.Outcome, error)
}

type outcomeRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewOutcomeRepository(db *DB, logger *slog.Logger) OutcomeRepository {
	return &outcomeRepository{db: db, logger: logger}
}

func (r *outcomeRepository) SaveOutcome(ctx context.Context, o *entity.Outcome) error {
	fields, err := marshalNullable(o.Fields)
	if err != nil {
		return common.NewAppError("DB_INSERT", "failed to encode fields", err)
	}
	attempts, err := json.Marshal(o.Attempts)
	if err != nil {
		return common.NewAppError("DB_INSERT", "failed to encode attempts", err)
	}
	anomalies, err := marshalNullable(o.AnomalyReasons)
	if err != nil {
		return common.NewAppError("DB_INSERT", "failed to encode anomaly reasons", err)
	}
	notes, err := marshalNullable(o.AuditNotes)
	if err != nil {
		return common.NewAppError("DB_INSERT", "failed to encode audit notes", err)
	}

	q := r.db.rebind(`INSERT INTO outcomes
		(id, document_id, kind, fields, attempts, failure_reason, anomaly_reasons, audit_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, q,
		o.ID.String(), o.DocumentID.String(), string(o.Kind),
		fields, string(attempts), o.FailureReason, anomalies, notes, o.CreatedAt)
	if err != nil {
		r.logger.Error("failed to save outcome", "outcome_id", o.ID, "document_id", o.DocumentID, "error", err)
		return common.NewAppError("DB_INSERT", "failed to save outcome", err)
	}
	r.logger.Debug("outcome saved", "outcome_id", o.ID, "kind", o.Kind)
	return nil
}

const outcomeColumns = `id, document_id, kind, fields, attempts, failure_reason, anomaly_reasons, audit_notes, created_at`

func (r *outcomeRepository) GetLatestOutcome(ctx context.Context, documentID uuid.UUID) (*entity.Outcome, error) {
	q := r.db.rebind(`SELECT ` + outcomeColumns + ` FROM outcomes
		WHERE document_id = ? ORDER BY created_at DESC LIMIT 1`)
	o, err := scanOutcome(r.db.QueryRowContext(ctx, q, documentID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("OUTCOME_NOT_FOUND", "no outcome for document", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get outcome", "document_id", documentID, "error", err)
		return nil, err
	}
	return o, nil
}

func (r *outcomeRepository) ListOutcomes(ctx context.Context, documentID uuid.UUID) ([]*entity.Outcome, error) {
	q := r.db.rebind(`SELECT ` + outcomeColumns + ` FROM outcomes
		WHERE document_id = ? ORDER BY created_at`)
	return r.queryOutcomes(ctx, q, documentID.String())
}

func (r *outcomeRepository) ListAllOutcomes(ctx context.Context) ([]*entity.Outcome, error) {
	return r.queryOutcomes(ctx, `SELECT `+outcomeColumns+` FROM outcomes ORDER BY created_at`)
}

func (r *outcomeRepository) queryOutcomes(ctx context.Context, q string, args ...any) ([]*entity.Outcome, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.NewAppError("DB_QUERY", "failed to list outcomes", err)
	}
	defer rows.Close()

	var result []*entity.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*entity.Outcome, error) {
	var (
		o              entity.Outcome
		rawID, rawDoc  string
		kind           string
		fields         sql.NullString
		attempts       string
		anomalies      sql.NullString
		notes          sql.NullString
	)
	err := row.Scan(&rawID, &rawDoc, &kind, &fields, &attempts, &o.FailureReason, &anomalies, &notes, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if o.ID, err = uuid.Parse(rawID); err != nil {
		return nil, common.NewAppError("DB_QUERY", "corrupt outcome id", err)
	}
	if o.DocumentID, err = uuid.Parse(rawDoc); err != nil {
		return nil, common.NewAppError("DB_QUERY", "corrupt document id", err)
	}
	o.Kind = constants.OutcomeKind(kind)
	if err := json.Unmarshal([]byte(attempts), &o.Attempts); err != nil {
		return nil, common.NewAppError("DB_QUERY", "corrupt attempts payload", err)
	}
	if fields.Valid && fields.String != "" {
		o.Fields = &entity.InvoiceFields{}
		if err := json.Unmarshal([]byte(fields.String), o.Fields); err != nil {
			return nil, common.NewAppError("DB_QUERY", "corrupt fields payload", err)
		}
	}
	if anomalies.Valid && anomalies.String != "" {
		if err := json.Unmarshal([]byte(anomalies.String), &o.AnomalyReasons); err != nil {
			return nil, common.NewAppError("DB_QUERY", "corrupt anomaly payload", err)
		}
	}
	if notes.Valid && notes.String != "" {
		if err := json.Unmarshal([]byte(notes.String), &o.AuditNotes); err != nil {
			return nil, common.NewAppError("DB_QUERY", "corrupt audit payload", err)
		}
	}
	return &o, nil
}

// marshalNullable encodes v as JSON, mapping nil pointers and empty slices
// to SQL NULL instead of the string "null".
func marshalNullable(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case *entity.InvoiceFields:
		if t == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
