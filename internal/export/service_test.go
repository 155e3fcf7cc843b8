package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*repository.DB, repository.DocumentRepository, repository.OutcomeRepository) {
	t.Helper()
	logger := testLogger()
	db, err := repository.Open(context.Background(), common.DatabaseConfig{
		Driver: repository.DriverSQLite,
		DSN:    ":memory:",
	}, logger)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(context.Background(), db, logger))
	t.Cleanup(func() { db.Close(logger) })
	return db, repository.NewDocumentRepository(db, logger), repository.NewOutcomeRepository(db, logger)
}

func TestExportOutcomesXLSX(t *testing.T) {
	_, docs, outcomes := setup(t)
	ctx := context.Background()

	ref := entity.DocumentRef{
		ID:         uuid.New(),
		Filename:   "acme-jan.pdf",
		MIMEType:   "application/pdf",
		SourcePath: "/tmp/acme-jan.pdf",
		SizeBytes:  1024,
	}
	require.NoError(t, docs.SaveDocument(ctx, ref))

	accepted := &entity.Outcome{
		ID:         uuid.New(),
		DocumentID: ref.ID,
		Kind:       constants.OutcomeAccepted,
		Fields: &entity.InvoiceFields{
			VendorName:    "Acme Corp",
			InvoiceNumber: "INV-1001",
			IssueDate:     "2026-01-15",
			CurrencyCode:  "USD",
			TotalAmount:   "1250.00",
		},
		Attempts: []entity.Attempt{{
			Index: 0, Confidence: 0.88, Verdict: constants.VerdictProceed,
			Timestamp: time.Now().UTC(), OCRBackend: "structural",
		}},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	failed := &entity.Outcome{
		ID:            uuid.New(),
		DocumentID:    ref.ID,
		Kind:          constants.OutcomeFailed,
		FailureReason: constants.ReasonLowConfidenceExhausted,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, outcomes.SaveOutcome(ctx, accepted))
	require.NoError(t, outcomes.SaveOutcome(ctx, failed))

	svc := NewService(outcomes, docs, testLogger())
	raw, err := svc.ExportOutcomesXLSX(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per outcome")

	assert.Equal(t, "Processed At", rows[0][0])
	assert.Equal(t, "Outcome", rows[0][2])

	// rows come back in created_at order
	acceptedRow := rows[1]
	assert.Equal(t, "acme-jan.pdf", acceptedRow[1])
	assert.Equal(t, "ACCEPTED", acceptedRow[2])
	assert.Equal(t, "Acme Corp", acceptedRow[3])
	assert.Equal(t, "INV-1001", acceptedRow[4])
	assert.Equal(t, "0.88", acceptedRow[9])

	failedRow := rows[2]
	assert.Equal(t, "FAILED", failedRow[2])
	assert.Equal(t, constants.ReasonLowConfidenceExhausted, failedRow[11])
}

func TestExportEmptyDatabase(t *testing.T) {
	_, docs, outcomes := setup(t)

	svc := NewService(outcomes, docs, testLogger())
	raw, err := svc.ExportOutcomesXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdef", 5))
	assert.Equal(t, "whole", truncate("whole", 0))

	// the cut must land on a rune boundary, not inside a multi-byte rune
	got := truncate("abécdef", 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "ab…", got)
}
