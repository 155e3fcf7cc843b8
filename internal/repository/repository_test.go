package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), common.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    ":memory:",
	}, logger)
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db, logger))
	t.Cleanup(func() { db.Close(logger) })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRef() entity.DocumentRef {
	return entity.DocumentRef{
		ID:         uuid.New(),
		Filename:   "invoice.pdf",
		MIMEType:   "application/pdf",
		SourcePath: "/tmp/uploads/invoice.pdf",
		SizeBytes:  2048,
	}
}

func sampleOutcome(docID uuid.UUID, createdAt time.Time) *entity.Outcome {
	return &entity.Outcome{
		ID:         uuid.New(),
		DocumentID: docID,
		Kind:       constants.OutcomeAccepted,
		Fields: &entity.InvoiceFields{
			VendorName:    "Acme Corp",
			InvoiceNumber: "INV-1001",
			TotalAmount:   "1250.00",
			LineItems:     []entity.LineItem{{Description: "Widgets", Amount: "1250.00"}},
		},
		Attempts: []entity.Attempt{{
			Index:      0,
			OCRText:    "ACME CORP Invoice INV-1001",
			OCRQuality: 0.9,
			Confidence: 0.82,
			Verdict:    constants.VerdictProceed,
			Timestamp:  createdAt,
			OCRBackend: "structural",
			LLMModel:   "test-model",
		}},
		CreatedAt: createdAt,
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepository(db, testLogger())
	ctx := context.Background()

	ref := sampleRef()
	require.NoError(t, repo.SaveDocument(ctx, ref))

	got, err := repo.GetDocument(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, *got)

	all, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ref.ID, all[0].ID)
}

func TestGetDocumentNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepository(db, testLogger())

	_, err := repo.GetDocument(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOutcomeRoundTrip(t *testing.T) {
	db := testDB(t)
	docs := NewDocumentRepository(db, testLogger())
	outcomes := NewOutcomeRepository(db, testLogger())
	ctx := context.Background()

	ref := sampleRef()
	require.NoError(t, docs.SaveDocument(ctx, ref))

	o := sampleOutcome(ref.ID, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, outcomes.SaveOutcome(ctx, o))

	got, err := outcomes.GetLatestOutcome(ctx, ref.ID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.DocumentID, got.DocumentID)
	assert.Equal(t, constants.OutcomeAccepted, got.Kind)
	require.NotNil(t, got.Fields)
	assert.Equal(t, "Acme Corp", got.Fields.VendorName)
	require.Len(t, got.Attempts, 1)
	assert.Equal(t, constants.VerdictProceed, got.Attempts[0].Verdict)
	assert.Equal(t, float32(0.82), got.Attempts[0].Confidence)
	assert.Empty(t, got.AnomalyReasons)
	assert.Empty(t, got.AuditNotes)
}

func TestOutcomeFailedRunKeepsFailureReason(t *testing.T) {
	db := testDB(t)
	docs := NewDocumentRepository(db, testLogger())
	outcomes := NewOutcomeRepository(db, testLogger())
	ctx := context.Background()

	ref := sampleRef()
	require.NoError(t, docs.SaveDocument(ctx, ref))

	o := &entity.Outcome{
		ID:            uuid.New(),
		DocumentID:    ref.ID,
		Kind:          constants.OutcomeFailed,
		FailureReason: constants.ReasonOCRFailed,
		AuditNotes:    []string{"ocr: exit status 1"},
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, outcomes.SaveOutcome(ctx, o))

	got, err := outcomes.GetLatestOutcome(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeFailed, got.Kind)
	assert.Equal(t, constants.ReasonOCRFailed, got.FailureReason)
	assert.Nil(t, got.Fields)
	assert.Empty(t, got.Attempts)
	assert.Equal(t, []string{"ocr: exit status 1"}, got.AuditNotes)
}

func TestGetLatestOutcomePicksNewest(t *testing.T) {
	db := testDB(t)
	docs := NewDocumentRepository(db, testLogger())
	outcomes := NewOutcomeRepository(db, testLogger())
	ctx := context.Background()

	ref := sampleRef()
	require.NoError(t, docs.SaveDocument(ctx, ref))

	base := time.Now().UTC().Truncate(time.Second)
	first := sampleOutcome(ref.ID, base.Add(-time.Hour))
	second := sampleOutcome(ref.ID, base)
	second.Kind = constants.OutcomeAnomalous
	second.AnomalyReasons = []string{"vendor not recognized"}

	require.NoError(t, outcomes.SaveOutcome(ctx, first))
	require.NoError(t, outcomes.SaveOutcome(ctx, second))

	got, err := outcomes.GetLatestOutcome(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, []string{"vendor not recognized"}, got.AnomalyReasons)

	history, err := outcomes.ListOutcomes(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "reprocessing appends, never replaces")
	assert.Equal(t, first.ID, history[0].ID)

	all, err := outcomes.ListAllOutcomes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetLatestOutcomeNotFound(t *testing.T) {
	db := testDB(t)
	outcomes := NewOutcomeRepository(db, testLogger())

	_, err := outcomes.GetLatestOutcome(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestVendorLifecycle(t *testing.T) {
	db := testDB(t)
	vendors := NewVendorRepository(db, testLogger())
	ctx := context.Background()

	require.NoError(t, vendors.AddVendor(ctx, "Acme Corp"))
	require.NoError(t, vendors.AddVendor(ctx, "Globex"))

	active, err := vendors.ListActiveVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, active)

	require.NoError(t, vendors.DeactivateVendor(ctx, "Globex"))
	active, err = vendors.ListActiveVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp"}, active)

	// re-adding reactivates
	require.NoError(t, vendors.AddVendor(ctx, "Globex"))
	active, err = vendors.ListActiveVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, active)
}

func TestAddVendorRejectsBlank(t *testing.T) {
	db := testDB(t)
	vendors := NewVendorRepository(db, testLogger())

	err := vendors.AddVendor(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDeactivateUnknownVendor(t *testing.T) {
	db := testDB(t)
	vendors := NewVendorRepository(db, testLogger())

	err := vendors.DeactivateVendor(context.Background(), "Umbrella Inc")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{
		Driver: "oracle",
		DSN:    "whatever",
	}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRebind(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	pg := &DB{driver: DriverPostgres}

	q := `INSERT INTO t (a, b, c) VALUES (?, ?, ?)`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)`, pg.rebind(q))
}
