package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	outcomes  repository.OutcomeRepository
	documents repository.DocumentRepository
	logger    *slog.Logger
}

func NewService(outcomes repository.OutcomeRepository, documents repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{outcomes: outcomes, documents: documents, logger: logger}
}

// ExportOutcomesXLSX returns an XLSX workbook (as bytes) with one row per
// stored outcome. Failed runs are included with their failure reason so the
// workbook doubles as an audit sheet.
func (s *Service) ExportOutcomesXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	outcomes, err := s.outcomes.ListAllOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Processed At",
		"Filename",
		"Outcome",
		"Vendor",
		"Invoice Number",
		"Issue Date",
		"Due Date",
		"Total",
		"Currency",
		"Confidence",
		"Attempts",
		"Anomalies / Failure",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, o := range outcomes {
		filename := ""
		if ref, err := s.documents.GetDocument(ctx, o.DocumentID); err == nil && ref != nil {
			filename = ref.Filename
		}

		fields := o.Fields
		if fields == nil {
			fields = &entity.InvoiceFields{}
		}

		confidence := ""
		if last := o.LastAttempt(); last != nil {
			confidence = fmt.Sprintf("%.2f", last.Confidence)
		}

		remarks := strings.Join(o.AnomalyReasons, "; ")
		if o.Kind == constants.OutcomeFailed {
			remarks = o.FailureReason
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, o.CreatedAt.UTC().Format("2006-01-02 15:04"))
		write(2, filename)
		write(3, string(o.Kind))
		write(4, fields.VendorName)
		write(5, fields.InvoiceNumber)
		write(6, fields.IssueDate)
		write(7, fields.DueDate)
		write(8, fields.TotalAmount)
		write(9, fields.CurrencyCode)
		write(10, confidence)
		write(11, len(o.Attempts))
		write(12, truncate(remarks, 140))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 17) // processed at
	_ = f.SetColWidth(sheet, "B", "B", 32) // filename
	_ = f.SetColWidth(sheet, "C", "C", 12) // outcome
	_ = f.SetColWidth(sheet, "D", "D", 26) // vendor
	_ = f.SetColWidth(sheet, "E", "G", 14) // number, dates
	_ = f.SetColWidth(sheet, "H", "I", 10) // total, currency
	_ = f.SetColWidth(sheet, "L", "L", 48) // remarks

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(outcomes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n - 1
	// back up to a rune boundary so a multi-byte character is never split
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
