package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// Extractor implements FieldExtractor on top of a ChatClient. It validates
// the model's JSON against the invoice schema, repairing what it can; only
// output with no recoverable JSON object at all becomes ErrExtractionParse.
type Extractor struct {
	client       ChatClient
	systemPrompt string // optional override, from config
	logger       *slog.Logger
}

func NewExtractor(client ChatClient, promptOverride string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, systemPrompt: promptOverride, logger: logger}
}

func (e *Extractor) ExtractFields(ctx context.Context, req ExtractRequest) (entity.InvoiceFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", e.client.ModelName(),
		"attempt", req.AttemptIndex,
		"text_len", len(req.OCRText),
		"missing_fields", len(req.MissingFields),
	)

	schema := BuildInvoiceJSONSchema()
	sys := e.systemPrompt
	if sys == "" {
		sys = BuildSystemPrompt(req)
	} else if focus := retryFocus(req); focus != "" {
		sys = sys + " " + focus
	}
	user := BuildUserPrompt(req) + "\n\nReturn ONLY JSON that matches this JSON Schema:\n" + mustJSON(schema)

	content, err := e.client.Complete(ctx, sys, user)
	if err != nil {
		e.logger.Error("llm.extract.call_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceFields{}, nil, fmt.Errorf("llm call: %w", err)
	}

	obj := ExtractJSONObject(content)
	if obj == "" {
		e.logger.Error("llm.extract.no_json",
			"req_id", rid, "raw_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceFields{}, []byte(content), fmt.Errorf("no JSON object in model output: %w", common.ErrExtractionParse)
	}
	rawContent := []byte(obj)

	// lenient repair first, then strict validation
	cleaned, droppedKeys, sErr := NormalizeAndSanitizeJSON(rawContent, e.logger)
	if sErr != nil {
		e.logger.Error("llm.extract.sanitize_failed",
			"req_id", rid, "error", sErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceFields{}, rawContent, fmt.Errorf("sanitize: %v: %w", sErr, common.ErrExtractionParse)
	}
	if err := ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		e.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "dropped", droppedKeys,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceFields{}, rawContent, fmt.Errorf("schema validation: %v: %w", err, common.ErrExtractionParse)
	}

	var out entity.InvoiceFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		e.logger.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.InvoiceFields{}, cleaned, fmt.Errorf("unmarshal fields: %v: %w", err, common.ErrExtractionParse)
	}

	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"vendor", out.VendorName,
		"invoice_number", out.InvoiceNumber,
		"total", out.TotalAmount,
		"line_items", len(out.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, cleaned, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
