package llm

import (
	"context"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// ChatClient is the transport-level contract to the language-model backend.
// Implementations must support cancellation mid-call; timeouts are enforced
// by the caller.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
	ModelName() string
}

// ExtractRequest carries everything the extraction capability needs for one
// attempt. MissingFields is set on retries so the prompt can steer the model
// toward the fields the previous attempt failed to produce.
type ExtractRequest struct {
	OCRText       string
	Filename      string
	AttemptIndex  int
	MissingFields []string
}

// FieldExtractor is Stage 2 of the pipeline: OCR text -> structured fields.
// Partial output is not an error: absent fields stay zero-valued. Completely
// unparseable model output returns common.ErrExtractionParse.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (entity.InvoiceFields, []byte /*rawJSON*/, error)
}

// AnomalyRequest carries accepted fields plus the allow-list verdict into
// the anomaly stage.
type AnomalyRequest struct {
	Fields            entity.InvoiceFields
	VendorAllowlisted bool
}

// AnomalyScorer flags concerns on an otherwise valid extraction. An empty
// slice means no anomaly. Errors here never fail the run by default; the
// engine degrades to an accepted outcome with an audit note.
type AnomalyScorer interface {
	ScoreAnomalies(ctx context.Context, req AnomalyRequest) ([]string, error)
}
