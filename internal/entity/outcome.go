package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
)

// Attempt is one OCR->Extract->Validate pass for a document. Attempts are
// append-only: a retry appends a new attempt, it never mutates a past one.
type Attempt struct {
	Index      int                `json:"index"` // 0-based, contiguous
	OCRText    string             `json:"ocr_text"`
	OCRQuality float32            `json:"ocr_quality"` // 0..1 per-page signal
	Fields     *InvoiceFields     `json:"fields,omitempty"`
	Confidence float32            `json:"confidence"`
	Verdict    constants.Verdict  `json:"verdict"`
	Timestamp  time.Time          `json:"timestamp"`
	OCRBackend string             `json:"ocr_backend"`
	LLMModel   string             `json:"llm_model,omitempty"`
}

// Outcome is the terminal record of one pipeline run. Created exactly once
// per run, immutable after creation.
type Outcome struct {
	ID             uuid.UUID             `json:"id"`
	DocumentID     uuid.UUID             `json:"document_id"`
	Kind           constants.OutcomeKind `json:"kind"`
	Fields         *InvoiceFields        `json:"fields,omitempty"`
	Attempts       []Attempt             `json:"attempts"`
	FailureReason  string                `json:"failure_reason,omitempty"`
	AnomalyReasons []string              `json:"anomaly_reasons,omitempty"`
	AuditNotes     []string              `json:"audit_notes,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// LastAttempt returns the final attempt, or nil when no attempt was recorded
// (OCR failed before attempt 0 was created).
func (o *Outcome) LastAttempt() *Attempt {
	if len(o.Attempts) == 0 {
		return nil
	}
	return &o.Attempts[len(o.Attempts)-1]
}
