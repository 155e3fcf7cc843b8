package pipeline

import (
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// Penalties subtracted from the OCR quality signal per missing field.
// Vendor name, invoice number and total amount are required; a single
// missing required field is enough to sink an attempt below the default
// proceed threshold. Optional fields cost far less.
const (
	requiredFieldPenalty float32 = 0.25
	optionalFieldPenalty float32 = 0.04
)

// Score computes the validation confidence for one attempt. Pure function:
// identical (quality, fields) input always yields the identical score, which
// is what makes reprocessing reproducible against stubbed adapters.
func Score(ocrQuality float32, fields entity.InvoiceFields) float32 {
	score := ocrQuality
	score -= requiredFieldPenalty * float32(len(fields.MissingRequired()))
	score -= optionalFieldPenalty * float32(len(fields.MissingOptional()))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
