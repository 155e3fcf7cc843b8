package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/allowlist"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/document"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/llm"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/ocr"
)

// Engine is the extraction state machine: OCR -> Extract -> Validate ->
// {Retry -> Extract | Anomaly -> Accepted/Anomalous | Failed}. One Engine
// instance is safe for concurrent runs; all per-run state lives on the stack.
//
// Stage errors the machine has a transition for (retry, degrade) are absorbed
// into the Outcome. Only unsupported input and caller cancellation surface as
// Go errors.
type Engine struct {
	ocr       ocr.TextExtractor
	extractor llm.FieldExtractor
	anomalies llm.AnomalyScorer
	allow     allowlist.Lookup
	cfg       common.PipelineConfig
	llmModel  string
	logger    *slog.Logger
}

func NewEngine(
	textExtractor ocr.TextExtractor,
	fieldExtractor llm.FieldExtractor,
	anomalyScorer llm.AnomalyScorer,
	allow allowlist.Lookup,
	cfg common.PipelineConfig,
	llmModel string,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	// zero is a legal "accept everything" threshold; only negatives are
	// treated as unset
	if cfg.ProceedThreshold < 0 {
		cfg.ProceedThreshold = constants.DefaultProceedThreshold
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	return &Engine{
		ocr:       textExtractor,
		extractor: fieldExtractor,
		anomalies: anomalyScorer,
		allow:     allow,
		cfg:       cfg,
		llmModel:  llmModel,
		logger:    logger,
	}
}

// Run drives one document from OCR to a terminal outcome. The returned error
// is non-nil only for unsupported input (before any attempt is created) or
// when ctx is cancelled mid-run; every business-logic failure comes back as
// a FAILED outcome instead.
func (e *Engine) Run(ctx context.Context, ref entity.DocumentRef, content []byte) (*entity.Outcome, error) {
	if err := document.CheckMIME(ref.MIMEType, content); err != nil {
		return nil, err
	}

	log := e.logger.With("document_id", ref.ID)
	outcome := &entity.Outcome{
		ID:         uuid.New(),
		DocumentID: ref.ID,
		CreatedAt:  time.Now().UTC(),
	}

	// OCR runs once per pipeline run. Its failure is fatal, never retried:
	// the retry budget is reserved for extraction-quality issues, and a
	// document whose content defeats the OCR backend will keep defeating it.
	ocrRes, err := e.runOCR(ctx, ref, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("pipeline.ocr.failed", "error", err)
		outcome.Kind = constants.OutcomeFailed
		outcome.FailureReason = constants.ReasonOCRFailed
		outcome.AuditNotes = append(outcome.AuditNotes, fmt.Sprintf("ocr: %v", err))
		return outcome, nil
	}
	log.Info("pipeline.ocr.ok", "method", ocrRes.Method, "pages", ocrRes.Pages, "quality", ocrRes.Quality, "bytes", len(ocrRes.Text))

	// Extract/Validate loop: attempt 0 plus up to RetryBudget retries, all
	// against the same OCR text.
	var missing []string
	for attempt := 0; attempt <= e.cfg.RetryBudget; attempt++ {
		fields, extractErr := e.runExtract(ctx, ocrRes, ref, attempt, missing)
		if extractErr != nil && ctx.Err() != nil {
			// cancelled mid-call: abort without recording a partial attempt
			return nil, ctx.Err()
		}

		rec := entity.Attempt{
			Index:      attempt,
			OCRText:    ocrRes.Text,
			OCRQuality: ocrRes.Quality,
			Timestamp:  time.Now().UTC(),
			OCRBackend: e.ocr.Name(),
			LLMModel:   e.llmModel,
		}
		var attemptFields entity.InvoiceFields
		if extractErr == nil {
			attemptFields = fields
			rec.Fields = &fields
		} else {
			// parse errors and transient adapter errors are the same thing
			// here: this attempt yielded no usable data. Validation's
			// confidence math decides retry-vs-fail in one place.
			log.Warn("pipeline.extract.unusable", "attempt", attempt, "error", extractErr)
			outcome.AuditNotes = append(outcome.AuditNotes, fmt.Sprintf("attempt %d extract: %v", attempt, extractErr))
		}

		rec.Confidence = Score(ocrRes.Quality, attemptFields)
		switch {
		case rec.Confidence >= e.cfg.ProceedThreshold:
			rec.Verdict = constants.VerdictProceed
		case attempt < e.cfg.RetryBudget:
			rec.Verdict = constants.VerdictRetry
		default:
			rec.Verdict = constants.VerdictFail
		}
		outcome.Attempts = append(outcome.Attempts, rec)
		log.Info("pipeline.validate",
			"attempt", attempt,
			"confidence", rec.Confidence,
			"threshold", e.cfg.ProceedThreshold,
			"verdict", rec.Verdict,
		)

		switch rec.Verdict {
		case constants.VerdictProceed:
			outcome.Fields = rec.Fields
			return e.runAnomaly(ctx, ref, outcome, attemptFields, log)
		case constants.VerdictRetry:
			missing = append(attemptFields.MissingRequired(), attemptFields.MissingOptional()...)
		case constants.VerdictFail:
			outcome.Kind = constants.OutcomeFailed
			outcome.FailureReason = constants.ReasonLowConfidenceExhausted
			return outcome, nil
		}
	}

	// unreachable: the loop always ends in proceed or fail
	outcome.Kind = constants.OutcomeFailed
	outcome.FailureReason = constants.ReasonLowConfidenceExhausted
	return outcome, nil
}

func (e *Engine) runOCR(ctx context.Context, ref entity.DocumentRef, content []byte) (ocr.Result, error) {
	callCtx, cancel := e.stageContext(ctx, e.cfg.OCRTimeout)
	defer cancel()
	return e.ocr.Extract(callCtx, ref, content)
}

func (e *Engine) runExtract(ctx context.Context, ocrRes ocr.Result, ref entity.DocumentRef, attempt int, missing []string) (entity.InvoiceFields, error) {
	callCtx, cancel := e.stageContext(ctx, e.cfg.ExtractTimeout)
	defer cancel()
	fields, _, err := e.extractor.ExtractFields(callCtx, llm.ExtractRequest{
		OCRText:       ocrRes.Text,
		Filename:      ref.Filename,
		AttemptIndex:  attempt,
		MissingFields: missing,
	})
	return fields, err
}

// runAnomaly is the terminal stage after a proceed verdict. A failing
// anomaly check degrades to Accepted with an audit note rather than
// discarding an otherwise-good extraction, unless configured fatal.
func (e *Engine) runAnomaly(ctx context.Context, ref entity.DocumentRef, outcome *entity.Outcome, fields entity.InvoiceFields, log *slog.Logger) (*entity.Outcome, error) {
	callCtx, cancel := e.stageContext(ctx, e.cfg.AnomalyTimeout)
	defer cancel()

	reasons, err := e.scoreAnomalies(callCtx, fields)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if e.cfg.AnomalyFailureFatal {
			log.Error("pipeline.anomaly.failed", "error", err)
			outcome.Kind = constants.OutcomeFailed
			outcome.FailureReason = constants.ReasonAnomalyCheckFailed
			return outcome, nil
		}
		log.Warn("pipeline.anomaly.degraded", "error", err)
		outcome.Kind = constants.OutcomeAccepted
		outcome.AuditNotes = append(outcome.AuditNotes, fmt.Sprintf("anomaly check skipped: %v", err))
		return outcome, nil
	}

	if len(reasons) > 0 {
		log.Warn("pipeline.anomaly.flagged", "reasons", reasons)
		outcome.Kind = constants.OutcomeAnomalous
		outcome.AnomalyReasons = reasons
		return outcome, nil
	}
	log.Info("pipeline.accepted", "attempts", len(outcome.Attempts))
	outcome.Kind = constants.OutcomeAccepted
	return outcome, nil
}

func (e *Engine) scoreAnomalies(ctx context.Context, fields entity.InvoiceFields) ([]string, error) {
	allowlisted, err := e.allow.IsActiveVendor(ctx, fields.VendorName)
	if err != nil {
		return nil, fmt.Errorf("allowlist lookup: %w", err)
	}
	return e.anomalies.ScoreAnomalies(ctx, llm.AnomalyRequest{
		Fields:            fields,
		VendorAllowlisted: allowlisted,
	})
}

// stageContext bounds one external call. Zero timeout means the parent ctx
// alone governs the call (tests rely on this).
func (e *Engine) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
