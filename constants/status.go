package constants

// OutcomeKind is the terminal state of a pipeline run.
type OutcomeKind string

// Stable values (store these exact strings in DB).
const (
	OutcomeAccepted  OutcomeKind = "ACCEPTED"  // validated, no anomalies
	OutcomeAnomalous OutcomeKind = "ANOMALOUS" // validated but flagged for review
	OutcomeFailed    OutcomeKind = "FAILED"    // terminal failure
)

// Verdict is the decision the Validate stage makes for one attempt.
type Verdict string

const (
	VerdictProceed Verdict = "proceed" // confidence met the threshold
	VerdictRetry   Verdict = "retry"   // below threshold, budget remains
	VerdictFail    Verdict = "fail"    // below threshold, budget exhausted
)

// Failure reasons carried on a FAILED outcome.
const (
	ReasonOCRFailed              = "OCR_FAILED"
	ReasonLowConfidenceExhausted = "LOW_CONFIDENCE_EXHAUSTED"
	ReasonAnomalyCheckFailed     = "ANOMALY_CHECK_FAILED" // only with ANOMALY_FAILURE_FATAL
)

// Pipeline defaults; overridable via config.
const (
	DefaultProceedThreshold float32 = 0.75
	DefaultRetryBudget              = 2
)
