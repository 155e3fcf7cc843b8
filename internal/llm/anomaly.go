package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

const anomalySystemPrompt = "You are a senior financial fraud analyst. " +
	"Analyze the invoice data and identify suspicious patterns: suspiciously round totals, " +
	"vague or generic line item descriptions, amounts just below common approval thresholds, " +
	"misspelled vendor names, tax amounts inconsistent with the total. " +
	`Return ONLY JSON: {"anomalies": ["description of each anomaly found"]}. ` +
	"If nothing is suspicious return an empty list."

// ReasonVendorNotRecognized is appended when the vendor is absent from the
// allow-list; it comes from the lookup, not the model.
const ReasonVendorNotRecognized = "vendor not recognized"

// Scorer implements AnomalyScorer with the language model, falling back to
// rule-based checks when the model call or its output is unusable.
type Scorer struct {
	client ChatClient
	logger *slog.Logger
}

func NewScorer(client ChatClient, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{client: client, logger: logger}
}

func (s *Scorer) ScoreAnomalies(ctx context.Context, req AnomalyRequest) ([]string, error) {
	rid := uuid.New().String()
	start := time.Now()

	reasons, err := s.modelAnomalies(ctx, req.Fields)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// model down or its output unusable: the deterministic checks and
		// the allow-list verdict below still apply
		s.logger.Warn("llm.anomaly.model_fallback", "req_id", rid, "error", err)
		reasons = nil
	}

	// the allow-list verdict is authoritative; the model never sees it
	if !req.VendorAllowlisted {
		reasons = append(reasons, ReasonVendorNotRecognized)
	} else {
		reasons = filterVendorReasons(reasons)
	}
	reasons = append(reasons, RuleBasedAnomalies(req.Fields)...)
	reasons = dedupe(reasons)

	s.logger.Info("llm.anomaly.ok",
		"req_id", rid,
		"reasons", len(reasons),
		"allowlisted", req.VendorAllowlisted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return reasons, nil
}

func (s *Scorer) modelAnomalies(ctx context.Context, fields entity.InvoiceFields) ([]string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	content, err := s.client.Complete(ctx, anomalySystemPrompt, "Invoice data:\n"+string(payload))
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	obj := ExtractJSONObject(content)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in anomaly output")
	}
	var out struct {
		Anomalies []string `json:"anomalies"`
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, fmt.Errorf("decode anomaly output: %w", err)
	}
	var reasons []string
	for _, a := range out.Anomalies {
		if a = strings.TrimSpace(a); a != "" {
			reasons = append(reasons, a)
		}
	}
	return reasons, nil
}

// RuleBasedAnomalies applies deterministic checks that need no model:
// negative amounts, totals inconsistent with line items, and amounts just
// below round approval thresholds. Also usable standalone as a fallback.
func RuleBasedAnomalies(f entity.InvoiceFields) []string {
	var reasons []string

	if v, ok := parseAmount(f.TotalAmount); ok {
		if v < 0 {
			reasons = append(reasons, fmt.Sprintf("negative total amount: %s", f.TotalAmount))
		}
		for _, threshold := range []float64{1000, 5000, 10000} {
			if v < threshold && v >= threshold-1 {
				reasons = append(reasons, fmt.Sprintf("total %s just below approval threshold %.0f", f.TotalAmount, threshold))
			}
		}
	}
	if v, ok := parseAmount(f.TaxAmount); ok && v < 0 {
		reasons = append(reasons, fmt.Sprintf("negative tax amount: %s", f.TaxAmount))
	}

	if len(f.LineItems) > 0 && f.TotalAmount != "" {
		var sum float64
		complete := true
		for _, li := range f.LineItems {
			v, ok := parseAmount(li.Amount)
			if !ok {
				complete = false
				break
			}
			sum += v
		}
		total, ok := parseAmount(f.TotalAmount)
		if complete && ok {
			tax, _ := parseAmount(f.TaxAmount)
			if diff := total - sum - tax; diff > 0.01 || diff < -0.01 {
				reasons = append(reasons,
					fmt.Sprintf("line items (%.2f) plus tax (%.2f) do not add up to total (%.2f)", sum, tax, total))
			}
		}
	}

	return reasons
}

// filterVendorReasons drops vendor-name complaints for allow-listed vendors:
// a pre-trusted identity should not be flagged for looking unfamiliar.
func filterVendorReasons(reasons []string) []string {
	var kept []string
	for _, r := range reasons {
		lower := strings.ToLower(r)
		if strings.Contains(lower, "vendor") || strings.Contains(lower, "company name") ||
			strings.Contains(lower, "suspicious name") || strings.Contains(lower, "generic name") {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
