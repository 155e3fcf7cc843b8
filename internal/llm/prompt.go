package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

const maxPromptOCRChars = 6000

// BuildSystemPrompt composes the extraction system message with formatting
// rules. On retries it appends a focus instruction naming the fields the
// previous attempt failed to extract.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code.",
		"All monetary amounts are decimal strings (e.g. \"1234.50\"), never numbers.",
		"The vendor is the seller or biller. Look for: 'Bill From', 'Seller', 'Vendor', 'From', 'Account Name', or the main business name at the top of the invoice.",
		"For line_items, return each visible row with description, quantity, unit_price, and amount.",
		"Never output null. If a field is not present on the invoice, omit it.",
	}
	if focus := retryFocus(req); focus != "" {
		parts = append(parts, focus)
	}
	return strings.Join(parts, " ")
}

// retryFocus returns the retry steering sentence, or "" on a first attempt.
// It is appended to prompt overrides too, so a custom prompt never loses
// the names of the fields the previous pass missed.
func retryFocus(req ExtractRequest) string {
	if req.AttemptIndex == 0 || len(req.MissingFields) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"A previous pass failed to extract: %s. Re-read the text carefully and extract these fields if they appear anywhere.",
		strings.Join(req.MissingFields, ", "))
}

// BuildUserPrompt packages the filename hint and the OCR text.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if f := strings.TrimSpace(req.Filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\nInvoice text:\n")
	txt := strings.TrimSpace(req.OCRText)
	if len(txt) > maxPromptOCRChars {
		cut := maxPromptOCRChars
		// never split a multi-byte rune
		for cut > 0 && !utf8.RuneStart(txt[cut]) {
			cut--
		}
		b.WriteString(txt[:cut])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(txt)
	}
	return b.String()
}

// LoadPromptOverride reads a custom system prompt from path, if set and the
// file exists. It lets deployments tune extraction for their invoice mix
// without code changes. Falls back to the built-in prompt otherwise.
func LoadPromptOverride(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	if logger == nil {
		logger = slog.Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("llm.prompt.override_unreadable", "path", path, "error", err)
		return ""
	}
	txt := strings.TrimSpace(string(b))
	if txt == "" {
		logger.Warn("llm.prompt.override_empty", "path", path)
		return ""
	}
	logger.Info("llm.prompt.override_loaded", "path", path, "bytes", len(txt))
	return txt
}
