package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPromptFirstAttemptHasNoFocus(t *testing.T) {
	sys := BuildSystemPrompt(ExtractRequest{OCRText: "..."})
	assert.NotContains(t, sys, "previous pass")
}

func TestBuildSystemPromptRetryNamesMissingFields(t *testing.T) {
	sys := BuildSystemPrompt(ExtractRequest{
		AttemptIndex:  2,
		MissingFields: []string{"vendor_name", "issue_date"},
	})
	assert.Contains(t, sys, "vendor_name, issue_date")
}

func TestBuildUserPromptTruncatesLongText(t *testing.T) {
	req := ExtractRequest{OCRText: strings.Repeat("x", maxPromptOCRChars+500)}
	user := BuildUserPrompt(req)
	assert.Contains(t, user, "…(truncated)")
	assert.Less(t, len(user), maxPromptOCRChars+200)
}

func TestBuildUserPromptTruncatesOnRuneBoundary(t *testing.T) {
	// place a two-byte rune straddling the cut point
	txt := strings.Repeat("a", maxPromptOCRChars-1) + "é" + strings.Repeat("b", 100)
	user := BuildUserPrompt(ExtractRequest{OCRText: txt})

	assert.True(t, utf8.ValidString(user), "truncation must not split a rune")
	assert.Contains(t, user, "…(truncated)")
}
