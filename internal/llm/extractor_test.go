package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

type fakeChat struct {
	reply   string
	err     error
	systems []string
	users   []string
}

func (f *fakeChat) Complete(_ context.Context, system, user string) (string, error) {
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.reply, f.err
}

func (f *fakeChat) ModelName() string { return "fake-model" }

func TestExtractFieldsHappyPath(t *testing.T) {
	chat := &fakeChat{reply: "```json\n" + `{
		"vendor": "Acme Corp",
		"invoice_number": "INV-1001",
		"issue_date": "2026-01-15",
		"due_date": "2026-02-14",
		"currency": "usd",
		"total": 1250.00,
		"tax": "250.00",
		"line_items": [{"description": "Widgets", "amount": "1000.00"}]
	}` + "\n```"}

	x := NewExtractor(chat, "", nil)
	fields, raw, err := x.ExtractFields(context.Background(), ExtractRequest{
		OCRText: "ACME CORP ...", Filename: "invoice.pdf",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "Acme Corp", fields.VendorName)
	assert.Equal(t, "INV-1001", fields.InvoiceNumber)
	assert.Equal(t, "USD", fields.CurrencyCode)
	assert.Equal(t, "1250.00", fields.TotalAmount)
	assert.Equal(t, "250.00", fields.TaxAmount)
	require.Len(t, fields.LineItems, 1)
	assert.Equal(t, "Widgets", fields.LineItems[0].Description)
}

func TestExtractFieldsPartialOutputIsNotAnError(t *testing.T) {
	chat := &fakeChat{reply: `{"vendor_name": "Acme Corp"}`}
	x := NewExtractor(chat, "", nil)

	fields, _, err := x.ExtractFields(context.Background(), ExtractRequest{OCRText: "..."})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", fields.VendorName)
	assert.Equal(t, []string{"invoice_number", "total_amount"}, fields.MissingRequired())
}

func TestExtractFieldsNoJSONIsParseError(t *testing.T) {
	chat := &fakeChat{reply: "Sorry, I could not read this document."}
	x := NewExtractor(chat, "", nil)

	_, raw, err := x.ExtractFields(context.Background(), ExtractRequest{OCRText: "..."})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionParse)
	assert.Equal(t, chat.reply, string(raw), "raw output is preserved for the audit trail")
}

func TestExtractFieldsTransportErrorIsNotParseError(t *testing.T) {
	chat := &fakeChat{err: errors.New("502 bad gateway")}
	x := NewExtractor(chat, "", nil)

	_, _, err := x.ExtractFields(context.Background(), ExtractRequest{OCRText: "..."})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrExtractionParse)
}

func TestExtractFieldsRetryPromptNamesMissingFields(t *testing.T) {
	chat := &fakeChat{reply: `{"vendor_name": "Acme Corp"}`}
	x := NewExtractor(chat, "", nil)

	_, _, err := x.ExtractFields(context.Background(), ExtractRequest{
		OCRText:       "...",
		AttemptIndex:  1,
		MissingFields: []string{"invoice_number", "total_amount"},
	})
	require.NoError(t, err)
	require.Len(t, chat.systems, 1)
	assert.Contains(t, chat.systems[0], "invoice_number")
	assert.Contains(t, chat.systems[0], "total_amount")
}

func TestExtractFieldsPromptOverride(t *testing.T) {
	chat := &fakeChat{reply: `{"vendor_name": "Acme Corp"}`}
	x := NewExtractor(chat, "Custom extraction instructions.", nil)

	_, _, err := x.ExtractFields(context.Background(), ExtractRequest{OCRText: "..."})
	require.NoError(t, err)
	require.Len(t, chat.systems, 1)
	assert.Equal(t, "Custom extraction instructions.", chat.systems[0])
}

func TestExtractFieldsPromptOverrideKeepsRetryFocus(t *testing.T) {
	chat := &fakeChat{reply: `{"vendor_name": "Acme Corp"}`}
	x := NewExtractor(chat, "Custom extraction instructions.", nil)

	_, _, err := x.ExtractFields(context.Background(), ExtractRequest{
		OCRText:       "...",
		AttemptIndex:  1,
		MissingFields: []string{"invoice_number", "total_amount"},
	})
	require.NoError(t, err)
	require.Len(t, chat.systems, 1)
	assert.Contains(t, chat.systems[0], "Custom extraction instructions.")
	assert.Contains(t, chat.systems[0], "invoice_number")
	assert.Contains(t, chat.systems[0], "total_amount")
}

func TestExtractFieldsUserPromptCarriesOCRText(t *testing.T) {
	chat := &fakeChat{reply: `{"vendor_name": "Acme Corp"}`}
	x := NewExtractor(chat, "", nil)

	_, _, err := x.ExtractFields(context.Background(), ExtractRequest{
		OCRText: "ACME CORP Invoice INV-1001", Filename: "invoice.pdf",
	})
	require.NoError(t, err)
	require.Len(t, chat.users, 1)
	assert.Contains(t, chat.users[0], "ACME CORP Invoice INV-1001")
	assert.Contains(t, chat.users[0], "JSON Schema")
}
