package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We send it to the model as a structured output constraint and
// also use it locally to validate the response. No field is required at the
// schema level: absence is a validation-stage concern, not a parse error.
func BuildInvoiceJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    decimalProp(),
			"unit_price":  decimalProp(),
			"amount":      decimalProp(),
		},
		"required": []string{"description"},
	}

	props := map[string]any{
		"vendor_name":    map[string]any{"type": "string", "minLength": 1},
		"invoice_number": map[string]any{"type": "string", "minLength": 1},
		"issue_date":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"due_date":       map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"currency_code":  map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"total_amount":   decimalProp(),
		"tax_amount":     decimalProp(),
		"line_items":     map[string]any{"type": "array", "items": lineItem},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // negatives surface as anomalies, not parse errors
	}
}
