package entity

// LineItem is one row of an invoice.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`   // decimal
	UnitPrice   string `json:"unit_price,omitempty"` // decimal
	Amount      string `json:"amount,omitempty"`     // decimal
}

// InvoiceFields is the normalized shape we want from the LLM.
// A zero-value field means "not extracted" — distinct from extracted but
// implausible, which the anomaly stage flags without triggering a retry.
type InvoiceFields struct {
	VendorName    string     `json:"vendor_name,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	IssueDate     string     `json:"issue_date,omitempty"` // YYYY-MM-DD
	DueDate       string     `json:"due_date,omitempty"`   // YYYY-MM-DD
	CurrencyCode  string     `json:"currency_code,omitempty"`
	TotalAmount   string     `json:"total_amount,omitempty"` // decimal
	TaxAmount     string     `json:"tax_amount,omitempty"`   // decimal
	LineItems     []LineItem `json:"line_items,omitempty"`
}

// RequiredFieldNames lists the fields validation treats as required.
var RequiredFieldNames = []string{"vendor_name", "invoice_number", "total_amount"}

// MissingRequired returns the names of required fields that were not extracted.
func (f InvoiceFields) MissingRequired() []string {
	var missing []string
	if f.VendorName == "" {
		missing = append(missing, "vendor_name")
	}
	if f.InvoiceNumber == "" {
		missing = append(missing, "invoice_number")
	}
	if f.TotalAmount == "" {
		missing = append(missing, "total_amount")
	}
	return missing
}

// MissingOptional returns the names of optional fields that were not extracted.
func (f InvoiceFields) MissingOptional() []string {
	var missing []string
	if f.IssueDate == "" {
		missing = append(missing, "issue_date")
	}
	if f.DueDate == "" {
		missing = append(missing, "due_date")
	}
	if f.CurrencyCode == "" {
		missing = append(missing, "currency_code")
	}
	if f.TaxAmount == "" {
		missing = append(missing, "tax_amount")
	}
	if len(f.LineItems) == 0 {
		missing = append(missing, "line_items")
	}
	return missing
}

// IsEmpty reports whether nothing at all was extracted.
func (f InvoiceFields) IsEmpty() bool {
	return f.VendorName == "" && f.InvoiceNumber == "" && f.IssueDate == "" &&
		f.DueDate == "" && f.CurrencyCode == "" && f.TotalAmount == "" &&
		f.TaxAmount == "" && len(f.LineItems) == 0
}
