package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ExtractJSONObject strips markdown code fences and leading/trailing prose,
// returning the outermost {...} object, or "" when there is none.
func ExtractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (total -> total_amount, date -> issue_date, ...)
// - Drops null/empty values
// - Coerces numeric -> string for money-ish fields
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to our schema
	renamed("vendor", "vendor_name")
	renamed("merchant_name", "vendor_name")
	renamed("total", "total_amount")
	renamed("tax", "tax_amount")
	renamed("invoice_date", "issue_date")
	renamed("date", "issue_date")
	renamed("currency", "currency_code")
	renamed("items", "line_items")

	// 2) drop null / "" values; coerce money fields to strings
	moneyFields := []string{"total_amount", "tax_amount"}
	coerceMoney := func(m map[string]any, k string) {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				m[k] = fmt.Sprintf("%.2f", t)
			case string:
				s := strings.TrimSpace(t)
				if s == "" || strings.EqualFold(s, "null") {
					delete(m, k)
					dropped = append(dropped, k+"(empty)")
				} else {
					m[k] = strings.NewReplacer(",", "", "$", "", "£", "", "€", "").Replace(s)
				}
			case nil:
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			default:
				// unexpected type -> drop
				delete(m, k)
				dropped = append(dropped, k+"(type)")
			}
		}
	}
	for _, k := range moneyFields {
		coerceMoney(m, k)
	}

	// 3) line items: coerce per-row numerics, drop rows without a description
	if v, ok := m["line_items"]; ok {
		rows, ok := v.([]any)
		if !ok {
			delete(m, "line_items")
			dropped = append(dropped, "line_items(type)")
		} else {
			kept := make([]any, 0, len(rows))
			for _, r := range rows {
				row, ok := r.(map[string]any)
				if !ok {
					dropped = append(dropped, "line_items.row(type)")
					continue
				}
				if d, _ := row["description"].(string); strings.TrimSpace(d) == "" {
					dropped = append(dropped, "line_items.row(no description)")
					continue
				}
				for _, k := range []string{"quantity", "unit_price", "amount", "total"} {
					coerceMoney(row, k)
				}
				if v, ok := row["total"]; ok {
					if _, exists := row["amount"]; !exists {
						row["amount"] = v
					}
					delete(row, "total")
				}
				for k := range row {
					switch k {
					case "description", "quantity", "unit_price", "amount":
					default:
						delete(row, k)
					}
				}
				kept = append(kept, row)
			}
			if len(kept) > 0 {
				m["line_items"] = kept
			} else {
				delete(m, "line_items")
			}
		}
	}

	// 4) normalize currency casing
	if v, ok := m["currency_code"].(string); ok {
		m["currency_code"] = strings.ToUpper(strings.TrimSpace(v))
	}

	// 5) remove unknown keys (everything not in the schema set below)
	allowed := map[string]struct{}{
		"vendor_name": {}, "invoice_number": {}, "issue_date": {}, "due_date": {},
		"currency_code": {}, "total_amount": {}, "tax_amount": {}, "line_items": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	// 6) trim obvious strings
	trimKeys := []string{"vendor_name", "invoice_number", "issue_date", "due_date", "currency_code"}
	for _, k := range trimKeys {
		if v, ok := m[k].(string); ok {
			s := strings.TrimSpace(v)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
