package allowlist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Lookup is the read-only allow-list capability the anomaly stage consults.
// Implementations must be safe for concurrent use.
type Lookup interface {
	IsActiveVendor(ctx context.Context, vendorName string) (bool, error)
}

// VendorSource supplies the active vendor names. Backed by the repository in
// production, by a plain slice in tests.
type VendorSource interface {
	ListActiveVendors(ctx context.Context) ([]string, error)
}

// Matcher checks a vendor identity against the active allow-list entries.
// Instead of querying per name it loads all active vendors and matches
// locally; the lists are small and this avoids a round trip per invoice.
type Matcher struct {
	source VendorSource
	logger *slog.Logger
}

func NewMatcher(source VendorSource, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{source: source, logger: logger}
}

// IsActiveVendor matches case- and space-insensitively; a substring match in
// either direction counts, so "ACME Corp." matches an entry of "acme corp".
func (m *Matcher) IsActiveVendor(ctx context.Context, vendorName string) (bool, error) {
	name := strings.ToLower(strings.TrimSpace(vendorName))
	if name == "" {
		return false, nil
	}

	vendors, err := m.source.ListActiveVendors(ctx)
	if err != nil {
		return false, fmt.Errorf("list active vendors: %w", err)
	}

	for _, v := range vendors {
		entry := strings.ToLower(strings.TrimSpace(v))
		if entry == "" {
			continue
		}
		if name == entry {
			m.logger.Debug("allowlist.exact_match", "vendor", vendorName)
			return true, nil
		}
		if strings.Contains(name, entry) || strings.Contains(entry, name) {
			m.logger.Debug("allowlist.partial_match", "vendor", vendorName, "entry", v)
			return true, nil
		}
	}
	return false, nil
}

// StaticList is a fixed allow-list, handy for tests and single-tenant CLI use.
type StaticList []string

func (s StaticList) ListActiveVendors(context.Context) ([]string, error) {
	return s, nil
}
