package allowlist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherIsActiveVendor(t *testing.T) {
	m := NewMatcher(StaticList{"Acme Corp", "  Globex  ", "Initech LLC"}, nil)

	tests := []struct {
		name   string
		vendor string
		want   bool
	}{
		{"exact match", "Acme Corp", true},
		{"case insensitive", "ACME CORP", true},
		{"surrounding whitespace", "  acme corp ", true},
		{"entry whitespace trimmed", "globex", true},
		{"extracted name is longer", "Acme Corp International", true},
		{"extracted name is shorter", "Initech", true},
		{"unknown vendor", "Umbrella Inc", false},
		{"empty vendor never matches", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.IsActiveVendor(context.Background(), tt.vendor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type failingSource struct{}

func (failingSource) ListActiveVendors(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestMatcherPropagatesSourceError(t *testing.T) {
	m := NewMatcher(failingSource{}, nil)
	_, err := m.IsActiveVendor(context.Background(), "Acme Corp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active vendors")
}

func TestMatcherSkipsBlankEntries(t *testing.T) {
	m := NewMatcher(StaticList{"", "   "}, nil)
	// blank entries must not substring-match everything
	got, err := m.IsActiveVendor(context.Background(), "Acme Corp")
	require.NoError(t, err)
	assert.False(t, got)
}
