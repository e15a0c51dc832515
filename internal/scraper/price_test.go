package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"float", 1.95, "1.95"},
		{"integer float", 2.0, "2"},
		{"plain string", "1.95", "1.95"},
		{"string with currency", "1,95 €", "1.95"},
		{"string with whitespace", " 2.50 EUR", "2.5"},
		{"object with amount", map[string]interface{}{"amount": 3.25}, "3.25"},
		{"object with value", map[string]interface{}{"value": "4,10"}, "4.1"},
		{"nested string amount", map[string]interface{}{"amount": "0,89 €"}, "0.89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePrice(tt.input)
			require.True(t, got.Valid)
			assert.Equal(t, tt.want, got.Decimal.String())
		})
	}
}

func TestParsePriceInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"nil", nil},
		{"empty string", ""},
		{"no digits", "gratis"},
		{"empty object", map[string]interface{}{}},
		{"object with nil amount", map[string]interface{}{"amount": nil}},
		{"bool", true},
		{"list", []interface{}{1.95}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, parsePrice(tt.input).Valid)
		})
	}
}
