package stats

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	f := NewFormatter("en-US")

	tests := []struct {
		name string
		in   int64
		want string
	}{
		{"billions keep the M suffix", 1_500_000_000, "$1.5M"},
		{"millions", 2_345_678, "$2.3M"},
		{"exact million", 1_000_000, "$1.0M"},
		{"thousands round half up", 2_500, "$3K"},
		{"thousands round down", 2_499, "$2K"},
		{"below a thousand", 500, "$500"},
		{"zero", 0, "$0"},
		{"thousands rounding up to a million", 999_500, "$1.0M"},
		{"thousands just below the carry", 999_499, "$999K"},
		{"millions rounding up to a billion", 999_950_000, "$1.0M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.FormatMoney(decimal.NewFromInt(tt.in)))
		})
	}
}

func TestFormatMoney_RoundsBeforeChoosingTheUnit(t *testing.T) {
	f := NewFormatter("en-US")

	tests := []struct {
		in   string
		want string
	}{
		{"999.995", "$1K"},
		{"999.994", "$999.99"},
		{"999.5", "$999.5"},
		{"1000", "$1K"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, f.FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	f := NewFormatter("en-US")
	assert.Equal(t, "1,234,567", f.FormatNumber(1234567))
	assert.Equal(t, "42", f.FormatNumber(42))
}

func TestFormatAmount(t *testing.T) {
	f := NewFormatter("en-US")
	assert.Equal(t, "$1,234.5", f.FormatAmount(decimal.RequireFromString("1234.5")))
}

func TestNewFormatter_BadLocaleFallsBack(t *testing.T) {
	f := NewFormatter("not a locale!!")
	assert.NotNil(t, f)
	assert.Equal(t, "$500", f.FormatMoney(decimal.NewFromInt(500)))
}
