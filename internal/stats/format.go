package stats

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale is used when the configured locale tag cannot be parsed.
const DefaultLocale = "es-CO"

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// Formatter renders amounts and counts for display using a locale's
// digit grouping.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 locale tag such as "es-CO".
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// FormatMoney abbreviates large amounts for the dashboard cards:
//
//	>= 1e9 -> value/1e9 with one decimal and an "M" suffix
//	>= 1e6 -> value/1e6 with one decimal and an "M" suffix
//	>= 1e3 -> value/1e3 rounded to an integer and a "K" suffix
//	else   -> locale-grouped number
//
// The billions branch shares the "M" suffix, so 1.5e9 renders as "$1.5M".
// Rounding is half away from zero. Thresholds apply to the rounded value, so
// 999.995 renders as "$1K" and 999,500 as "$1.0M".
func (f *Formatter) FormatMoney(v decimal.Decimal) string {
	v = v.Round(2)
	switch {
	case v.GreaterThanOrEqual(billion):
		return "$" + v.Div(billion).StringFixed(1) + "M"
	case v.Div(million).Round(1).GreaterThanOrEqual(thousand):
		return "$" + v.Div(billion).StringFixed(1) + "M"
	case v.GreaterThanOrEqual(million):
		return "$" + v.Div(million).StringFixed(1) + "M"
	case v.Div(thousand).Round(0).GreaterThanOrEqual(thousand):
		return "$" + v.Div(million).StringFixed(1) + "M"
	case v.GreaterThanOrEqual(thousand):
		return "$" + v.Div(thousand).StringFixed(0) + "K"
	}
	return "$" + f.formatDecimal(v)
}

// FormatNumber groups the integer part with the locale's thousands separator.
func (f *Formatter) FormatNumber(n int64) string {
	return f.printer.Sprintf("%d", n)
}

// FormatAmount renders an exact amount with grouping and up to two decimals,
// as used in tables and forms.
func (f *Formatter) FormatAmount(v decimal.Decimal) string {
	return "$" + f.formatDecimal(v)
}

func (f *Formatter) formatDecimal(v decimal.Decimal) string {
	return f.printer.Sprint(number.Decimal(v.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}
