// Package money centralizes Brazilian-real parsing, rounding, and display
// formatting for the analytics portal: spreadsheet cells arrive as
// "R$ 1.234,56" strings and leave as formatted export cells.
package money

import (
	"strconv"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ParseBRL parses a Brazilian-formatted numeric string into a float64,
// accepting both "," and "." as decimal separators and stripping an
// optional "R$" prefix. Returns false for empty or non-numeric input.
func ParseBRL(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "R$") {
		s = strings.TrimSpace(s[2:])
	}
	if s == "" {
		return 0, false
	}

	// Parenthesized negatives, common in budget exports.
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// Whichever separator appears last is the decimal separator.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// FormatBRL renders v as a Brazilian-real display string ("R$1.234,56").
// Cents are resolved through decimal so 19.999 formats as R$20,00 instead
// of silently truncating.
func FormatBRL(v float64) string {
	cents := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return gomoney.New(cents, gomoney.BRL).Display()
}

// FormatNumber renders v with pt-BR thousands/decimal separators and two
// decimal places, without the currency symbol.
func FormatNumber(v float64) string {
	return strings.TrimSpace(strings.TrimPrefix(FormatBRL(v), "R$"))
}

// RoundCents rounds v to whole cents, half away from zero, for stable
// aggregation display.
func RoundCents(v float64) float64 {
	d := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100))
	rounded := d.Truncate(0)
	frac := d.Sub(rounded).Abs()
	if frac.GreaterThanOrEqual(decimal.NewFromFloat(0.5)) {
		if d.Sign() >= 0 {
			rounded = rounded.Add(decimal.NewFromInt(1))
		} else {
			rounded = rounded.Sub(decimal.NewFromInt(1))
		}
	}
	out, _ := rounded.Div(decimal.NewFromInt(100)).Float64()
	return out
}
