// Package format renders engine numbers into display strings.
// ⭐ SSOT: 표시 형식(퍼센트, 금액, 날짜)은 여기서만
package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wonny/notes/backend/internal/contracts"
)

var printer = message.NewPrinter(language.English)

// round2 rounds half away from zero at two decimals
func round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Number renders v with two decimals and no grouping: 50.86
func Number(v float64) string {
	return round2(v).StringFixed(2)
}

// Factor renders a multiplier with four decimals: 1.4286
func Factor(v float64) string {
	return decimal.NewFromFloat(v).Round(4).StringFixed(4)
}

// SignedPercent renders a performance with an explicit sign: +8.00%, -40.00%
func SignedPercent(v float64) string {
	d := round2(v)
	s := d.StringFixed(2)
	if d.IsPositive() {
		return "+" + s + "%"
	}
	if d.IsZero() {
		return "0.00%"
	}
	return s + "%"
}

// Percent renders a level or rate without a forced sign: 108.00%
func Percent(v float64) string {
	return round2(v).StringFixed(2) + "%"
}

// Amount renders a currency amount with thousands grouping: EUR 1,234.56
func Amount(currency string, v float64) string {
	d := round2(v)
	f, _ := d.Float64()
	s := printer.Sprintf("%.2f", f)
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
		return currency + " " + s
	}
	return s
}

// Price renders a quote with up to four decimals and grouping
func Price(currency string, v float64) string {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	s := printer.Sprintf("%.4f", f)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-dot-1))
	} else if dot < 0 {
		s += ".00"
	}
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
		return currency + " " + s
	}
	return s
}

// Date renders an ISO date; the zero time renders as unavailable
func Date(t time.Time) string {
	if t.IsZero() {
		return contracts.UnavailableDisplay
	}
	return t.Format(contracts.DateLayout)
}

// Term renders a signed term inside a formula: "+ 8.00", "- 57.14"
func Term(v float64) string {
	d := round2(v)
	if d.IsNegative() {
		return "- " + d.Neg().StringFixed(2)
	}
	return "+ " + d.StringFixed(2)
}

// Paren renders a number for use inside a product, parenthesizing negatives: (-40.00)
func Paren(v float64) string {
	d := round2(v)
	if d.IsNegative() {
		return "(" + d.StringFixed(2) + ")"
	}
	return d.StringFixed(2)
}
