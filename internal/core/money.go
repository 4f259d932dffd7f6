// Package core provides amount parsing and formatting utilities.
//
// Amounts are arbitrary precision decimals. Display values are rounded to
// two decimal places.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, signs, or zero.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Percentage returns actual/budgeted*100 clamped to [0, 100], rounded to
// two places. A non-positive budget yields 0.
func Percentage(actual, budgeted decimal.Decimal) decimal.Decimal {
	if !budgeted.IsPositive() {
		return decimal.Zero
	}
	p := actual.Div(budgeted).Mul(hundred)
	if p.GreaterThan(hundred) {
		p = hundred
	}
	if p.IsNegative() {
		p = decimal.Zero
	}
	return p.Round(2)
}

// Remaining returns max(0, budgeted-actual).
func Remaining(actual, budgeted decimal.Decimal) decimal.Decimal {
	r := budgeted.Sub(actual)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// ToCents converts an amount to integer cents, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
