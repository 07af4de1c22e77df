// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts as they
// appear in marketplace reports and ledger imports.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string into a decimal amount.
//
// It accepts a leading sign, both dot (12.34) and comma (12,34) decimal
// separators, and comma thousands separators when a dot is also present
// (1,234.56). Currency symbols and blanks are rejected.
//
// Examples:
//
//	ParseAmount("-12.34")   -> -12.34, nil
//	ParseAmount("12,34")    -> 12.34, nil
//	ParseAmount("1,234.56") -> 1234.56, nil
//	ParseAmount("")         -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	sign := ""
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}
	// If both separators exist, assume ',' is thousands and '.' is decimal
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" || strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	d, err := decimal.NewFromString(sign + s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
