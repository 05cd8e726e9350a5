// Package core provides the savings-rate domain model together with the
// cell parsers shared by every row source.
//
// This file contains the amount parser. Amounts are read with "." as the
// decimal separator and "," as the thousands separator; other locales are
// not supported.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var blankMarkers = map[string]struct{}{
	"":    {},
	"-":   {},
	"--":  {},
	"—":   {},
	"n/a": {},
	"na":  {},
}

var amountReplacer = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "",
	",", "", " ", "", "\u00a0", "",
)

// ParseAmount converts a spreadsheet cell into a decimal amount.
//
// Empty cells and blank markers ("-", "n/a") yield zero. Currency symbols,
// thousands separators and accounting parentheses are accepted:
//
//	ParseAmount("1,200.50")  -> 1200.50
//	ParseAmount("$ (45.00)") -> -45.00
//	ParseAmount("")          -> 0
//
// Anything else returns an error wrapping ErrInvalidAmount.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case string:
		return parseAmountString(x)
	case fmt.Stringer:
		return parseAmountString(x.String())
	}
	return decimal.Zero, fmt.Errorf("%w: unsupported cell type %T", ErrInvalidAmount, v)
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, f)
	}
	return decimal.NewFromFloat(f), nil
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if _, ok := blankMarkers[strings.ToLower(s)]; ok {
		return decimal.Zero, nil
	}
	raw := s
	s = amountReplacer.Replace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// IsBlank reports whether a cell carries no value.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		_, ok := blankMarkers[strings.ToLower(strings.TrimSpace(x))]
		return ok
	}
	return false
}
