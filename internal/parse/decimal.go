package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDecimal bounds the magnitude of stored decimals. Together with the nine
// fractional digits kept by FormatDecimal it keeps every value within 21 characters.
const MaxDecimal = 1e9

const decimalScale = 1e9

// FormatDecimal renders f as the decimal string stored in coordinate and measurement
// columns, rounded to nine fractional digits.
func FormatDecimal(f float64) string {
	r := math.Round(f*decimalScale) / decimalScale
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// FormatDecimalPtr is FormatDecimal for optional values.
func FormatDecimalPtr(f *float64) *string {
	if f == nil {
		return nil
	}
	s := FormatDecimal(*f)
	return &s
}

// Decimal parses a stored decimal string back to floating point.
func Decimal(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", raw, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid decimal %q: not finite", raw)
	}
	return f, nil
}

// DecimalOr parses raw and falls back when it is empty or malformed.
func DecimalOr(raw string, fallback float64) float64 {
	f, err := Decimal(raw)
	if err != nil {
		return fallback
	}
	return f
}

// DecimalPtr parses an optional stored decimal; malformed values read as unset.
func DecimalPtr(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	f, err := Decimal(*raw)
	if err != nil {
		return nil
	}
	return &f
}

// Finite reports whether f is a real number.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Storable reports whether f is finite and within MaxDecimal, so that its
// FormatDecimal rendering fits the decimal columns.
func Storable(f float64) bool {
	return Finite(f) && math.Abs(f) <= MaxDecimal
}
