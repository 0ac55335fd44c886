package billing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a canonical minor-unit (tiyin) money value. Every provider's
// wire amount normalizes into this type before touching the ledger, and
// comparisons are exact integer equality, never epsilon-based.
type Amount int64

// FromMajor converts whole major units (som) to minor units.
func FromMajor(major int64) Amount {
	return Amount(major * 100)
}

// MajorString formats the amount as a decimal major-unit string ("9999.00"),
// the form the redirect links embed.
func (a Amount) MajorString() string {
	return fmt.Sprintf("%d.%02d", int64(a)/100, int64(a)%100)
}

// ParseAmount normalizes a wire amount into minor units. Providers send
// amounts as integers, floats or decimal strings of major units; each form
// must resolve to an exact minor-unit value or be rejected.
func ParseAmount(v any) (Amount, error) {
	switch t := v.(type) {
	case int:
		return FromMajor(int64(t)), nil
	case int64:
		return FromMajor(t), nil
	case float64:
		minor := t * 100
		rounded := math.Round(minor)
		if math.Abs(minor-rounded) > 1e-6 {
			return 0, fmt.Errorf("%w: %v has sub-minor precision", ErrMalformedAmount, t)
		}
		return Amount(rounded), nil
	case json.Number:
		return parseDecimalString(t.String())
	case string:
		return parseDecimalString(t)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMalformedAmount, v)
	}
}

// parseDecimalString converts a major-unit decimal string ("9999", "9999.5",
// "9999.00") to minor units without going through floating point.
func parseDecimalString(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrMalformedAmount)
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	// ParseInt collapses "-0" to 0, so the sign must come from the string.
	neg := strings.HasPrefix(intPart, "-")

	major, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}

	var frac int64
	if hasFrac {
		if len(fracPart) == 0 || len(fracPart) > 2 {
			return 0, fmt.Errorf("%w: %q has invalid fraction", ErrMalformedAmount, s)
		}
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil || frac < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
		if len(fracPart) == 1 {
			frac *= 10
		}
	}

	if neg {
		return Amount(major*100 - frac), nil
	}
	return Amount(major*100 + frac), nil
}
