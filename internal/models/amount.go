package models

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value held in fixed point. It is persisted as an
// integer count of minor units (cents) and never passes through float64.
type Amount struct {
	value decimal.Decimal
}

// maxAmount is the largest amount accepted for a single expense. Summary
// totals are summed as int64 cents in SQLite, so a sum beyond about 9.2e16
// in currency units fails with an integer overflow error.
var maxAmount = decimal.RequireFromString("9999999999.99")

// amountPattern is the accepted text form: optional sign, digits and an
// optional fraction. Exponents are rejected so the scale stays bounded.
var amountPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// maxAmountText bounds the input length for the same reason.
const maxAmountText = 32

// NewAmountFromCents builds an Amount from minor units.
func NewAmountFromCents(cents int64) Amount {
	return Amount{value: decimal.New(cents, -2)}
}

// ParseAmount parses a decimal string such as "42.5" or "42.50".
func ParseAmount(s string) (Amount, error) {
	if len(s) > maxAmountText || !amountPattern.MatchString(s) {
		return Amount{}, &ValidationError{Field: "amount", Message: "amount must be a number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, &ValidationError{Field: "amount", Message: "amount must be a number"}
	}
	return Amount{value: d}, nil
}

// Cents returns the amount in minor units. Only meaningful for amounts that
// passed validation (at most two fractional digits).
func (a Amount) Cents() int64 {
	return a.value.Shift(2).IntPart()
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// IsZero reports whether the amount is zero or was never set.
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{value: a.value.Add(b.value)}
}

// Equal compares by value, so 42.5 equals 42.50.
func (a Amount) Equal(b Amount) bool {
	return a.value.Equal(b.value)
}

// String formats with exactly two fractional digits.
func (a Amount) String() string {
	return a.value.StringFixed(2)
}

// Validate checks the amount is positive, has at most two fractional digits
// and is within range.
func (a Amount) Validate() error {
	switch {
	case a.value.IsZero():
		return &ValidationError{Field: "amount", Message: "amount is required"}
	case !a.value.IsPositive():
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	case !a.value.Equal(a.value.Truncate(2)):
		return &ValidationError{Field: "amount", Message: "amount must have at most 2 decimal places"}
	case a.value.GreaterThan(maxAmount):
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("amount must not exceed %s", maxAmount.StringFixed(2))}
	}
	return nil
}

// MarshalJSON encodes the amount as a JSON number with two fractional digits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = bytes.TrimSpace(data[1 : len(data)-1])
		if len(data) == 0 {
			*a = Amount{}
			return nil
		}
	}
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
