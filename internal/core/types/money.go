// Package types provides common value types shared by domain packages.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits stored for document totals.
const MoneyScale = 2

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// ValidateAmount rejects negative amounts and amounts with more than
// MoneyScale fractional digits.
func ValidateAmount(m Money) error {
	if m.IsNegative() {
		return fmt.Errorf("amount must not be negative")
	}
	if !m.Equal(m.Round(MoneyScale)) {
		return fmt.Errorf("amount has more than %d fractional digits", MoneyScale)
	}
	return nil
}
