// Package money represents euro amounts as integer cents.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Amount is an amount of money in cents.
type Amount int64

// ErrOverflow is returned when a product or sum does not fit an Amount.
var ErrOverflow = errors.New("amount out of range")

// FromFloat converts a decimal euro value, rounding half away from zero to the nearest cent.
func FromFloat(v float64) Amount {
	return Amount(math.Round(v * 100))
}

// Cents builds an amount from a whole number of cents.
func Cents(c int64) Amount { return Amount(c) }

// Cents returns the amount as a whole number of cents.
func (a Amount) Cents() int64 { return int64(a) }

// Float returns the amount in euros.
func (a Amount) Float() float64 { return float64(a) / 100 }

// Times multiplies the amount by a quantity.
func (a Amount) Times(qty int) (Amount, error) {
	if a == 0 || qty == 0 {
		return 0, nil
	}
	p := a * Amount(qty)
	if p/Amount(qty) != a || (qty == -1 && a == math.MinInt64) {
		return 0, fmt.Errorf("%w: %s x %d", ErrOverflow, a, qty)
	}
	return p, nil
}

// Plus adds b to the amount.
func (a Amount) Plus(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sum, nil
}

// String renders the amount with two decimals, e.g. "114.94".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Display renders the amount for patients, e.g. "114.94 €".
func (a Amount) Display() string { return a.String() + " €" }

// MarshalJSON encodes the amount as a decimal number with two places.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a decimal number in euros.
func (a *Amount) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", string(b), err)
	}
	*a = FromFloat(v)
	return nil
}
