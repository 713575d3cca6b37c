// Package money provides the canonical amount serializations shared by the
// payment gateway signers. Both gateways sign over amounts, so the two
// serializations must agree on rounding: everything goes through Cents.
package money

import (
	"fmt"
	"math"
)

// Cents converts a decimal amount to integer minor units, rounding half-up
// at the cent boundary (99.999 -> 10000, 99.994 -> 9999).
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// FormatDecimal renders an amount as a fixed two-decimal string ("99.90",
// "0.00"). It rounds through Cents so that the string form and the cents
// form of the same amount can never disagree.
func FormatDecimal(amount float64) string {
	cents := Cents(amount)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
