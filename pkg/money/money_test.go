package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCents(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"whole", 100.00, 10000},
		{"two decimals", 99.99, 9999},
		{"rounds half up", 99.999, 10000},
		{"rounds down below half", 99.994, 9999},
		{"zero", 0, 0},
		{"sub-cent", 0.005, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cents(tt.amount))
		})
	}
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   string
	}{
		{"whole number gains decimals", 100, "100.00"},
		{"single decimal padded", 99.9, "99.90"},
		{"fractional cent rounds up", 99.999, "100.00"},
		{"zero", 0, "0.00"},
		{"small", 0.05, "0.05"},
		{"negative", -12.5, "-12.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDecimal(tt.amount))
		})
	}
}

func TestFromCents(t *testing.T) {
	assert.Equal(t, 100.00, FromCents(10000))
	assert.Equal(t, 99.99, FromCents(9999))
	assert.Equal(t, 0.0, FromCents(0))
}

func TestRoundTrip(t *testing.T) {
	for _, amount := range []float64{0, 0.01, 99.99, 100, 12345.67, 99.999} {
		got := FromCents(Cents(amount))
		assert.InDelta(t, amount, got, 0.005, "round trip should land on the rounded cent")
		assert.Equal(t, Cents(got), Cents(amount), "re-rounding must be stable")
	}
}
