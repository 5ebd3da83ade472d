package money

import (
	"github.com/shopspring/decimal"
)

// Quantization scales. All monetary amounts quantize to 6 decimal places,
// percentages to 4. Rounding is half-up in both directions of zero, matching
// decimal.Round semantics.
const (
	MoneyPlaces   = 6
	PercentPlaces = 4
)

var (
	// DefaultTolerance is the absolute tolerance for monetary invariant
	// checks: 0.01 currency units.
	DefaultTolerance = decimal.New(1, -2)

	// Hundred converts ratios to percentages.
	Hundred = decimal.New(100, 0)
)

// Quantize rounds a monetary amount to 6 decimal places, half-up.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// QuantizePct rounds a percentage to 4 decimal places, half-up.
func QuantizePct(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentPlaces)
}

// WithinTolerance reports whether |a - b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(tolerance) <= 0
}

// ExceedsAbsolute reports whether |value| > threshold.
func ExceedsAbsolute(value, threshold decimal.Decimal) bool {
	return value.Abs().Cmp(threshold) > 0
}

// GrossValue computes qty * price * fx, quantized to money scale.
func GrossValue(qty, price, fx decimal.Decimal) decimal.Decimal {
	return Quantize(qty.Mul(price).Mul(fx))
}

// CostTotal computes commission + fees + taxes, quantized to money scale.
func CostTotal(commission, fees, taxes decimal.Decimal) decimal.Decimal {
	return Quantize(commission.Add(fees).Add(taxes))
}

// MustParse converts a decimal literal to a Decimal, panicking on malformed
// input. Intended for constants and test fixtures only.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("money: bad decimal literal " + s + ": " + err.Error())
	}
	return d
}
