package invariant

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Violation is the typed error value every check returns on failure.
// Expected/Actual/Diff carry the full discrepancy so callers can log
// before halting; callers treat violations as fatal, not retryable.
type Violation struct {
	Rule      string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	Diff      decimal.Decimal
	Tolerance decimal.Decimal
	Detail    string
}

func (v *Violation) Error() string {
	if v.Detail != "" {
		return fmt.Sprintf("invariant %s violated: %s (expected %s, actual %s, diff %s, tolerance %s)",
			v.Rule, v.Detail, v.Expected, v.Actual, v.Diff, v.Tolerance)
	}
	return fmt.Sprintf("invariant %s violated: expected %s, actual %s, diff %s, tolerance %s",
		v.Rule, v.Expected, v.Actual, v.Diff, v.Tolerance)
}

// newViolation fills Diff from expected and actual.
func newViolation(rule string, expected, actual, tolerance decimal.Decimal, detail string) *Violation {
	return &Violation{
		Rule:      rule,
		Expected:  expected,
		Actual:    actual,
		Diff:      actual.Sub(expected),
		Tolerance: tolerance,
		Detail:    detail,
	}
}

// structural reports a non-numeric violation (sign, zero-ness, field
// validity) where expected/actual magnitudes have no meaning.
func structural(rule, detail string) *Violation {
	return &Violation{Rule: rule, Detail: detail}
}
