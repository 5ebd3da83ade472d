package apply

import "errors"

// Applier error taxonomy. Callers dispatch with errors.Is; every
// returned error wraps exactly one of these sentinels with context.
var (
	// ErrInvalidInput: malformed or zero qty/price, non-positive
	// required fields, negative costs.
	ErrInvalidInput = errors.New("invalid transaction input")

	// ErrMissingPosition: SELL or MARK_TO_MARKET with no open position.
	ErrMissingPosition = errors.New("no open position")

	// ErrInsufficientPosition: SELL qty exceeds held qty.
	ErrInsufficientPosition = errors.New("sell quantity exceeds held quantity")

	// ErrInvalidCostBasis: computed average cost <= 0. Cannot happen
	// with valid positive inputs; indicates an upstream data defect.
	ErrInvalidCostBasis = errors.New("computed average cost not positive")

	// ErrNotImplemented: ADJUSTMENT transactions are rejected.
	ErrNotImplemented = errors.New("transaction type not implemented")
)
