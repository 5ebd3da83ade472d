package state

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the cash-side state of one trading account. Mutated
// only by the engine; every applier call works on a copy and commits
// on success.
type Account struct {
	AccountID       uuid.UUID
	BaseCurrency    string // ISO 4217, 3 letters
	Cash            decimal.Decimal
	InitialEquity   decimal.Decimal
	MaxEquityToDate decimal.Decimal
	RealizedPnLCum  decimal.Decimal
	Version         int64 // Optimistic concurrency control
}

// Clone returns an independent copy.
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}
