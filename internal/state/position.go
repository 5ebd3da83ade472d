package state

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position represents an account's open long position in a symbol.
// Long-only model: Qty >= 0 always, AvgCost > 0 whenever Qty > 0.
// AvgCost includes entry-side transaction costs. EntryPrice/EntryFX
// exclude costs and back the canonical unrealized-P&L form.
type Position struct {
	AccountID  uuid.UUID
	Symbol     string
	Qty        decimal.Decimal
	AvgCost    decimal.Decimal // Per-unit, in base currency
	EntryPrice decimal.Decimal // Per-unit, in symbol currency
	EntryFX    decimal.Decimal
	LastPrice  decimal.Decimal
	FX         decimal.Decimal
	Version    int64 // Optimistic concurrency control
}

// IsFlat returns true if the position has no exposure
func (p *Position) IsFlat() bool {
	return p.Qty.IsZero()
}

// Notional returns qty * last_price * fx, unquantized.
func (p *Position) Notional() decimal.Decimal {
	return p.Qty.Mul(p.LastPrice).Mul(p.FX)
}

// Clone returns an independent copy.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
