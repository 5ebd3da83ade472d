package state

import (
	"sort"

	"github.com/google/uuid"
)

// PositionBook holds open positions keyed by (account, symbol).
// Not safe for concurrent use; the engine is the single writer.
type PositionBook struct {
	positions map[PositionKey]*Position
}

type PositionKey struct {
	AccountID uuid.UUID
	Symbol    string
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[PositionKey]*Position),
	}
}

// Get returns the open position or nil
func (b *PositionBook) Get(accountID uuid.UUID, symbol string) *Position {
	return b.positions[PositionKey{AccountID: accountID, Symbol: symbol}]
}

// Set stores a position, replacing any existing entry.
func (b *PositionBook) Set(pos *Position) {
	b.positions[PositionKey{AccountID: pos.AccountID, Symbol: pos.Symbol}] = pos
}

// Remove deletes the position for (account, symbol) if present.
func (b *PositionBook) Remove(accountID uuid.UUID, symbol string) {
	delete(b.positions, PositionKey{AccountID: accountID, Symbol: symbol})
}

// AccountPositions returns all open positions for an account, sorted
// by symbol for deterministic iteration.
func (b *PositionBook) AccountPositions(accountID uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for key, pos := range b.positions {
		if key.AccountID == accountID {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// All returns every open position across accounts, sorted by
// (account, symbol).
func (b *PositionBook) All() []*Position {
	result := make([]*Position, 0, len(b.positions))
	for _, pos := range b.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AccountID != result[j].AccountID {
			return result[i].AccountID.String() < result[j].AccountID.String()
		}
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Len returns the number of open positions.
func (b *PositionBook) Len() int {
	return len(b.positions)
}
