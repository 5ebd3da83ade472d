package state_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/state"
)

func pos(accountID uuid.UUID, symbol string, qty int64) *state.Position {
	return &state.Position{
		AccountID: accountID,
		Symbol:    symbol,
		Qty:       decimal.New(qty, 0),
		AvgCost:   decimal.New(100, 0),
		LastPrice: decimal.New(110, 0),
		FX:        decimal.New(1, 0),
	}
}

func TestBookSetGetRemove(t *testing.T) {
	book := state.NewPositionBook()
	accountID := uuid.New()

	if book.Get(accountID, "AAPL") != nil {
		t.Fatal("empty book returned a position")
	}

	book.Set(pos(accountID, "AAPL", 10))
	got := book.Get(accountID, "AAPL")
	if got == nil || !got.Qty.Equal(decimal.New(10, 0)) {
		t.Fatalf("get after set: %v", got)
	}

	// Set replaces
	book.Set(pos(accountID, "AAPL", 15))
	if !book.Get(accountID, "AAPL").Qty.Equal(decimal.New(15, 0)) {
		t.Error("set did not replace existing entry")
	}
	if book.Len() != 1 {
		t.Errorf("len: got %d, want 1", book.Len())
	}

	book.Remove(accountID, "AAPL")
	if book.Get(accountID, "AAPL") != nil {
		t.Error("position survived remove")
	}
	// Removing a missing key is a no-op
	book.Remove(accountID, "AAPL")
}

func TestBookAccountPositionsSorted(t *testing.T) {
	book := state.NewPositionBook()
	accountA := uuid.New()
	accountB := uuid.New()

	book.Set(pos(accountA, "MSFT", 5))
	book.Set(pos(accountA, "AAPL", 10))
	book.Set(pos(accountB, "GOOG", 3))

	positions := book.AccountPositions(accountA)
	if len(positions) != 2 {
		t.Fatalf("positions: got %d, want 2", len(positions))
	}
	if positions[0].Symbol != "AAPL" || positions[1].Symbol != "MSFT" {
		t.Errorf("not sorted by symbol: %s, %s", positions[0].Symbol, positions[1].Symbol)
	}

	if len(book.AccountPositions(uuid.New())) != 0 {
		t.Error("unknown account returned positions")
	}
}

func TestBookAllSortedByAccountThenSymbol(t *testing.T) {
	book := state.NewPositionBook()
	accountA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	accountB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	book.Set(pos(accountB, "AAPL", 1))
	book.Set(pos(accountA, "MSFT", 2))
	book.Set(pos(accountA, "AAPL", 3))

	all := book.All()
	if len(all) != 3 {
		t.Fatalf("all: got %d, want 3", len(all))
	}
	wantOrder := []struct {
		account uuid.UUID
		symbol  string
	}{
		{accountA, "AAPL"},
		{accountA, "MSFT"},
		{accountB, "AAPL"},
	}
	for i, w := range wantOrder {
		if all[i].AccountID != w.account || all[i].Symbol != w.symbol {
			t.Errorf("position %d: got (%s, %s), want (%s, %s)",
				i, all[i].AccountID, all[i].Symbol, w.account, w.symbol)
		}
	}
}

func TestPositionNotionalAndClone(t *testing.T) {
	p := pos(uuid.New(), "7203.T", 100)
	p.LastPrice = decimal.RequireFromString("2900")
	p.FX = decimal.RequireFromString("0.0067")

	if !p.Notional().Equal(decimal.RequireFromString("1943")) {
		t.Errorf("notional: got %s, want 1943", p.Notional())
	}

	clone := p.Clone()
	clone.Qty = decimal.Zero
	if p.Qty.IsZero() {
		t.Error("clone aliases the original")
	}
	if !clone.IsFlat() {
		t.Error("zero-qty clone not flat")
	}
}
