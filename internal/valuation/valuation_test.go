package valuation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/money"
	"AcctLedger/internal/state"
	"AcctLedger/internal/valuation"
)

func position(symbol, qty, avgCost, lastPrice, fx string) *state.Position {
	return &state.Position{
		AccountID: uuid.MustParse("660e8400-e29b-41d4-a716-446655440001"),
		Symbol:    symbol,
		Qty:       money.MustParse(qty),
		AvgCost:   money.MustParse(avgCost),
		LastPrice: money.MustParse(lastPrice),
		FX:        money.MustParse(fx),
	}
}

func TestEquity(t *testing.T) {
	positions := []*state.Position{
		position("AAPL", "10", "190.5", "200", "1"),
		position("MSFT", "5", "400", "410", "1"),
	}

	equity := valuation.Equity(money.MustParse("8095"), positions)
	// 8095 + 2000 + 2050
	if !equity.Equal(money.MustParse("12145")) {
		t.Errorf("equity: got %s, want 12145", equity)
	}
}

func TestEquityAllCash(t *testing.T) {
	equity := valuation.Equity(money.MustParse("10000"), nil)
	if !equity.Equal(money.MustParse("10000")) {
		t.Errorf("equity: got %s, want 10000", equity)
	}
}

func TestTotalPnLAndPct(t *testing.T) {
	pnl := valuation.TotalPnL(money.MustParse("10250"), money.MustParse("10000"))
	if !pnl.Equal(money.MustParse("250")) {
		t.Errorf("total pnl: got %s, want 250", pnl)
	}

	pct := valuation.TotalPnLPct(money.MustParse("10250"), money.MustParse("10000"))
	if !pct.Equal(money.MustParse("2.5")) {
		t.Errorf("total pnl pct: got %s, want 2.5", pct)
	}

	if !valuation.TotalPnLPct(money.MustParse("10250"), decimal.Zero).IsZero() {
		t.Error("pct with zero initial equity should be 0")
	}
}

func TestDrawdown(t *testing.T) {
	dd := valuation.Drawdown(money.MustParse("9000"), money.MustParse("10000"))
	if !dd.Equal(money.MustParse("10")) {
		t.Errorf("drawdown: got %s, want 10", dd)
	}

	// At the high-water mark
	if !valuation.Drawdown(money.MustParse("10000"), money.MustParse("10000")).IsZero() {
		t.Error("drawdown at max should be 0")
	}
	if !valuation.Drawdown(money.MustParse("100"), decimal.Zero).IsZero() {
		t.Error("drawdown with zero max should be 0")
	}
}

func TestUnrealizedPnLAvgCostForm(t *testing.T) {
	pos := position("AAPL", "10", "190.5", "200", "1")
	upnl := valuation.UnrealizedPnL(pos)
	// 10 * (200 - 190.5): net of the entry costs inside avg_cost
	if !upnl.Equal(money.MustParse("95")) {
		t.Errorf("unrealized: got %s, want 95", upnl)
	}
}

func TestUnrealizedPnLCanonicalForm(t *testing.T) {
	pos := position("AAPL", "10", "190.5", "200", "1")
	pos.EntryPrice = money.MustParse("190")
	pos.EntryFX = decimal.New(1, 0)

	upnl, err := valuation.UnrealizedPnLCanonical(pos)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	// 10 * (200 - 190): excludes costs entirely
	if !upnl.Equal(money.MustParse("100")) {
		t.Errorf("canonical unrealized: got %s, want 100", upnl)
	}
}

func TestUnrealizedPnLCanonicalEntryFXFallback(t *testing.T) {
	pos := position("7203.T", "100", "19.155", "2900", "0.0067")
	pos.EntryPrice = money.MustParse("2850")
	pos.EntryFX = decimal.Zero // unset on legacy rows

	upnl, err := valuation.UnrealizedPnLCanonical(pos)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	// falls back to current fx: 100 * 0.0067 * (2900 - 2850)
	if !upnl.Equal(money.MustParse("33.5")) {
		t.Errorf("canonical unrealized: got %s, want 33.5", upnl)
	}
}

func TestUnrealizedPnLCanonicalZeroEntryPrice(t *testing.T) {
	pos := position("AAPL", "10", "190.5", "200", "1")
	if _, err := valuation.UnrealizedPnLCanonical(pos); err == nil {
		t.Error("zero entry price accepted")
	}
}

func TestNotionalValidation(t *testing.T) {
	pos := position("AAPL", "10", "190.5", "200", "1")
	n, err := valuation.Notional(pos, nil)
	if err != nil {
		t.Fatalf("notional: %v", err)
	}
	if !n.Equal(money.MustParse("2000")) {
		t.Errorf("notional: got %s, want 2000", n)
	}

	stored := money.MustParse("1999")
	n, err = valuation.Notional(pos, &stored)
	if err != nil {
		t.Fatalf("notional: %v", err)
	}
	if !n.Equal(stored) {
		t.Errorf("stored notional not trusted: got %s", n)
	}

	bad := position("AAPL", "10", "190.5", "0", "1")
	if _, err := valuation.Notional(bad, nil); err == nil {
		t.Error("zero last price accepted for open position")
	}
}

func TestNotionalMismatchAndRepair(t *testing.T) {
	pos := position("AAPL", "10", "190.5", "200", "1")
	tol := money.DefaultTolerance

	_, _, mismatch := valuation.NotionalMismatch(pos, money.MustParse("2000.005"), tol)
	if mismatch {
		t.Error("drift within tolerance flagged")
	}

	expected, diff, mismatch := valuation.NotionalMismatch(pos, money.MustParse("2100"), tol)
	if !mismatch {
		t.Fatal("drift beyond tolerance not flagged")
	}
	if !expected.Equal(money.MustParse("2000")) {
		t.Errorf("expected: got %s, want 2000", expected)
	}
	if !diff.Equal(money.MustParse("100")) {
		t.Errorf("diff: got %s, want 100", diff)
	}

	repaired := valuation.RepairNotional(pos, money.MustParse("2100"), tol)
	if !repaired.Equal(money.MustParse("2000")) {
		t.Errorf("repair: got %s, want 2000", repaired)
	}
	kept := valuation.RepairNotional(pos, money.MustParse("2000.005"), tol)
	if !kept.Equal(money.MustParse("2000.005")) {
		t.Errorf("within-tolerance value replaced: got %s", kept)
	}
}
