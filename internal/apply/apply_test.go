package apply_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/apply"
	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
	"AcctLedger/internal/state"
)

var (
	testAccountID = uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
)

func newAccount(cash string) *state.Account {
	return &state.Account{
		AccountID:     testAccountID,
		BaseCurrency:  "USD",
		Cash:          money.MustParse(cash),
		InitialEquity: money.MustParse(cash),
	}
}

func newTx(txType event.TxType, side event.Side, qty, price, commission string) *event.Transaction {
	return &event.Transaction{
		TxID:       uuid.New(),
		Account:    testAccountID,
		Symbol:     "AAPL",
		Type:       txType,
		TradeSide:  side,
		Qty:        money.MustParse(qty),
		Price:      money.MustParse(price),
		Commission: money.MustParse(commission),
		Fees:       decimal.Zero,
		Taxes:      decimal.Zero,
		FX:         decimal.New(1, 0),
	}
}

func TestBuyOpensPosition(t *testing.T) {
	account := newAccount("10000")
	tx := newTx(event.TxTypeFill, event.SideBuy, "10", "190.00", "5.00")

	res, err := apply.Apply(account, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !res.GrossValue.Equal(money.MustParse("1900")) {
		t.Errorf("gross: got %s, want 1900", res.GrossValue)
	}
	if !res.NetValue.Equal(money.MustParse("-1905")) {
		t.Errorf("net: got %s, want -1905", res.NetValue)
	}
	if !res.CashAfter.Equal(money.MustParse("8095")) {
		t.Errorf("cash after: got %s, want 8095", res.CashAfter)
	}
	// Entry costs fold into the basis: (1900 + 5) / 10
	if !res.AvgCostAfter.Equal(money.MustParse("190.5")) {
		t.Errorf("avg cost: got %s, want 190.5", res.AvgCostAfter)
	}
	if !res.QtyAfter.Equal(money.MustParse("10")) {
		t.Errorf("qty after: got %s, want 10", res.QtyAfter)
	}
	if !res.RealizedPnLDelta.IsZero() {
		t.Errorf("buy must not realize P&L, got %s", res.RealizedPnLDelta)
	}
	if res.PositionAfter == nil {
		t.Fatal("expected a position after entry")
	}
	// Entry price excludes costs
	if !res.PositionAfter.EntryPrice.Equal(money.MustParse("190")) {
		t.Errorf("entry price: got %s, want 190", res.PositionAfter.EntryPrice)
	}
}

func TestBuyIncreaseWeightsAvgCost(t *testing.T) {
	account := newAccount("10000")
	position := &state.Position{
		AccountID:  testAccountID,
		Symbol:     "AAPL",
		Qty:        money.MustParse("10"),
		AvgCost:    money.MustParse("190.5"),
		EntryPrice: money.MustParse("190"),
		EntryFX:    decimal.New(1, 0),
		LastPrice:  money.MustParse("190"),
		FX:         decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeFill, event.SideBuy, "10", "210.00", "5.00")

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// (10*190.5 + 10*210 + 5) / 20 = (1905 + 2105) / 20
	if !res.AvgCostAfter.Equal(money.MustParse("200.5")) {
		t.Errorf("avg cost: got %s, want 200.5", res.AvgCostAfter)
	}
	if !res.QtyAfter.Equal(money.MustParse("20")) {
		t.Errorf("qty after: got %s, want 20", res.QtyAfter)
	}
	// Cost-free moving average: (10*190 + 10*210) / 20
	if !res.PositionAfter.EntryPrice.Equal(money.MustParse("200")) {
		t.Errorf("entry price: got %s, want 200", res.PositionAfter.EntryPrice)
	}
}

func TestSellPartialKeepsAvgCost(t *testing.T) {
	account := newAccount("6000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("20"),
		AvgCost:   money.MustParse("200.5"),
		LastPrice: money.MustParse("200"),
		FX:        decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeFill, event.SideSell, "5", "220.00", "2.00")

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !res.CashAfter.Equal(money.MustParse("7098")) {
		t.Errorf("cash after: got %s, want 7098", res.CashAfter)
	}
	// (220 - 200.5) * 5 - 2
	if !res.RealizedPnLDelta.Equal(money.MustParse("95.5")) {
		t.Errorf("realized delta: got %s, want 95.5", res.RealizedPnLDelta)
	}
	if !res.QtyAfter.Equal(money.MustParse("15")) {
		t.Errorf("qty after: got %s, want 15", res.QtyAfter)
	}
	// Partial close carries the basis unchanged
	if !res.AvgCostAfter.Equal(money.MustParse("200.5")) {
		t.Errorf("avg cost: got %s, want 200.5", res.AvgCostAfter)
	}
	if res.PositionRemoved {
		t.Error("partial close must not remove the position")
	}
}

func TestSellFullCloseResetsPosition(t *testing.T) {
	account := newAccount("6000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("10"),
		AvgCost:   money.MustParse("190.5"),
		LastPrice: money.MustParse("190"),
		FX:        decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeFill, event.SideSell, "10", "130.00", "2.00")

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !res.PositionRemoved {
		t.Error("full close must remove the position")
	}
	if res.PositionAfter != nil {
		t.Error("full close must not return a position")
	}
	if !res.QtyAfter.IsZero() || !res.AvgCostAfter.IsZero() || !res.NotionalAfter.IsZero() {
		t.Errorf("full close snapshots must be zero: qty=%s avg=%s notional=%s",
			res.QtyAfter, res.AvgCostAfter, res.NotionalAfter)
	}
	// (130 - 190.5) * 10 - 2
	if !res.RealizedPnLDelta.Equal(money.MustParse("-607")) {
		t.Errorf("realized delta: got %s, want -607", res.RealizedPnLDelta)
	}
}

func TestSellInsufficientPosition(t *testing.T) {
	account := newAccount("1000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("5"),
		AvgCost:   money.MustParse("100"),
		LastPrice: money.MustParse("100"),
		FX:        decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeFill, event.SideSell, "10", "100.00", "0")

	_, err := apply.Apply(account, position, tx)
	if !errors.Is(err, apply.ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}
}

func TestSellWithoutPosition(t *testing.T) {
	account := newAccount("1000")
	tx := newTx(event.TxTypeFill, event.SideSell, "10", "100.00", "0")

	_, err := apply.Apply(account, nil, tx)
	if !errors.Is(err, apply.ErrMissingPosition) {
		t.Fatalf("expected ErrMissingPosition, got %v", err)
	}
}

func TestMarkToMarketMovesValuationOnly(t *testing.T) {
	account := newAccount("1000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("10"),
		AvgCost:   money.MustParse("190.5"),
		LastPrice: money.MustParse("190"),
		FX:        decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeMarkToMarket, event.SideUnknown, "0", "205.00", "0")

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !res.CashAfter.Equal(account.Cash) {
		t.Errorf("MTM must not move cash: got %s", res.CashAfter)
	}
	if !res.PositionAfter.LastPrice.Equal(money.MustParse("205")) {
		t.Errorf("last price: got %s, want 205", res.PositionAfter.LastPrice)
	}
	if !res.NotionalAfter.Equal(money.MustParse("2050")) {
		t.Errorf("notional: got %s, want 2050", res.NotionalAfter)
	}
	if !res.AvgCostAfter.Equal(position.AvgCost) {
		t.Errorf("MTM must not touch the basis: got %s", res.AvgCostAfter)
	}
}

func TestMarkToMarketWithoutPosition(t *testing.T) {
	account := newAccount("1000")
	tx := newTx(event.TxTypeMarkToMarket, event.SideUnknown, "0", "205.00", "0")

	_, err := apply.Apply(account, nil, tx)
	if !errors.Is(err, apply.ErrMissingPosition) {
		t.Fatalf("expected ErrMissingPosition, got %v", err)
	}
}

func TestOrderUpdatesValuationInputs(t *testing.T) {
	account := newAccount("1000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("10"),
		AvgCost:   money.MustParse("190.5"),
		LastPrice: money.MustParse("190"),
		FX:        decimal.New(1, 0),
	}
	tx := newTx(event.TxTypeOrder, event.SideUnknown, "0", "195.00", "0")

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.PositionAfter.LastPrice.Equal(money.MustParse("195")) {
		t.Errorf("last price: got %s, want 195", res.PositionAfter.LastPrice)
	}
	if !res.CashAfter.Equal(account.Cash) {
		t.Errorf("order must not move cash: got %s", res.CashAfter)
	}
}

func TestOrderWithoutPositionIsNoOp(t *testing.T) {
	account := newAccount("1000")
	tx := newTx(event.TxTypeOrderSL, event.SideUnknown, "0", "195.00", "0")

	res, err := apply.Apply(account, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PositionAfter != nil {
		t.Error("order without a position must not create one")
	}
}

func TestAdjustmentRejected(t *testing.T) {
	account := newAccount("1000")
	tx := newTx(event.TxTypeAdjustment, event.SideUnknown, "0", "100.00", "0")

	_, err := apply.Apply(account, nil, tx)
	if !errors.Is(err, apply.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestValidationRejectsBadInput(t *testing.T) {
	account := newAccount("1000")

	cases := []struct {
		name string
		tx   *event.Transaction
	}{
		{"zero price", newTx(event.TxTypeFill, event.SideBuy, "10", "0", "0")},
		{"zero qty on execution", newTx(event.TxTypeFill, event.SideBuy, "0", "100", "0")},
		{"execution without side", newTx(event.TxTypeFill, event.SideUnknown, "10", "100", "0")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := apply.Apply(account, nil, tc.tx)
			if !errors.Is(err, apply.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	negCosts := newTx(event.TxTypeFill, event.SideBuy, "10", "100", "0")
	negCosts.Fees = money.MustParse("-1")
	if _, err := apply.Apply(account, nil, negCosts); !errors.Is(err, apply.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative costs, got %v", err)
	}

	zeroFX := newTx(event.TxTypeFill, event.SideBuy, "10", "100", "0")
	zeroFX.FX = decimal.Zero
	if _, err := apply.Apply(account, nil, zeroFX); !errors.Is(err, apply.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero fx, got %v", err)
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	account := newAccount("10000")
	position := &state.Position{
		AccountID: testAccountID,
		Symbol:    "AAPL",
		Qty:       money.MustParse("10"),
		AvgCost:   money.MustParse("190.5"),
		LastPrice: money.MustParse("190"),
		FX:        decimal.New(1, 0),
	}
	cashBefore := account.Cash
	qtyBefore := position.Qty

	tx := newTx(event.TxTypeFill, event.SideSell, "5", "200.00", "1.00")
	if _, err := apply.Apply(account, position, tx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !account.Cash.Equal(cashBefore) {
		t.Errorf("account mutated: cash %s -> %s", cashBefore, account.Cash)
	}
	if !position.Qty.Equal(qtyBefore) {
		t.Errorf("position mutated: qty %s -> %s", qtyBefore, position.Qty)
	}
}

func TestBuyWithFX(t *testing.T) {
	account := newAccount("10000")
	tx := newTx(event.TxTypeFill, event.SideBuy, "100", "2850", "6")
	tx.Symbol = "7203.T"
	tx.FX = money.MustParse("0.0067")

	res, err := apply.Apply(account, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// gross = 100 * 2850 * 0.0067 = 1909.5, entry cost 1915.5
	if !res.GrossValue.Equal(money.MustParse("1909.5")) {
		t.Errorf("gross: got %s, want 1909.5", res.GrossValue)
	}
	if !res.AvgCostAfter.Equal(money.MustParse("19.155")) {
		t.Errorf("avg cost: got %s, want 19.155", res.AvgCostAfter)
	}
	if !res.PositionAfter.EntryFX.Equal(money.MustParse("0.0067")) {
		t.Errorf("entry fx: got %s, want 0.0067", res.PositionAfter.EntryFX)
	}
}

func TestCashMovementDeposit(t *testing.T) {
	account := newAccount("100")
	mv := &event.CashMovement{
		MovementID: uuid.New(),
		Account:    testAccountID,
		Kind:       event.CashKindDeposit,
		Amount:     money.MustParse("25000"),
	}

	acct, err := apply.ApplyCashMovement(account, mv)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !acct.Cash.Equal(money.MustParse("25100")) {
		t.Errorf("cash: got %s, want 25100", acct.Cash)
	}
	if !account.Cash.Equal(money.MustParse("100")) {
		t.Error("input account mutated")
	}
}

func TestCashMovementWithdrawalOverdraft(t *testing.T) {
	account := newAccount("100")
	mv := &event.CashMovement{
		MovementID: uuid.New(),
		Account:    testAccountID,
		Kind:       event.CashKindWithdrawal,
		Amount:     money.MustParse("200"),
	}

	if _, err := apply.ApplyCashMovement(account, mv); !errors.Is(err, apply.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCashMovementNonPositiveAmount(t *testing.T) {
	account := newAccount("100")
	mv := &event.CashMovement{
		MovementID: uuid.New(),
		Account:    testAccountID,
		Kind:       event.CashKindDeposit,
		Amount:     decimal.Zero,
	}

	if _, err := apply.ApplyCashMovement(account, mv); !errors.Is(err, apply.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
