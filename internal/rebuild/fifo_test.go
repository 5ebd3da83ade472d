package rebuild_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
	"AcctLedger/internal/rebuild"
)

var baseTime = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func execRow(seq int64, symbol string, side event.Side, qty, price, commission string) rebuild.Row {
	return rebuild.Row{
		Symbol:     symbol,
		Type:       event.TxTypeFill,
		Side:       side,
		Qty:        money.MustParse(qty),
		Price:      money.MustParse(price),
		Commission: money.MustParse(commission),
		Fees:       decimal.Zero,
		Taxes:      decimal.Zero,
		FX:         decimal.New(1, 0),
		Sequence:   seq,
		Timestamp:  baseTime.Add(time.Duration(seq) * time.Second),
	}
}

func TestFIFOSingleRoundTrip(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "10", "100", "5"),
		execRow(2, "AAPL", event.SideSell, "10", "120", "5"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	// proceeds 1195, consumed cost 1005
	if !res.RealizedPnL.Equal(money.MustParse("190")) {
		t.Errorf("pnl: got %s, want 190", res.RealizedPnL)
	}
	if res.UnmatchedSells != 0 {
		t.Errorf("unmatched: got %d, want 0", res.UnmatchedSells)
	}
}

func TestFIFOPartialLotProRatesCost(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "10", "100", "2"),
		execRow(2, "AAPL", event.SideSell, "5", "130", "3"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	// consumed = 1002 * 0.5 = 501; proceeds = 650 - 3 = 647
	if !res.RealizedPnL.Equal(money.MustParse("146")) {
		t.Errorf("pnl: got %s, want 146", res.RealizedPnL)
	}
}

func TestFIFOPartialExitsDrainSingleLot(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "100", "10", "5"),
		execRow(2, "AAPL", event.SideSell, "60", "11", "3"),
		execRow(3, "AAPL", event.SideSell, "40", "12", "2"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	// first exit: 657 - 603 = 54; second: 478 - 402 = 76
	if !res.RealizedPnL.Equal(money.MustParse("130")) {
		t.Errorf("pnl: got %s, want 130", res.RealizedPnL)
	}
	if res.UnmatchedSells != 0 {
		t.Errorf("unmatched: got %d, want 0", res.UnmatchedSells)
	}
}

func TestFIFOConsumesOldestFirst(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "10", "100", "0"),
		execRow(2, "AAPL", event.SideBuy, "10", "120", "0"),
		execRow(3, "AAPL", event.SideSell, "15", "130", "0"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	// consumed = 1000 + half of 1200 = 1600; proceeds = 1950
	if !res.RealizedPnL.Equal(money.MustParse("350")) {
		t.Errorf("pnl: got %s, want 350", res.RealizedPnL)
	}
}

func TestFIFOUnmatchedSellContributesZero(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideSell, "10", "120", "0"),
		execRow(2, "MSFT", event.SideBuy, "10", "100", "0"),
		execRow(3, "MSFT", event.SideSell, "10", "89", "0"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	if res.UnmatchedSells != 1 {
		t.Errorf("unmatched: got %d, want 1", res.UnmatchedSells)
	}
	if !res.RealizedPnL.Equal(money.MustParse("-110")) {
		t.Errorf("pnl: got %s, want -110", res.RealizedPnL)
	}
}

func TestFIFOSymbolsAreIndependent(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "10", "100", "0"),
		execRow(2, "MSFT", event.SideBuy, "10", "200", "0"),
		execRow(3, "AAPL", event.SideSell, "10", "149", "0"),
		execRow(4, "MSFT", event.SideSell, "10", "179", "0"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	// AAPL +490, MSFT -210
	if !res.RealizedPnL.Equal(money.MustParse("280")) {
		t.Errorf("pnl: got %s, want 280", res.RealizedPnL)
	}
}

func TestFIFOWithFX(t *testing.T) {
	buy := execRow(1, "7203.T", event.SideBuy, "100", "30", "0")
	buy.FX = money.MustParse("0.5")
	sell := execRow(2, "7203.T", event.SideSell, "100", "32", "5")
	sell.FX = money.MustParse("0.5")

	res := rebuild.FIFORealizedPnL([]rebuild.Row{buy, sell})
	// (1600 - 5) - 1500 = 95
	if !res.RealizedPnL.Equal(money.MustParse("95")) {
		t.Errorf("pnl: got %s, want 95", res.RealizedPnL)
	}
}

func TestFIFOIgnoresNonExecutions(t *testing.T) {
	order := execRow(1, "AAPL", event.SideUnknown, "10", "95", "0")
	order.Type = event.TxTypeOrder
	mtm := execRow(3, "AAPL", event.SideUnknown, "0", "180", "0")
	mtm.Type = event.TxTypeMarkToMarket

	rows := []rebuild.Row{
		order,
		execRow(2, "AAPL", event.SideBuy, "10", "100", "0"),
		mtm,
		execRow(4, "AAPL", event.SideSell, "10", "118.7", "0"),
	}

	res := rebuild.FIFORealizedPnL(rows)
	if !res.RealizedPnL.Equal(money.MustParse("187")) {
		t.Errorf("pnl: got %s, want 187", res.RealizedPnL)
	}
}

func TestFIFOIsIdempotent(t *testing.T) {
	rows := []rebuild.Row{
		execRow(1, "AAPL", event.SideBuy, "10", "100", "2"),
		execRow(2, "AAPL", event.SideBuy, "5", "110", "1"),
		execRow(3, "AAPL", event.SideSell, "12", "125", "3"),
	}

	first := rebuild.FIFORealizedPnL(rows)
	second := rebuild.FIFORealizedPnL(rows)
	if !first.RealizedPnL.Equal(second.RealizedPnL) || first.UnmatchedSells != second.UnmatchedSells {
		t.Errorf("re-run diverged: %s/%d vs %s/%d",
			first.RealizedPnL, first.UnmatchedSells, second.RealizedPnL, second.UnmatchedSells)
	}
}

func TestSortRowsTimestampThenSequence(t *testing.T) {
	a := execRow(2, "AAPL", event.SideBuy, "1", "100", "0")
	b := execRow(1, "AAPL", event.SideBuy, "1", "100", "0")
	c := execRow(3, "AAPL", event.SideBuy, "1", "100", "0")
	c.Timestamp = b.Timestamp // same instant as b, higher sequence

	rows := []rebuild.Row{a, c, b}
	rebuild.SortRows(rows)

	got := []int64{rows[0].Sequence, rows[1].Sequence, rows[2].Sequence}
	want := []int64{1, 3, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v, want %v", got, want)
		}
	}
}
