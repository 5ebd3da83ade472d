package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/money"
	"AcctLedger/internal/state"
)

// Equity returns cash plus the sum of open-position notionals,
// quantized to money scale.
func Equity(cash decimal.Decimal, positions []*state.Position) decimal.Decimal {
	total := cash
	for _, pos := range positions {
		total = total.Add(pos.Notional())
	}
	return money.Quantize(total)
}

// TotalPnL returns current equity minus initial equity.
func TotalPnL(currentEquity, initialEquity decimal.Decimal) decimal.Decimal {
	return money.Quantize(currentEquity.Sub(initialEquity))
}

// TotalPnLPct returns total P&L as a percentage of initial equity,
// 4 decimal places. Zero when initial equity is not positive.
func TotalPnLPct(currentEquity, initialEquity decimal.Decimal) decimal.Decimal {
	if initialEquity.Sign() <= 0 {
		return decimal.Zero
	}
	pnl := currentEquity.Sub(initialEquity)
	return money.QuantizePct(pnl.Div(initialEquity).Mul(money.Hundred))
}

// Drawdown returns the percentage decline from max equity to date,
// 4 decimal places. Zero when max equity is not positive.
func Drawdown(currentEquity, maxEquityToDate decimal.Decimal) decimal.Decimal {
	if maxEquityToDate.Sign() <= 0 {
		return decimal.Zero
	}
	dd := maxEquityToDate.Sub(currentEquity).Div(maxEquityToDate).Mul(money.Hundred)
	return money.QuantizePct(dd)
}

// UnrealizedPnL is the avg-cost form: qty * (last_price*fx - avg_cost).
// Entry-side transaction costs are inside avg_cost, so this is P&L net
// of entry costs.
func UnrealizedPnL(pos *state.Position) decimal.Decimal {
	return money.Quantize(pos.Qty.Mul(pos.LastPrice.Mul(pos.FX).Sub(pos.AvgCost)))
}

// UnrealizedPnLCanonical is the cost-exclusive form:
// (last_price*fx - entry_price*entry_fx) * qty. Entry FX falls back to
// the current FX when unset. Errors on a zero entry price.
func UnrealizedPnLCanonical(pos *state.Position) (decimal.Decimal, error) {
	if pos.EntryPrice.IsZero() {
		return decimal.Zero, fmt.Errorf("zero entry price for %s", pos.Symbol)
	}
	entryFX := pos.EntryFX
	if entryFX.IsZero() {
		entryFX = pos.FX
	}
	upnl := pos.LastPrice.Mul(pos.FX).Sub(pos.EntryPrice.Mul(entryFX)).Mul(pos.Qty)
	return money.Quantize(upnl), nil
}

// Notional validates position fields and returns qty*last_price*fx.
// A non-nil stored value is trusted and returned as-is.
func Notional(pos *state.Position, stored *decimal.Decimal) (decimal.Decimal, error) {
	if stored != nil {
		return *stored, nil
	}
	if pos.Qty.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("negative qty %s for %s", pos.Qty, pos.Symbol)
	}
	if pos.Qty.Sign() > 0 && pos.LastPrice.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive last price %s for %s", pos.LastPrice, pos.Symbol)
	}
	if pos.Qty.Sign() > 0 && pos.FX.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive fx %s for %s", pos.FX, pos.Symbol)
	}
	return money.Quantize(pos.Notional()), nil
}

// NotionalMismatch compares a stored notional against the recomputed
// value. Returns the expected value, the signed difference, and
// whether the difference exceeds tolerance.
func NotionalMismatch(pos *state.Position, storedNotional, tolerance decimal.Decimal) (expected, diff decimal.Decimal, mismatch bool) {
	expected = money.Quantize(pos.Notional())
	diff = storedNotional.Sub(expected)
	return expected, diff, money.ExceedsAbsolute(diff, tolerance)
}

// RepairNotional returns the recomputed notional when the stored value
// drifts beyond tolerance, otherwise the stored value unchanged.
func RepairNotional(pos *state.Position, storedNotional, tolerance decimal.Decimal) decimal.Decimal {
	expected, _, mismatch := NotionalMismatch(pos, storedNotional, tolerance)
	if mismatch {
		return expected
	}
	return storedNotional
}
