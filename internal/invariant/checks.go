package invariant

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
)

// Each check is a pure predicate returning nil or a *Violation.
// Monetary checks take an explicit absolute tolerance; structural
// checks (sign, zero-ness, field validity) are exact.

// ValidateAccountCreation checks account field validity: non-empty id,
// non-negative initial equity, 3-letter base currency.
func ValidateAccountCreation(accountID string, initialEquity decimal.Decimal, baseCurrency string) error {
	if accountID == "" {
		return structural("account_creation", "empty account id")
	}
	if initialEquity.Sign() < 0 {
		return structural("account_creation", fmt.Sprintf("negative initial equity %s", initialEquity))
	}
	if len(baseCurrency) != 3 {
		return structural("account_creation", fmt.Sprintf("base currency %q is not 3 letters", baseCurrency))
	}
	return nil
}

// ValidateZeroQuantityOrPrice rejects zero or negative qty/price on an
// execution.
func ValidateZeroQuantityOrPrice(qty, price decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return structural("zero_quantity_or_price", fmt.Sprintf("qty %s", qty))
	}
	if price.Sign() <= 0 {
		return structural("zero_quantity_or_price", fmt.Sprintf("price %s", price))
	}
	return nil
}

// ValidateSufficientCash checks a BUY does not take cash below zero.
func ValidateSufficientCash(cashBefore, netValue decimal.Decimal) error {
	after := cashBefore.Add(netValue)
	if after.Sign() < 0 {
		return newViolation("sufficient_cash", decimal.Zero, after, decimal.Zero,
			fmt.Sprintf("cash %s + net %s", cashBefore, netValue))
	}
	return nil
}

// ValidateMarkToMarketHasPosition rejects MTM without an open position.
func ValidateMarkToMarketHasPosition(hasPosition bool, symbol string) error {
	if !hasPosition {
		return structural("mark_to_market_has_position", fmt.Sprintf("no position for %s", symbol))
	}
	return nil
}

// ValidateBalance checks equity = cash + sum of notionals.
func ValidateBalance(equity, cash, notionalSum, tolerance decimal.Decimal) error {
	expected := cash.Add(notionalSum)
	if !money.WithinTolerance(equity, expected, tolerance) {
		return newViolation("balance", expected, equity, tolerance, "")
	}
	return nil
}

// ValidatePnLConsistency checks equity - initial = realized + unrealized.
func ValidatePnLConsistency(equity, initialEquity, realizedCum, unrealizedCum, tolerance decimal.Decimal) error {
	actual := equity.Sub(initialEquity)
	expected := realizedCum.Add(unrealizedCum)
	if !money.WithinTolerance(actual, expected, tolerance) {
		return newViolation("pnl_consistency", expected, actual, tolerance, "")
	}
	return nil
}

// ValidateBuyCapitalConservation checks a BUY moves equity only by the
// transaction costs: delta equity = -cost_total.
func ValidateBuyCapitalConservation(equityBefore, equityAfter, costTotal, tolerance decimal.Decimal) error {
	delta := equityAfter.Sub(equityBefore)
	expected := costTotal.Neg()
	if !money.WithinTolerance(delta, expected, tolerance) {
		return newViolation("buy_capital_conservation", expected, delta, tolerance, "")
	}
	return nil
}

// ValidateSellCapitalConservation checks a SELL moves equity only by
// the realized P&L of the exit.
func ValidateSellCapitalConservation(equityBefore, equityAfter, realizedDelta, tolerance decimal.Decimal) error {
	delta := equityAfter.Sub(equityBefore)
	if !money.WithinTolerance(delta, realizedDelta, tolerance) {
		return newViolation("sell_capital_conservation", realizedDelta, delta, tolerance, "")
	}
	return nil
}

// ValidatePositionQuantity enforces the long-only sign: qty >= 0.
func ValidatePositionQuantity(qty decimal.Decimal) error {
	if qty.Sign() < 0 {
		return structural("position_quantity", fmt.Sprintf("qty %s", qty))
	}
	return nil
}

// ValidatePositionState checks full positivity of an open position:
// qty, avg_cost, last_price, fx all > 0.
func ValidatePositionState(qty, avgCost, lastPrice, fx decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return structural("position_state", fmt.Sprintf("qty %s", qty))
	}
	if avgCost.Sign() <= 0 {
		return structural("position_state", fmt.Sprintf("avg_cost %s", avgCost))
	}
	if lastPrice.Sign() <= 0 {
		return structural("position_state", fmt.Sprintf("last_price %s", lastPrice))
	}
	if fx.Sign() <= 0 {
		return structural("position_state", fmt.Sprintf("fx %s", fx))
	}
	return nil
}

// CheckChronologicalOrder enforces monotonic event-time per
// (account, symbol). A nil last timestamp accepts anything.
func CheckChronologicalOrder(last *time.Time, next time.Time) error {
	if last != nil && next.Before(*last) {
		return structural("chronological_order",
			fmt.Sprintf("timestamp %s before %s", next.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)))
	}
	return nil
}

// ValidateCommissionOnExecutionOnly rejects transaction costs on
// non-execution types (ORDER variants, MARK_TO_MARKET).
func ValidateCommissionOnExecutionOnly(txType event.TxType, commission, fees, taxes decimal.Decimal) error {
	switch txType {
	case event.TxTypeFill, event.TxTypeStopLoss, event.TxTypeTakeProfit:
		return nil
	}
	if commission.Sign() != 0 || fees.Sign() != 0 || taxes.Sign() != 0 {
		return structural("commission_on_execution_only",
			fmt.Sprintf("%s carries costs %s/%s/%s", txType, commission, fees, taxes))
	}
	return nil
}

// ValidateEntryUnrealizedPnLZero checks unrealized P&L is zero right
// after an entry at the entry price.
func ValidateEntryUnrealizedPnLZero(unrealized, tolerance decimal.Decimal) error {
	if !money.WithinTolerance(unrealized, decimal.Zero, tolerance) {
		return newViolation("entry_unrealized_zero", decimal.Zero, unrealized, tolerance, "")
	}
	return nil
}

// ValidateUnrealizedPnLFormula checks actual unrealized P&L against
// (last - entry) * qty.
func ValidateUnrealizedPnLFormula(lastPrice, entryPrice, qty, actual, tolerance decimal.Decimal) error {
	expected := lastPrice.Sub(entryPrice).Mul(qty)
	if !money.WithinTolerance(actual, expected, tolerance) {
		return newViolation("unrealized_pnl_formula", expected, actual, tolerance, "")
	}
	return nil
}

// ValidateExitUnrealizedPnLZero checks unrealized P&L is zero after a
// full close.
func ValidateExitUnrealizedPnLZero(unrealized, tolerance decimal.Decimal) error {
	if !money.WithinTolerance(unrealized, decimal.Zero, tolerance) {
		return newViolation("exit_unrealized_zero", decimal.Zero, unrealized, tolerance, "")
	}
	return nil
}

// ValidateExitRealizedPnLFormula checks actual realized P&L against
// (exit - entry) * qty - commission.
func ValidateExitRealizedPnLFormula(exitPrice, entryPrice, qty, commission, actual, tolerance decimal.Decimal) error {
	expected := exitPrice.Sub(entryPrice).Mul(qty).Sub(commission)
	if !money.WithinTolerance(actual, expected, tolerance) {
		return newViolation("exit_realized_pnl_formula", expected, actual, tolerance, "")
	}
	return nil
}

// ValidateEquityReconciliation checks equity against cash plus open
// position market value.
func ValidateEquityReconciliation(equity, cash, positionsValue, tolerance decimal.Decimal) error {
	expected := cash.Add(positionsValue)
	if !money.WithinTolerance(equity, expected, tolerance) {
		return newViolation("equity_reconciliation", expected, equity, tolerance, "")
	}
	return nil
}

// ValidateCashNonNegative rejects an unexpectedly negative cash
// balance.
func ValidateCashNonNegative(cash decimal.Decimal) error {
	if cash.Sign() < 0 {
		return newViolation("cash_non_negative", decimal.Zero, cash, decimal.Zero, "")
	}
	return nil
}

// ValidateRealizedPnLEqualsCashChange checks the sum of realized
// deltas against the observed cash change net of costs.
func ValidateRealizedPnLEqualsCashChange(realizedSum, cashChange, tolerance decimal.Decimal) error {
	if !money.WithinTolerance(realizedSum, cashChange, tolerance) {
		return newViolation("realized_equals_cash_change", cashChange, realizedSum, tolerance, "")
	}
	return nil
}

// ValidateCommissionAppliedOnce checks the observed cash delta equals
// the expected net value, so costs cannot be double-applied.
func ValidateCommissionAppliedOnce(cashBefore, cashAfter, netValue, tolerance decimal.Decimal) error {
	delta := cashAfter.Sub(cashBefore)
	if !money.WithinTolerance(delta, netValue, tolerance) {
		return newViolation("commission_applied_once", netValue, delta, tolerance, "")
	}
	return nil
}

// ValidateRiskAtEntry checks the entry risk formula and returns the
// derived (risk, risk_pct): risk = |entry - stop| * qty,
// risk_pct = risk / equity * 100. Equity at entry must be positive.
func ValidateRiskAtEntry(entryPrice, stopPrice, qty, equityAtEntry decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if equityAtEntry.Sign() <= 0 {
		return decimal.Zero, decimal.Zero,
			structural("risk_at_entry", fmt.Sprintf("equity at entry %s", equityAtEntry))
	}
	risk := entryPrice.Sub(stopPrice).Abs().Mul(qty)
	riskPct := money.QuantizePct(risk.Div(equityAtEntry).Mul(money.Hundred))
	return money.Quantize(risk), riskPct, nil
}
