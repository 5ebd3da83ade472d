package valuation

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
	"AcctLedger/internal/rebuild"
)

// CashFromHistory replays cash from initial equity plus every
// cash-affecting row: executions move cash by gross value in base
// currency net of transaction costs (BUY subtracts, SELL and stop/
// take-profit exits add), deposits add and withdrawals subtract.
// Independent of the stored running cash balance; used to audit it.
func CashFromHistory(initialEquity decimal.Decimal, rows []rebuild.Row, movements []event.CashMovement) decimal.Decimal {
	cash := initialEquity

	for i := range rows {
		r := &rows[i]
		if !r.IsExecution() {
			continue
		}
		gross := r.Qty.Mul(r.Price).Mul(r.FX)
		costs := r.Commission.Add(r.Fees).Add(r.Taxes)
		if r.Side == event.SideBuy {
			cash = cash.Sub(gross.Add(costs))
		} else {
			cash = cash.Add(gross.Sub(costs))
		}
	}

	for i := range movements {
		mv := &movements[i]
		switch mv.Kind {
		case event.CashKindDeposit:
			cash = cash.Add(mv.Amount)
		case event.CashKindWithdrawal:
			cash = cash.Sub(mv.Amount)
		}
	}

	return money.Quantize(cash)
}
