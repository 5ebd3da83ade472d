package aggregate

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
	"AcctLedger/internal/rebuild"
)

// Three textually distinct derivations of cumulative realized P&L
// coexist here on purpose. They encode different trust assumptions
// about historical rows and their agreement on clean history is a
// tested correctness property. Do not collapse them.

// legacyZeroDelta marks BUY rows whose stored delta is effectively
// zero; such legacy rows mis-stored entry costs as realized P&L.
var legacyZeroDelta = decimal.New(1, -4)

// RealizedPnLCorrectedDeltas sums the stored per-row deltas with a
// backward-compatibility correction: BUY rows with a missing or
// near-zero delta get their transaction costs subtracted from the
// total, undoing the legacy cost-as-P&L encoding.
func RealizedPnLCorrectedDeltas(rows []rebuild.Row) decimal.Decimal {
	total := decimal.Zero
	costAdjustment := decimal.Zero

	for i := range rows {
		r := &rows[i]
		if r.RealizedPnLDelta != nil {
			total = total.Add(*r.RealizedPnLDelta)
		}
		if r.Side == event.SideBuy {
			if r.RealizedPnLDelta == nil || r.RealizedPnLDelta.Abs().Cmp(legacyZeroDelta) < 0 {
				costAdjustment = costAdjustment.Add(r.Commission.Add(r.Fees).Add(r.Taxes))
			}
		}
	}

	return money.Quantize(total.Sub(costAdjustment))
}

// RealizedPnLFromExits sums stored deltas of SELL rows only; rows
// without a delta contribute zero. Trusts exit rows, ignores whatever
// legacy BUY rows stored.
func RealizedPnLFromExits(rows []rebuild.Row) decimal.Decimal {
	total := decimal.Zero
	for i := range rows {
		r := &rows[i]
		if !r.IsExecution() || r.Side != event.SideSell {
			continue
		}
		if r.RealizedPnLDelta != nil {
			total = total.Add(*r.RealizedPnLDelta)
		}
	}
	return money.Quantize(total)
}

// RealizedPnLFIFO recomputes realized P&L from raw row fields with
// FIFO lot matching, trusting no stored delta at all.
func RealizedPnLFIFO(rows []rebuild.Row) decimal.Decimal {
	return money.Quantize(rebuild.FIFORealizedPnL(rows).RealizedPnL)
}
