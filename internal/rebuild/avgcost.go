package rebuild

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// AvgCost re-derives the cost-inclusive average cost of one symbol's
// position from ordered history, independent of any stored running
// total. BUY adds qty*price*fx plus transaction costs; SELL reduces
// quantity and resets both accumulators the moment quantity reaches
// zero (full-close semantics, no short crossing). Returns ok=false
// when the position ends flat or there is no execution history.
//
// Used to repair a corrupted stored avg_cost.
func AvgCost(rows []Row) (decimal.Decimal, bool) {
	totalCost := decimal.Zero
	totalQty := decimal.Zero

	for i := range rows {
		r := &rows[i]
		if !r.IsExecution() {
			continue
		}
		switch r.Side {
		case event.SideBuy:
			totalCost = totalCost.Add(r.Qty.Mul(r.Price).Mul(r.FX).Add(r.costs()))
			totalQty = totalQty.Add(r.Qty)
		case event.SideSell:
			totalQty = totalQty.Sub(r.Qty)
			if totalQty.Sign() <= 0 {
				totalCost = decimal.Zero
				totalQty = decimal.Zero
			}
		}
	}

	if totalQty.Sign() <= 0 {
		return decimal.Zero, false
	}
	return totalCost.Div(totalQty), true
}
