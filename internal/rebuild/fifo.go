package rebuild

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// lot is one acquired tranche: quantity plus its full cost including
// entry-side transaction costs.
type lot struct {
	qty  decimal.Decimal
	cost decimal.Decimal
}

// FIFOResult carries the FIFO re-derivation output. UnmatchedSells
// counts SELL rows that arrived with no open lots; each contributes
// zero P&L rather than failing, and the count surfaces the masked
// data-quality problem.
type FIFOResult struct {
	RealizedPnL    decimal.Decimal
	UnmatchedSells int
}

// FIFORealizedPnL recomputes realized P&L from raw history across all
// symbols using first-in-first-out lot matching. Per symbol: BUY
// appends a lot (qty, qty*price*fx + costs); SELL consumes lots
// oldest-first, pro-rating the cost of a partially consumed lot by
// quantity. Exit proceeds are qty*price*fx - costs; realized P&L per
// exit is proceeds minus consumed cost. Independent of the stored
// per-row deltas and of the applier's average-cost model; the two
// must agree on clean history.
func FIFORealizedPnL(rows []Row) FIFOResult {
	lots := make(map[string][]lot)
	total := decimal.Zero
	unmatched := 0

	for i := range rows {
		r := &rows[i]
		if !r.IsExecution() {
			continue
		}
		switch r.Side {
		case event.SideBuy:
			lots[r.Symbol] = append(lots[r.Symbol], lot{
				qty:  r.Qty,
				cost: r.Qty.Mul(r.Price).Mul(r.FX).Add(r.costs()),
			})
		case event.SideSell:
			queue := lots[r.Symbol]
			if len(queue) == 0 {
				unmatched++
				continue
			}
			remaining := r.Qty
			consumedCost := decimal.Zero
			for len(queue) > 0 && remaining.Sign() > 0 {
				head := queue[0]
				if head.qty.Cmp(remaining) <= 0 {
					consumedCost = consumedCost.Add(head.cost)
					remaining = remaining.Sub(head.qty)
					queue = queue[1:]
				} else {
					fraction := remaining.Div(head.qty)
					partCost := head.cost.Mul(fraction)
					consumedCost = consumedCost.Add(partCost)
					queue[0] = lot{
						qty:  head.qty.Sub(remaining),
						cost: head.cost.Sub(partCost),
					}
					remaining = decimal.Zero
				}
			}
			lots[r.Symbol] = queue

			proceeds := r.Qty.Mul(r.Price).Mul(r.FX).Sub(r.costs())
			total = total.Add(proceeds.Sub(consumedCost))
		}
	}

	return FIFOResult{RealizedPnL: total, UnmatchedSells: unmatched}
}
