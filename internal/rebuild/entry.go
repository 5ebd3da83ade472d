package rebuild

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// EntryBasis is the cost-exclusive moving-average entry basis of a
// surviving position: avg_price * avg_fx approximates the per-unit
// base-currency cost excluding commission/fees/taxes.
type EntryBasis struct {
	AvgPrice decimal.Decimal
	AvgFX    decimal.Decimal
}

// EntryPriceAndFX re-derives the average entry price and FX for one
// symbol from ordered history. Price and FX-implied base cost are
// accumulated separately from transaction costs. Each SELL decrements
// both accumulators by the quantity-weighted average taken before the
// decrement, so the remainder represents exactly the surviving
// quantity's contribution. Returns ok=false once the position is flat
// or the average price degenerates to zero.
func EntryPriceAndFX(rows []Row) (EntryBasis, bool) {
	qty := decimal.Zero
	priceQty := decimal.Zero // sum of qty*price
	baseCost := decimal.Zero // sum of qty*price*fx

	for i := range rows {
		r := &rows[i]
		if !r.IsExecution() {
			continue
		}
		switch r.Side {
		case event.SideBuy:
			qty = qty.Add(r.Qty)
			priceQty = priceQty.Add(r.Qty.Mul(r.Price))
			baseCost = baseCost.Add(r.Qty.Mul(r.Price).Mul(r.FX))
		case event.SideSell:
			if qty.Sign() <= 0 {
				continue
			}
			avgPrice := priceQty.Div(qty)
			avgBaseCost := baseCost.Div(qty)
			qty = qty.Sub(r.Qty)
			if qty.Sign() <= 0 {
				qty = decimal.Zero
				priceQty = decimal.Zero
				baseCost = decimal.Zero
				continue
			}
			priceQty = priceQty.Sub(avgPrice.Mul(r.Qty))
			baseCost = baseCost.Sub(avgBaseCost.Mul(r.Qty))
		}
	}

	if qty.Sign() <= 0 {
		return EntryBasis{}, false
	}
	avgPrice := priceQty.Div(qty)
	if avgPrice.IsZero() {
		return EntryBasis{}, false
	}
	avgBaseCost := baseCost.Div(qty)
	return EntryBasis{
		AvgPrice: avgPrice,
		AvgFX:    avgBaseCost.Div(avgPrice),
	}, true
}
