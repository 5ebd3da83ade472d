package rebuild

import (
	"sort"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/money"
)

// OpenPosition is one reconstructed open position with live valuation.
type OpenPosition struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgCost       decimal.Decimal
	LastPrice     decimal.Decimal
	FX            decimal.Decimal
	Notional      decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Positions reconstructs the set of currently open positions from a
// flat transaction log. Per symbol, the row with the greatest
// (timestamp, sequence) wins and the position is open if its recorded
// post-transaction quantity is positive. Valuation uses the live
// price/FX maps where present, else the winning row's own price/fx.
// Results are sorted by symbol; re-running on the same history yields
// identical output.
func Positions(rows []Row, livePrices, liveFX map[string]decimal.Decimal) []OpenPosition {
	latest := make(map[string]*Row)
	for i := range rows {
		r := &rows[i]
		cur := latest[r.Symbol]
		if cur == nil || after(r, cur) {
			latest[r.Symbol] = r
		}
	}

	result := make([]OpenPosition, 0, len(latest))
	for symbol, r := range latest {
		if r.QtyAfter.Sign() <= 0 {
			continue
		}
		price := r.Price
		if p, ok := livePrices[symbol]; ok {
			price = p
		}
		fx := r.FX
		if f, ok := liveFX[symbol]; ok {
			fx = f
		}
		result = append(result, OpenPosition{
			Symbol:        symbol,
			Qty:           r.QtyAfter,
			AvgCost:       r.AvgCostAfter,
			LastPrice:     price,
			FX:            fx,
			Notional:      money.Quantize(r.QtyAfter.Mul(price).Mul(fx)),
			UnrealizedPnL: money.Quantize(r.QtyAfter.Mul(price.Mul(fx).Sub(r.AvgCostAfter))),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// after reports whether a orders strictly after b by (timestamp,
// sequence).
func after(a, b *Row) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Sequence > b.Sequence
}
