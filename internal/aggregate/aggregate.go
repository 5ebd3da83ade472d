package aggregate

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/money"
	"AcctLedger/internal/state"
	"AcctLedger/internal/valuation"
)

// Stateless portfolio rollups. All functions are pure folds over their
// input slices.

// UnrealizedPnLSum sums the avg-cost unrealized P&L of open positions.
func UnrealizedPnLSum(positions []*state.Position) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(valuation.UnrealizedPnL(pos))
	}
	return money.Quantize(total)
}

// NotionalSum sums open-position market value.
func NotionalSum(positions []*state.Position) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.Notional())
	}
	return money.Quantize(total)
}

// CostBasisSum sums qty * avg_cost across open positions.
func CostBasisSum(positions []*state.Position) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		total = total.Add(pos.Qty.Mul(pos.AvgCost))
	}
	return money.Quantize(total)
}

// OrderExposure is one open order's contribution to risk totals.
// Risk is nil when the order has no stop attached.
type OrderExposure struct {
	StrategyID *string
	Qty        decimal.Decimal
	Risk       *decimal.Decimal
}

// OrderRiskTotals sums risk and quantity over open orders. Orders
// without a risk figure contribute quantity only.
func OrderRiskTotals(orders []OrderExposure) (totalRisk, totalQty decimal.Decimal) {
	totalRisk = decimal.Zero
	totalQty = decimal.Zero
	for i := range orders {
		o := &orders[i]
		if o.Risk != nil && o.Risk.Sign() != 0 {
			totalRisk = totalRisk.Add(*o.Risk)
		}
		if o.Qty.Sign() > 0 {
			totalQty = totalQty.Add(o.Qty)
		}
	}
	return totalRisk, totalQty
}

// StrategyExposure groups order risk/quantity per strategy.
type StrategyExposure struct {
	OrderCount int
	TotalRisk  decimal.Decimal
	TotalQty   decimal.Decimal
}

// GroupByStrategy rolls up order exposure per strategy id. Orders
// without a strategy fall under the empty key.
func GroupByStrategy(orders []OrderExposure) map[string]*StrategyExposure {
	result := make(map[string]*StrategyExposure)
	for i := range orders {
		o := &orders[i]
		key := ""
		if o.StrategyID != nil {
			key = *o.StrategyID
		}
		m := result[key]
		if m == nil {
			m = &StrategyExposure{TotalRisk: decimal.Zero, TotalQty: decimal.Zero}
			result[key] = m
		}
		m.OrderCount++
		if o.Risk != nil {
			m.TotalRisk = m.TotalRisk.Add(*o.Risk)
		}
		m.TotalQty = m.TotalQty.Add(o.Qty)
	}
	return result
}

// AverageOf returns the simple average of the non-nil values, or nil
// when every value is missing.
func AverageOf(values []*decimal.Decimal) *decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum = sum.Add(*v)
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(n)))
	return &avg
}
