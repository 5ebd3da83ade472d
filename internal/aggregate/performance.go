package aggregate

import (
	"github.com/shopspring/decimal"

	"AcctLedger/internal/money"
)

// StrategyPerformance is the per-strategy rollup maintained by exit
// events and signal counters.
type StrategyPerformance struct {
	StrategyID       string
	SignalsGenerated int
	SignalsApproved  int
	SignalsRejected  int
	WinningTrades    int
	LosingTrades     int
	RealizedPnL      decimal.Decimal
	TotalCommission  decimal.Decimal
}

// TotalTrades is winning plus losing trades; break-even exits count in
// neither bucket.
func (p *StrategyPerformance) TotalTrades() int {
	return p.WinningTrades + p.LosingTrades
}

// WinRate returns winning trades as a percentage of total trades, nil
// when no trades closed yet.
func (p *StrategyPerformance) WinRate() *decimal.Decimal {
	return Rate(decimal.NewFromInt(int64(p.WinningTrades)), decimal.NewFromInt(int64(p.TotalTrades())))
}

// ApplyExit folds one closed trade into the rollup.
func (p *StrategyPerformance) ApplyExit(realizedPnL, commission decimal.Decimal) {
	switch {
	case realizedPnL.Sign() > 0:
		p.WinningTrades++
	case realizedPnL.Sign() < 0:
		p.LosingTrades++
	}
	p.RealizedPnL = p.RealizedPnL.Add(realizedPnL)
	p.TotalCommission = p.TotalCommission.Add(commission)
}

// Rate returns numerator/denominator as a percentage (4 dp), nil when
// the denominator is not positive.
func Rate(numerator, denominator decimal.Decimal) *decimal.Decimal {
	if denominator.Sign() <= 0 {
		return nil
	}
	r := money.QuantizePct(numerator.Div(denominator).Mul(money.Hundred))
	return &r
}

// StrategyTotals sums per-strategy rollups into one portfolio-level
// rollup. The combined win rate is recomputed from the summed counts.
func StrategyTotals(perStrategy []*StrategyPerformance) *StrategyPerformance {
	total := &StrategyPerformance{
		RealizedPnL:     decimal.Zero,
		TotalCommission: decimal.Zero,
	}
	for _, p := range perStrategy {
		total.SignalsGenerated += p.SignalsGenerated
		total.SignalsApproved += p.SignalsApproved
		total.SignalsRejected += p.SignalsRejected
		total.WinningTrades += p.WinningTrades
		total.LosingTrades += p.LosingTrades
		total.RealizedPnL = total.RealizedPnL.Add(p.RealizedPnL)
		total.TotalCommission = total.TotalCommission.Add(p.TotalCommission)
	}
	return total
}
