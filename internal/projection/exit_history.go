package projection

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/aggregate"
	"AcctLedger/internal/core"
	"AcctLedger/internal/event"
)

// ExitEntry records one realized exit (SELL execution).
type ExitEntry struct {
	AccountID   uuid.UUID
	Symbol      string
	Qty         decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
	StrategyID  *string
	FullClose   bool
	Sequence    int64
	TimestampUs int64
}

// ExitHistoryProjection maintains an in-memory record of recent exits
// plus per-strategy performance rollups for quick queries.
type ExitHistoryProjection struct {
	entries    []ExitEntry
	strategies map[string]*aggregate.StrategyPerformance
}

func NewExitHistoryProjection() *ExitHistoryProjection {
	return &ExitHistoryProjection{
		entries:    make([]ExitEntry, 0),
		strategies: make(map[string]*aggregate.StrategyPerformance),
	}
}

// AddFromOutput records an exit when the output is a SELL execution.
func (p *ExitHistoryProjection) AddFromOutput(output core.CoreOutput) {
	rec := output.Record
	if rec == nil || rec.Side != event.SideSell {
		return
	}
	if rec.Type != event.TxTypeFill && rec.Type != event.TxTypeStopLoss && rec.Type != event.TxTypeTakeProfit {
		return
	}

	p.entries = append(p.entries, ExitEntry{
		AccountID:   rec.AccountID,
		Symbol:      rec.Symbol,
		Qty:         rec.Qty,
		Price:       rec.Price,
		RealizedPnL: rec.RealizedPnLDelta,
		Commission:  rec.Commission,
		StrategyID:  rec.StrategyID,
		FullClose:   rec.PositionRemoved,
		Sequence:    output.Envelope.Sequence,
		TimestampUs: rec.Timestamp.UnixMicro(),
	})

	if rec.StrategyID != nil {
		perf := p.strategies[*rec.StrategyID]
		if perf == nil {
			perf = &aggregate.StrategyPerformance{StrategyID: *rec.StrategyID}
			p.strategies[*rec.StrategyID] = perf
		}
		perf.ApplyExit(rec.RealizedPnLDelta, rec.Commission)
	}
}

// QueryByAccount returns the most recent exits for an account, newest
// first.
func (p *ExitHistoryProjection) QueryByAccount(accountID uuid.UUID, limit int) []ExitEntry {
	result := make([]ExitEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].AccountID == accountID {
			result = append(result, p.entries[i])
		}
	}

	return result
}

// StrategyPerformance returns the rollup for one strategy, or nil.
func (p *ExitHistoryProjection) StrategyPerformance(strategyID string) *aggregate.StrategyPerformance {
	return p.strategies[strategyID]
}

// Strategies returns all strategy rollups.
func (p *ExitHistoryProjection) Strategies() []*aggregate.StrategyPerformance {
	out := make([]*aggregate.StrategyPerformance, 0, len(p.strategies))
	for _, perf := range p.strategies {
		out = append(out, perf)
	}
	return out
}
