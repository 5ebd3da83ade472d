package rebuild

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// Row is one historical transaction as read back from the event store.
// QtyAfter/AvgCostAfter are the post-transaction snapshots recorded at
// apply time; RealizedPnLDelta is nil for legacy rows that never
// stored one. All folds in this package treat rows as immutable.
type Row struct {
	Symbol           string
	Type             event.TxType
	Side             event.Side
	Qty              decimal.Decimal
	Price            decimal.Decimal
	Commission       decimal.Decimal
	Fees             decimal.Decimal
	Taxes            decimal.Decimal
	FX               decimal.Decimal
	QtyAfter         decimal.Decimal
	AvgCostAfter     decimal.Decimal
	RealizedPnLDelta *decimal.Decimal
	StrategyID       *string
	Sequence         int64
	Timestamp        time.Time
}

// IsExecution reports whether the row moved cash and quantity.
func (r *Row) IsExecution() bool {
	return r.Type == event.TxTypeFill || r.Type == event.TxTypeStopLoss || r.Type == event.TxTypeTakeProfit
}

func (r *Row) costs() decimal.Decimal {
	return r.Commission.Add(r.Fees).Add(r.Taxes)
}

// SortRows orders rows by (timestamp, sequence). Sequence is the
// deterministic tie-break for identical timestamps.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		}
		return rows[i].Sequence < rows[j].Sequence
	})
}
