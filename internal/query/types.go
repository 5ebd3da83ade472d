package query

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountValuationResponse is the account-level valuation read model.
// All responses include as_of_sequence for freshness semantics.
type AccountValuationResponse struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Equity         decimal.Decimal `json:"equity"`
	Cash           decimal.Decimal `json:"cash"`
	NotionalSum    decimal.Decimal `json:"notional_sum"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnLCum decimal.Decimal `json:"realized_pnl_cum"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalPnLPct    decimal.Decimal `json:"total_pnl_pct"`
	DrawdownPct    decimal.Decimal `json:"drawdown_pct"`
	AsOfSequence   int64           `json:"as_of_sequence"`
}

// PositionResponse is one open position for API queries.
type PositionResponse struct {
	AccountID     uuid.UUID       `json:"account_id"`
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	FX            decimal.Decimal `json:"fx"`
	Notional      decimal.Decimal `json:"notional"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	AsOfSequence  int64           `json:"as_of_sequence"`
}

// TransactionResponse is one applied transaction for API queries.
type TransactionResponse struct {
	TxID             uuid.UUID        `json:"tx_id"`
	AccountID        uuid.UUID        `json:"account_id"`
	Symbol           string           `json:"symbol"`
	Type             string           `json:"type"`
	Side             string           `json:"side,omitempty"`
	Qty              decimal.Decimal  `json:"qty"`
	Price            decimal.Decimal  `json:"price"`
	Commission       decimal.Decimal  `json:"commission"`
	Fees             decimal.Decimal  `json:"fees"`
	Taxes            decimal.Decimal  `json:"taxes"`
	FX               decimal.Decimal  `json:"fx"`
	GrossValue       decimal.Decimal  `json:"gross_value"`
	CostTotal        decimal.Decimal  `json:"cost_total"`
	NetValue         decimal.Decimal  `json:"net_value"`
	CashAfter        decimal.Decimal  `json:"cash_after"`
	QtyAfter         decimal.Decimal  `json:"qty_after"`
	AvgCostAfter     decimal.Decimal  `json:"avg_cost_after"`
	RealizedPnLDelta *decimal.Decimal `json:"realized_pnl_delta,omitempty"`
	StrategyID       *string          `json:"strategy_id,omitempty"`
	SourceSequence   int64            `json:"source_sequence"`
	Timestamp        time.Time        `json:"timestamp"`
}

// CashMovementResponse is one deposit or withdrawal for API queries.
type CashMovementResponse struct {
	MovementID uuid.UUID       `json:"movement_id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	CashAfter  decimal.Decimal `json:"cash_after"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RebuiltPositionResponse is an open position re-derived from
// transaction history rather than read from the live book.
type RebuiltPositionResponse struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	FX            decimal.Decimal `json:"fx"`
	Notional      decimal.Decimal `json:"notional"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}
