package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType discriminates the transaction state machine
type TxType int32

const (
	TxTypeUnknown TxType = iota
	TxTypeOrder
	TxTypeOrderSL
	TxTypeOrderTP
	TxTypeFill
	TxTypeStopLoss
	TxTypeTakeProfit
	TxTypeMarkToMarket
	TxTypeAdjustment
)

// Side represents trade direction
type Side int32

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Transaction is one trade event for an (account, symbol) pair.
// Idempotency key: tx_id (UUID from the order-management system).
// Costs (commission/fees/taxes) must be zero except on execution
// types (FILL, SL, TP).
type Transaction struct {
	TxID       uuid.UUID // Idempotency key
	Account    uuid.UUID
	Symbol     string
	Type       TxType
	TradeSide  Side
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Fees       decimal.Decimal
	Taxes      decimal.Decimal
	FX         decimal.Decimal  // Rate to account base currency, 1 for base-currency symbols
	StopPrice  *decimal.Decimal // Present only on ORDER_SL / entry orders with a stop
	StrategyID *string          // Originating strategy, for rollups
	Sequence   int64            // Source sequence from the order-management system
	Timestamp  time.Time        // Versioned input timestamp (NOT wall-clock)
}

func (t *Transaction) IdempotencyKey() string {
	return t.TxID.String()
}

func (t *Transaction) EventType() EventType {
	return EventTypeTransaction
}

func (t *Transaction) AccountID() *string {
	a := t.Account.String()
	return &a
}

func (t *Transaction) SourceSequence() int64 {
	return t.Sequence
}

// IsExecution reports whether the type moves cash and position quantity
// (and therefore may carry transaction costs).
func (t *Transaction) IsExecution() bool {
	return t.Type == TxTypeFill || t.Type == TxTypeStopLoss || t.Type == TxTypeTakeProfit
}

func (tt TxType) String() string {
	switch tt {
	case TxTypeOrder:
		return "ORDER"
	case TxTypeOrderSL:
		return "ORDER_SL"
	case TxTypeOrderTP:
		return "ORDER_TP"
	case TxTypeFill:
		return "FILL"
	case TxTypeStopLoss:
		return "SL"
	case TxTypeTakeProfit:
		return "TP"
	case TxTypeMarkToMarket:
		return "MARK_TO_MARKET"
	case TxTypeAdjustment:
		return "ADJUSTMENT"
	default:
		return "UNKNOWN"
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseTxType is the inverse of TxType.String.
func ParseTxType(s string) (TxType, error) {
	switch s {
	case "ORDER":
		return TxTypeOrder, nil
	case "ORDER_SL":
		return TxTypeOrderSL, nil
	case "ORDER_TP":
		return TxTypeOrderTP, nil
	case "FILL":
		return TxTypeFill, nil
	case "SL":
		return TxTypeStopLoss, nil
	case "TP":
		return TxTypeTakeProfit, nil
	case "MARK_TO_MARKET":
		return TxTypeMarkToMarket, nil
	case "ADJUSTMENT":
		return TxTypeAdjustment, nil
	default:
		return TxTypeUnknown, fmt.Errorf("unknown transaction type: %s", s)
	}
}

// ParseSide is the inverse of Side.String. An empty string is valid
// for non-execution types, which carry no side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	case "":
		return SideUnknown, nil
	default:
		return SideUnknown, fmt.Errorf("unknown side: %s", s)
	}
}
