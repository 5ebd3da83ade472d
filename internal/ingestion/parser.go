package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string)
// into a typed event.Event. The ingestion shell validates, parses, and
// converts raw events before sending to the engine.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Transaction":
		return parseTransaction(raw.Data)
	case "CashMovement":
		return parseCashMovement(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Decimal
// fields accept both JSON strings and numbers.

type transactionJSON struct {
	TxID        string           `json:"tx_id"`
	AccountID   string           `json:"account_id"`
	Symbol      string           `json:"symbol"`
	Type        string           `json:"type"`
	Side        string           `json:"side,omitempty"`
	Qty         decimal.Decimal  `json:"qty"`
	Price       decimal.Decimal  `json:"price"`
	Commission  decimal.Decimal  `json:"commission"`
	Fees        decimal.Decimal  `json:"fees"`
	Taxes       decimal.Decimal  `json:"taxes"`
	FX          decimal.Decimal  `json:"fx"`
	StopPrice   *decimal.Decimal `json:"sl_price,omitempty"`
	StrategyID  *string          `json:"strategy_id,omitempty"`
	Sequence    int64            `json:"sequence"`
	TimestampUs int64            `json:"timestamp_us"`
}

func parseTransaction(data []byte) (*event.Transaction, error) {
	var j transactionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Transaction: %w", err)
	}

	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse tx_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	txType, err := event.ParseTxType(j.Type)
	if err != nil {
		return nil, err
	}
	side, err := event.ParseSide(j.Side)
	if err != nil {
		return nil, err
	}

	// FX defaults to 1 for base-currency symbols
	fx := j.FX
	if fx.IsZero() {
		fx = decimal.New(1, 0)
	}

	return &event.Transaction{
		TxID:       txID,
		Account:    accountID,
		Symbol:     j.Symbol,
		Type:       txType,
		TradeSide:  side,
		Qty:        j.Qty,
		Price:      j.Price,
		Commission: j.Commission,
		Fees:       j.Fees,
		Taxes:      j.Taxes,
		FX:         fx,
		StopPrice:  j.StopPrice,
		StrategyID: j.StrategyID,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type cashMovementJSON struct {
	MovementID  string          `json:"movement_id"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Sequence    int64           `json:"sequence"`
	TimestampUs int64           `json:"timestamp_us"`
}

func parseCashMovement(data []byte) (*event.CashMovement, error) {
	var j cashMovementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CashMovement: %w", err)
	}

	movementID, err := uuid.Parse(j.MovementID)
	if err != nil {
		return nil, fmt.Errorf("parse movement_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}

	var kind event.CashKind
	switch j.Kind {
	case "DEPOSIT":
		kind = event.CashKindDeposit
	case "WITHDRAWAL":
		kind = event.CashKindWithdrawal
	default:
		return nil, fmt.Errorf("unknown cash kind: %s", j.Kind)
	}

	return &event.CashMovement{
		MovementID: movementID,
		Account:    accountID,
		Kind:       kind,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	FX            decimal.Decimal `json:"fx"`
	TradingDate   string          `json:"trading_date"`
	PriceSequence int64           `json:"price_sequence"`
	TimestampUs   int64           `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}

	fx := j.FX
	if fx.IsZero() {
		fx = decimal.New(1, 0)
	}

	return &event.PriceUpdate{
		Symbol:        j.Symbol,
		Price:         j.Price,
		FX:            fx,
		TradingDate:   j.TradingDate,
		PriceSequence: j.PriceSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}
