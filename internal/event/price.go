package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceUpdate is a daily valuation input for one symbol: closing price
// plus the FX rate of the symbol's currency to the account base
// currency. Account-independent (AccountID is nil). Gaps in the price
// feed sequence are tolerated.
type PriceUpdate struct {
	Symbol        string
	Price         decimal.Decimal
	FX            decimal.Decimal
	TradingDate   string // YYYY-MM-DD
	PriceSequence int64
	Timestamp     time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%s:%d", p.Symbol, p.TradingDate, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) AccountID() *string {
	return nil
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
