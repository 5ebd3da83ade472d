package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
)

// AdminIngestService provides manual event injection for operational
// use (backfills, corrections, ad-hoc price refreshes). It is not a
// high-throughput path; bulk ingestion goes through NATS.
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// InjectDeposit manually injects a deposit for an account.
func (s *AdminIngestService) InjectDeposit(
	ctx context.Context,
	accountID uuid.UUID,
	amount decimal.Decimal,
) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.CashMovement{
		MovementID: uuid.New(),
		Account:    accountID,
		Kind:       event.CashKindDeposit,
		Amount:     amount,
		Sequence:   time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectWithdrawal manually injects a withdrawal for an account.
func (s *AdminIngestService) InjectWithdrawal(
	ctx context.Context,
	accountID uuid.UUID,
	amount decimal.Decimal,
) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.CashMovement{
		MovementID: uuid.New(),
		Account:    accountID,
		Kind:       event.CashKindWithdrawal,
		Amount:     amount,
		Sequence:   time.Now().UnixMicro(),
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPrice manually injects a price update for a symbol.
func (s *AdminIngestService) InjectPrice(
	ctx context.Context,
	symbol string,
	price decimal.Decimal,
	fx decimal.Decimal,
	priceSequence int64,
) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if fx.IsZero() {
		fx = decimal.New(1, 0)
	}

	now := time.Now()
	evt := &event.PriceUpdate{
		Symbol:        symbol,
		Price:         price,
		FX:            fx,
		TradingDate:   now.UTC().Format("2006-01-02"),
		PriceSequence: priceSequence,
		Timestamp:     now,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
