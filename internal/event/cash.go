package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashKind discriminates cash-movement direction
type CashKind int32

const (
	CashKindUnknown CashKind = iota
	CashKindDeposit
	CashKindWithdrawal
)

// CashMovement is an external deposit into or withdrawal from an
// account's cash balance. Amount is always positive; direction comes
// from Kind. Idempotency key: movement_id.
type CashMovement struct {
	MovementID uuid.UUID // Idempotency key
	Account    uuid.UUID
	Kind       CashKind
	Amount     decimal.Decimal
	Sequence   int64
	Timestamp  time.Time
}

func (c *CashMovement) IdempotencyKey() string {
	return c.MovementID.String()
}

func (c *CashMovement) EventType() EventType {
	return EventTypeCashMovement
}

func (c *CashMovement) AccountID() *string {
	a := c.Account.String()
	return &a
}

func (c *CashMovement) SourceSequence() int64 {
	return c.Sequence
}

func (ck CashKind) String() string {
	switch ck {
	case CashKindDeposit:
		return "DEPOSIT"
	case CashKindWithdrawal:
		return "WITHDRAWAL"
	default:
		return "UNKNOWN"
	}
}
