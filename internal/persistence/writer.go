package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerWriter writes the event log and the relational ledger tables
// using multi-row INSERTs. All writes are idempotent via ON CONFLICT
// so redelivered batches never double-apply.
type LedgerWriter struct {
	db *sql.DB
}

// execer abstracts *sql.DB and *sql.Tx so batch writes can run inside
// the worker's flush transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow is a row in ledger.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	AccountID      *string
	Payload        []byte // JSON-encoded event payload
	Timestamp      time.Time
	SourceSequence int64
}

// TransactionRow is a row in ledger.transactions: the transaction
// inputs plus the post-apply snapshots history reconstruction reads.
type TransactionRow struct {
	TxID             string
	AccountID        string
	Symbol           string
	Type             string
	Side             string
	Qty              decimal.Decimal
	Price            decimal.Decimal
	Commission       decimal.Decimal
	Fees             decimal.Decimal
	Taxes            decimal.Decimal
	FX               decimal.Decimal
	GrossValue       decimal.Decimal
	CostTotal        decimal.Decimal
	NetValue         decimal.Decimal
	CashAfter        decimal.Decimal
	QtyAfter         decimal.Decimal
	AvgCostAfter     decimal.Decimal
	NotionalAfter    decimal.Decimal
	RealizedPnLDelta decimal.Decimal
	PositionRemoved  bool
	StrategyID       *string
	SourceSequence   int64
	Timestamp        time.Time
}

// CashRow is a row in ledger.cash_movements.
type CashRow struct {
	MovementID string
	AccountID  string
	Kind       string
	Amount     decimal.Decimal
	CashAfter  decimal.Decimal
	Timestamp  time.Time
}

// AccountRow mirrors ledger.accounts for upserts.
type AccountRow struct {
	AccountID       string
	BaseCurrency    string
	Cash            decimal.Decimal
	InitialEquity   decimal.Decimal
	MaxEquityToDate decimal.Decimal
	RealizedPnLCum  decimal.Decimal
	Version         int64
}

// PositionRow mirrors ledger.positions for upserts.
type PositionRow struct {
	AccountID  string
	Symbol     string
	Qty        decimal.Decimal
	AvgCost    decimal.Decimal
	EntryPrice decimal.Decimal
	EntryFX    decimal.Decimal
	LastPrice  decimal.Decimal
	FX         decimal.Decimal
	Version    int64
}

func NewLedgerWriter(db *sql.DB) *LedgerWriter {
	return &LedgerWriter{db: db}
}

// WriteEventBatch appends a batch to ledger.events.
func (w *LedgerWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.events
		(sequence, event_type, idempotency_key, account_id, payload, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.AccountID,
			e.Payload, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTransactionBatch appends a batch to ledger.transactions.
func (w *LedgerWriter) WriteTransactionBatch(ctx context.Context, ex execer, txs []TransactionRow) error {
	if len(txs) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.transactions
		(tx_id, account_id, symbol, type, side, qty, price, commission, fees, taxes, fx,
		 gross_value, cost_total, net_value, cash_after, qty_after, avg_cost_after,
		 notional_after, realized_pnl_delta, position_removed, strategy_id, source_sequence, timestamp)
		VALUES `

	const cols = 23
	values := make([]string, 0, len(txs))
	args := make([]interface{}, 0, len(txs)*cols)

	for i, t := range txs {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			t.TxID, t.AccountID, t.Symbol, t.Type, t.Side,
			t.Qty, t.Price, t.Commission, t.Fees, t.Taxes, t.FX,
			t.GrossValue, t.CostTotal, t.NetValue, t.CashAfter, t.QtyAfter, t.AvgCostAfter,
			t.NotionalAfter, t.RealizedPnLDelta, t.PositionRemoved, t.StrategyID, t.SourceSequence, t.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (tx_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteCashBatch appends a batch to ledger.cash_movements.
func (w *LedgerWriter) WriteCashBatch(ctx context.Context, ex execer, movements []CashRow) error {
	if len(movements) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.cash_movements
		(movement_id, account_id, kind, amount, cash_after, timestamp)
		VALUES `

	values := make([]string, 0, len(movements))
	args := make([]interface{}, 0, len(movements)*6)

	for i, mv := range movements {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, mv.MovementID, mv.AccountID, mv.Kind, mv.Amount, mv.CashAfter, mv.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (movement_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// UpsertAccount writes the latest account state. Version guards
// against an older batch overwriting a newer row after a retry.
func (w *LedgerWriter) UpsertAccount(ctx context.Context, ex execer, a AccountRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO ledger.accounts
			(account_id, base_currency, cash, initial_equity, max_equity_to_date, realized_pnl_cum, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			cash = EXCLUDED.cash,
			initial_equity = EXCLUDED.initial_equity,
			max_equity_to_date = EXCLUDED.max_equity_to_date,
			realized_pnl_cum = EXCLUDED.realized_pnl_cum,
			version = EXCLUDED.version,
			updated_at = NOW()
		WHERE ledger.accounts.version < EXCLUDED.version
	`, a.AccountID, a.BaseCurrency, a.Cash, a.InitialEquity, a.MaxEquityToDate, a.RealizedPnLCum, a.Version)
	return err
}

// UpsertPosition writes the latest open position state.
func (w *LedgerWriter) UpsertPosition(ctx context.Context, ex execer, p PositionRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO ledger.positions
			(account_id, symbol, qty, avg_cost, entry_price, entry_fx, last_price, fx, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			qty = EXCLUDED.qty,
			avg_cost = EXCLUDED.avg_cost,
			entry_price = EXCLUDED.entry_price,
			entry_fx = EXCLUDED.entry_fx,
			last_price = EXCLUDED.last_price,
			fx = EXCLUDED.fx,
			version = EXCLUDED.version,
			updated_at = NOW()
		WHERE ledger.positions.version < EXCLUDED.version
	`, p.AccountID, p.Symbol, p.Qty, p.AvgCost, p.EntryPrice, p.EntryFX, p.LastPrice, p.FX, p.Version)
	return err
}

// DeletePosition removes a fully closed position.
func (w *LedgerWriter) DeletePosition(ctx context.Context, ex execer, accountID, symbol string) error {
	_, err := ex.ExecContext(ctx, `
		DELETE FROM ledger.positions WHERE account_id = $1 AND symbol = $2
	`, accountID, symbol)
	return err
}

// MarshalEventPayload serializes an event payload to JSON for storage.
func MarshalEventPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
