package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/rebuild"
)

// HistoryReader loads persisted transaction history in the shape the
// rebuild folds consume. Rows come back ordered by (timestamp,
// source_sequence) so callers can fold without re-sorting.
type HistoryReader struct {
	db *sql.DB
}

func NewHistoryReader(db *sql.DB) *HistoryReader {
	return &HistoryReader{db: db}
}

const rowColumns = `symbol, type, side, qty, price, commission, fees, taxes, fx,
	qty_after, avg_cost_after, realized_pnl_delta, strategy_id, source_sequence, timestamp`

// TransactionRows loads the full transaction history for an account.
func (hr *HistoryReader) TransactionRows(ctx context.Context, accountID uuid.UUID) ([]rebuild.Row, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ledger.transactions
		WHERE account_id = $1
		ORDER BY timestamp, source_sequence
	`, rowColumns)
	return hr.queryRows(ctx, query, accountID.String())
}

// TransactionRowsForSymbol loads history for one symbol of an account.
func (hr *HistoryReader) TransactionRowsForSymbol(ctx context.Context, accountID uuid.UUID, symbol string) ([]rebuild.Row, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ledger.transactions
		WHERE account_id = $1 AND symbol = $2
		ORDER BY timestamp, source_sequence
	`, rowColumns)
	return hr.queryRows(ctx, query, accountID.String(), symbol)
}

func (hr *HistoryReader) queryRows(ctx context.Context, query string, args ...interface{}) ([]rebuild.Row, error) {
	rows, err := hr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []rebuild.Row
	for rows.Next() {
		var (
			r          rebuild.Row
			typeStr    string
			sideStr    sql.NullString
			delta      sql.NullString
			strategyID sql.NullString
		)
		if err := rows.Scan(
			&r.Symbol, &typeStr, &sideStr, &r.Qty, &r.Price,
			&r.Commission, &r.Fees, &r.Taxes, &r.FX,
			&r.QtyAfter, &r.AvgCostAfter, &delta, &strategyID,
			&r.Sequence, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}

		txType, err := event.ParseTxType(typeStr)
		if err != nil {
			return nil, err
		}
		r.Type = txType
		if sideStr.Valid {
			side, err := event.ParseSide(sideStr.String)
			if err != nil {
				return nil, err
			}
			r.Side = side
		}
		if delta.Valid {
			d, err := decimal.NewFromString(delta.String)
			if err != nil {
				return nil, fmt.Errorf("parse realized_pnl_delta: %w", err)
			}
			r.RealizedPnLDelta = &d
		}
		if strategyID.Valid {
			s := strategyID.String
			r.StrategyID = &s
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// CashMovements loads the cash movement history for an account in
// chronological order.
func (hr *HistoryReader) CashMovements(ctx context.Context, accountID uuid.UUID) ([]event.CashMovement, error) {
	rows, err := hr.db.QueryContext(ctx, `
		SELECT movement_id, kind, amount, timestamp
		FROM ledger.cash_movements
		WHERE account_id = $1
		ORDER BY timestamp
	`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("query cash movements: %w", err)
	}
	defer rows.Close()

	var out []event.CashMovement
	for rows.Next() {
		var (
			mv      event.CashMovement
			idStr   string
			kindStr string
		)
		if err := rows.Scan(&idStr, &kindStr, &mv.Amount, &mv.Timestamp); err != nil {
			return nil, fmt.Errorf("scan cash movement: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse movement_id: %w", err)
		}
		mv.MovementID = id
		mv.Account = accountID
		switch kindStr {
		case "DEPOSIT":
			mv.Kind = event.CashKindDeposit
		case "WITHDRAWAL":
			mv.Kind = event.CashKindWithdrawal
		default:
			return nil, fmt.Errorf("unknown cash kind: %s", kindStr)
		}
		out = append(out, mv)
	}

	return out, rows.Err()
}

// RepairAvgCost overwrites a stored position's avg_cost with a value
// re-derived from history. Used by the reconciliation job when the
// stored value drifts from the fold.
func (hr *HistoryReader) RepairAvgCost(ctx context.Context, accountID uuid.UUID, symbol string, avgCost decimal.Decimal) error {
	res, err := hr.db.ExecContext(ctx, `
		UPDATE ledger.positions
		SET avg_cost = $3, updated_at = NOW()
		WHERE account_id = $1 AND symbol = $2
	`, accountID.String(), symbol, avgCost)
	if err != nil {
		return fmt.Errorf("repair avg_cost %s/%s: %w", accountID, symbol, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("repair avg_cost %s/%s: no position row", accountID, symbol)
	}
	return nil
}

// AccountIDs lists all accounts with persisted transactions.
func (hr *HistoryReader) AccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := hr.db.QueryContext(ctx, `SELECT account_id FROM ledger.accounts ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
