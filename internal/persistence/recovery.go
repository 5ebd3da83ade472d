package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"AcctLedger/internal/state"
)

// StateLoader restores engine state on restart. Accounts and open
// positions come from the relational tables the persistence worker
// maintains; partition sequences and recent idempotency keys come from
// the event log. No separate snapshot blob is needed.
type StateLoader struct {
	db *sql.DB
}

func NewStateLoader(db *sql.DB) *StateLoader {
	return &StateLoader{db: db}
}

// LoadAccounts loads all persisted accounts.
func (sl *StateLoader) LoadAccounts(ctx context.Context) ([]*state.Account, error) {
	rows, err := sl.db.QueryContext(ctx, `
		SELECT account_id, base_currency, cash, initial_equity,
		       max_equity_to_date, realized_pnl_cum, version
		FROM ledger.accounts
	`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var out []*state.Account
	for rows.Next() {
		var (
			a     state.Account
			idStr string
		)
		if err := rows.Scan(
			&idStr, &a.BaseCurrency, &a.Cash, &a.InitialEquity,
			&a.MaxEquityToDate, &a.RealizedPnLCum, &a.Version,
		); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse account_id: %w", err)
		}
		a.AccountID = id
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LoadPositions loads all persisted open positions.
func (sl *StateLoader) LoadPositions(ctx context.Context) ([]*state.Position, error) {
	rows, err := sl.db.QueryContext(ctx, `
		SELECT account_id, symbol, qty, avg_cost, entry_price, entry_fx,
		       last_price, fx, version
		FROM ledger.positions
	`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []*state.Position
	for rows.Next() {
		var (
			p     state.Position
			idStr string
		)
		if err := rows.Scan(
			&idStr, &p.Symbol, &p.Qty, &p.AvgCost, &p.EntryPrice, &p.EntryFX,
			&p.LastPrice, &p.FX, &p.Version,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse account_id: %w", err)
		}
		p.AccountID = id
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MaxSequence returns the highest persisted global sequence, or 0 on
// an empty event log.
func (sl *StateLoader) MaxSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sl.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM ledger.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// PartitionSequences returns, per account partition, the next expected
// source sequence (max persisted + 1).
func (sl *StateLoader) PartitionSequences(ctx context.Context) (map[string]int64, error) {
	rows, err := sl.db.QueryContext(ctx, `
		SELECT account_id, MAX(source_sequence)
		FROM ledger.events
		WHERE account_id IS NOT NULL
		GROUP BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load partition sequences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			accountID string
			maxSeq    int64
		)
		if err := rows.Scan(&accountID, &maxSeq); err != nil {
			return nil, err
		}
		out[fmt.Sprintf("account:%s", accountID)] = maxSeq + 1
	}
	return out, rows.Err()
}

// RecentIdempotencyKeys returns the most recent composite dedup keys
// for warming the engine's LRU on restart.
func (sl *StateLoader) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := sl.db.QueryContext(ctx, `
		SELECT event_type, idempotency_key
		FROM ledger.events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load idempotency keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var eventType, key string
		if err := rows.Scan(&eventType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s:%s", eventType, key))
	}
	return keys, rows.Err()
}
