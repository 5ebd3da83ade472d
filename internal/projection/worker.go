package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/core"
	"AcctLedger/internal/observability"
	"AcctLedger/internal/state"
	"AcctLedger/internal/valuation"
)

// ProjectionWorker maintains the valuation read models from processed
// events. The projection channel is non-blocking with drop: if this
// worker falls behind, the read models go stale until the next event
// for the same account, and can always be rebuilt from the ledger
// tables.
//
// The worker keeps an in-memory mirror of open positions per account
// because equity and drawdown need the whole book, not just the
// position the event touched.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	book      *state.PositionBook
	exits     *ExitHistoryProjection
	lastSeq   int64
	logger    zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		book:      state.NewPositionBook(),
		exits:     NewExitHistoryProjection(),
		logger:    observability.NewLogger("projection"),
	}
}

// Exits exposes the in-memory exit history (read-only use).
func (pw *ProjectionWorker) Exits() *ExitHistoryProjection {
	return pw.exits
}

// Prime seeds the in-memory position mirror on restart.
func (pw *ProjectionWorker) Prime(positions []*state.Position) {
	for _, pos := range positions {
		pw.book.Set(pos)
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				pw.logger.Warn().
					Int64("sequence", output.Envelope.Sequence).
					Err(err).
					Msg("projection update failed")
				// Continue: read models are eventually consistent and
				// can be rebuilt from the ledger tables
			}

			pw.exits.AddFromOutput(output)
			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	acct := output.Account
	if acct == nil {
		// Price updates carry no account state
		return nil
	}

	// Keep the position mirror current before valuing the book
	if output.Position != nil {
		pw.book.Set(output.Position)
	} else if output.PositionRemoved {
		pw.book.Remove(acct.AccountID, output.Symbol)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := pw.updateAccountValuation(ctx, tx, acct, output.Envelope.Sequence); err != nil {
		return fmt.Errorf("account valuation: %w", err)
	}

	if output.Position != nil {
		if err := pw.updatePositionValuation(ctx, tx, output.Position, output.Envelope.Sequence); err != nil {
			return fmt.Errorf("position valuation: %w", err)
		}
	} else if output.PositionRemoved {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM projections.position_valuations
			WHERE account_id = $1 AND symbol = $2
		`, acct.AccountID.String(), output.Symbol); err != nil {
			return fmt.Errorf("position valuation delete: %w", err)
		}
	}

	// Projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('valuation', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Envelope.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateAccountValuation(ctx context.Context, tx *sql.Tx, acct *state.Account, seq int64) error {
	positions := pw.book.AccountPositions(acct.AccountID)

	equity := valuation.Equity(acct.Cash, positions)
	notionalSum := decimal.Zero
	unrealizedSum := decimal.Zero
	for _, pos := range positions {
		notionalSum = notionalSum.Add(pos.Notional())
		unrealizedSum = unrealizedSum.Add(valuation.UnrealizedPnL(pos))
	}

	totalPnL := valuation.TotalPnL(equity, acct.InitialEquity)
	totalPnLPct := valuation.TotalPnLPct(equity, acct.InitialEquity)
	drawdown := valuation.Drawdown(equity, acct.MaxEquityToDate)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.account_valuations
			(account_id, equity, cash, notional_sum, unrealized_pnl, realized_pnl_cum,
			 total_pnl, total_pnl_pct, drawdown_pct, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			equity = EXCLUDED.equity,
			cash = EXCLUDED.cash,
			notional_sum = EXCLUDED.notional_sum,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl_cum = EXCLUDED.realized_pnl_cum,
			total_pnl = EXCLUDED.total_pnl,
			total_pnl_pct = EXCLUDED.total_pnl_pct,
			drawdown_pct = EXCLUDED.drawdown_pct,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
		WHERE projections.account_valuations.last_sequence < EXCLUDED.last_sequence
	`, acct.AccountID.String(), equity, acct.Cash, notionalSum, unrealizedSum,
		acct.RealizedPnLCum, totalPnL, totalPnLPct, drawdown, seq)
	return err
}

func (pw *ProjectionWorker) updatePositionValuation(ctx context.Context, tx *sql.Tx, pos *state.Position, seq int64) error {
	notional := pos.Notional()
	unrealized := valuation.UnrealizedPnL(pos)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.position_valuations
			(account_id, symbol, qty, avg_cost, last_price, fx, notional, unrealized_pnl, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			qty = EXCLUDED.qty,
			avg_cost = EXCLUDED.avg_cost,
			last_price = EXCLUDED.last_price,
			fx = EXCLUDED.fx,
			notional = EXCLUDED.notional,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
		WHERE projections.position_valuations.last_sequence < EXCLUDED.last_sequence
	`, pos.AccountID.String(), pos.Symbol, pos.Qty, pos.AvgCost, pos.LastPrice,
		pos.FX, notional, unrealized, seq)
	return err
}

// RebuildProjections rebuilds the valuation read models from the
// ledger state tables. Used when projections fell behind or after a
// schema change.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.account_valuations`,
		`TRUNCATE projections.position_valuations`,
		`DELETE FROM projections.watermark WHERE worker_id = 'valuation'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Positions first so the account rollup can aggregate them
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.position_valuations
			(account_id, symbol, qty, avg_cost, last_price, fx, notional, unrealized_pnl, last_sequence, updated_at)
		SELECT
			account_id, symbol, qty, avg_cost, last_price, fx,
			ROUND(qty * last_price * fx, 6),
			ROUND(qty * (last_price * fx - avg_cost), 6),
			version, NOW()
		FROM ledger.positions
	`)
	if err != nil {
		return fmt.Errorf("rebuild position valuations: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.account_valuations
			(account_id, equity, cash, notional_sum, unrealized_pnl, realized_pnl_cum,
			 total_pnl, total_pnl_pct, drawdown_pct, last_sequence, updated_at)
		SELECT
			a.account_id,
			ROUND(a.cash + COALESCE(p.notional_sum, 0), 6),
			a.cash,
			COALESCE(p.notional_sum, 0),
			COALESCE(p.unrealized_sum, 0),
			a.realized_pnl_cum,
			ROUND(a.cash + COALESCE(p.notional_sum, 0) - a.initial_equity, 6),
			CASE WHEN a.initial_equity > 0
				THEN ROUND((a.cash + COALESCE(p.notional_sum, 0) - a.initial_equity) / a.initial_equity * 100, 4)
				ELSE 0 END,
			CASE WHEN a.max_equity_to_date > 0
				THEN ROUND((a.max_equity_to_date - (a.cash + COALESCE(p.notional_sum, 0))) / a.max_equity_to_date * 100, 4)
				ELSE 0 END,
			a.version,
			NOW()
		FROM ledger.accounts a
		LEFT JOIN (
			SELECT account_id,
			       SUM(ROUND(qty * last_price * fx, 6)) AS notional_sum,
			       SUM(ROUND(qty * (last_price * fx - avg_cost), 6)) AS unrealized_sum
			FROM ledger.positions
			GROUP BY account_id
		) p ON p.account_id = a.account_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild account valuations: %w", err)
	}

	logger := observability.NewLogger("projection")
	logger.Info().Msg("projection rebuild complete")
	return nil
}
