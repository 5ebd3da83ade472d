package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/aggregate"
	"AcctLedger/internal/event"
	"AcctLedger/internal/invariant"
	"AcctLedger/internal/money"
	"AcctLedger/internal/observability"
	"AcctLedger/internal/persistence"
	"AcctLedger/internal/rebuild"
	"AcctLedger/internal/state"
	"AcctLedger/internal/valuation"
)

// QueryService provides read-only access to the valuation read models
// and history re-derivations. Valuations come from projection tables;
// realized-P&L reports and reconciliation fold over the full
// transaction history.
type QueryService struct {
	db      *sql.DB
	history *persistence.HistoryReader
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{
		db:      db,
		history: persistence.NewHistoryReader(db),
		metrics: metrics,
	}
}

// GetAccountValuation returns the account-level valuation read model.
func (qs *QueryService) GetAccountValuation(
	ctx context.Context,
	accountID uuid.UUID,
) (*AccountValuationResponse, error) {
	var r AccountValuationResponse
	r.AccountID = accountID

	err := qs.db.QueryRowContext(ctx, `
		SELECT equity, cash, notional_sum, unrealized_pnl, realized_pnl_cum,
		       total_pnl, total_pnl_pct, drawdown_pct, last_sequence
		FROM projections.account_valuations
		WHERE account_id = $1
	`, accountID.String()).Scan(
		&r.Equity, &r.Cash, &r.NotionalSum, &r.UnrealizedPnL, &r.RealizedPnLCum,
		&r.TotalPnL, &r.TotalPnLPct, &r.DrawdownPct, &r.AsOfSequence,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s: not found", accountID)
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// GetPositions returns all open positions for an account.
func (qs *QueryService) GetPositions(
	ctx context.Context,
	accountID uuid.UUID,
) ([]PositionResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT symbol, qty, avg_cost, last_price, fx, notional, unrealized_pnl, last_sequence
		FROM projections.position_valuations
		WHERE account_id = $1 AND qty > 0
		ORDER BY symbol
	`, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.AccountID = accountID
		if err := rows.Scan(
			&p.Symbol, &p.Qty, &p.AvgCost, &p.LastPrice, &p.FX,
			&p.Notional, &p.UnrealizedPnL, &p.AsOfSequence,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetTransactions returns transaction history for an account with
// cursor-based pagination (newest first, cursor on source sequence).
func (qs *QueryService) GetTransactions(
	ctx context.Context,
	accountID uuid.UUID,
	symbol *string,
	limit int,
	beforeSequence *int64,
) ([]TransactionResponse, error) {
	query := `
		SELECT tx_id, symbol, type, side, qty, price, commission, fees, taxes, fx,
		       gross_value, cost_total, net_value, cash_after, qty_after, avg_cost_after,
		       realized_pnl_delta, strategy_id, source_sequence, timestamp
		FROM ledger.transactions
		WHERE account_id = $1
	`
	args := []interface{}{accountID.String()}
	argIdx := 2

	if symbol != nil {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, *symbol)
		argIdx++
	}

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND source_sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY timestamp DESC, source_sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionResponse
	for rows.Next() {
		var (
			t          TransactionResponse
			txID       string
			side       sql.NullString
			delta      sql.NullString
			strategyID sql.NullString
		)
		if err := rows.Scan(
			&txID, &t.Symbol, &t.Type, &side, &t.Qty, &t.Price,
			&t.Commission, &t.Fees, &t.Taxes, &t.FX,
			&t.GrossValue, &t.CostTotal, &t.NetValue, &t.CashAfter,
			&t.QtyAfter, &t.AvgCostAfter, &delta, &strategyID,
			&t.SourceSequence, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(txID)
		if err != nil {
			return nil, fmt.Errorf("parse tx_id: %w", err)
		}
		t.TxID = id
		t.AccountID = accountID
		if side.Valid {
			t.Side = side.String
		}
		if delta.Valid {
			d, err := decimal.NewFromString(delta.String)
			if err != nil {
				return nil, fmt.Errorf("parse realized_pnl_delta: %w", err)
			}
			t.RealizedPnLDelta = &d
		}
		if strategyID.Valid {
			s := strategyID.String
			t.StrategyID = &s
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// GetCashMovements returns deposit and withdrawal history for an
// account, newest first.
func (qs *QueryService) GetCashMovements(
	ctx context.Context,
	accountID uuid.UUID,
	limit int,
) ([]CashMovementResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT movement_id, kind, amount, cash_after, timestamp
		FROM ledger.cash_movements
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, accountID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CashMovementResponse
	for rows.Next() {
		var (
			mv    CashMovementResponse
			idStr string
		)
		if err := rows.Scan(&idStr, &mv.Kind, &mv.Amount, &mv.CashAfter, &mv.Timestamp); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse movement_id: %w", err)
		}
		mv.MovementID = id
		mv.AccountID = accountID
		out = append(out, mv)
	}

	return out, rows.Err()
}

// GetRealizedPnL computes the three realized-P&L derivations over the
// account's full transaction history.
func (qs *QueryService) GetRealizedPnL(
	ctx context.Context,
	accountID uuid.UUID,
) (*RealizedPnLReport, error) {
	start := time.Now()

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	txRows, err := qs.history.TransactionRows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rebuild.SortRows(txRows)

	fifo := rebuild.FIFORealizedPnL(txRows)

	report := &RealizedPnLReport{
		AccountID:       accountID,
		CorrectedDeltas: aggregate.RealizedPnLCorrectedDeltas(txRows),
		ExitsOnly:       aggregate.RealizedPnLFromExits(txRows),
		FIFO:            money.Quantize(fifo.RealizedPnL),
		UnmatchedSells:  fifo.UnmatchedSells,
		AsOfSequence:    asOfSeq,
	}
	report.Converged = money.WithinTolerance(report.CorrectedDeltas, report.ExitsOnly, money.DefaultTolerance) &&
		money.WithinTolerance(report.ExitsOnly, report.FIFO, money.DefaultTolerance)

	if qs.metrics != nil {
		qs.metrics.RebuildRuns.WithLabelValues("realized_pnl").Inc()
		qs.metrics.RebuildDuration.WithLabelValues("realized_pnl").Observe(time.Since(start).Seconds())
		qs.metrics.RebuildUnmatchedSells.Add(float64(fifo.UnmatchedSells))
	}

	return report, nil
}

// GetRebuiltPositions re-derives open positions from history instead
// of reading the live book; live prices from the valuation read model
// replace the last transaction price where available.
func (qs *QueryService) GetRebuiltPositions(
	ctx context.Context,
	accountID uuid.UUID,
) ([]RebuiltPositionResponse, error) {
	start := time.Now()

	txRows, err := qs.history.TransactionRows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rebuild.SortRows(txRows)

	snap, err := qs.valuationSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	open := rebuild.Positions(txRows, snap.Prices(), snap.FXRates())

	out := make([]RebuiltPositionResponse, 0, len(open))
	for _, p := range open {
		out = append(out, RebuiltPositionResponse{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgCost:       p.AvgCost,
			LastPrice:     p.LastPrice,
			FX:            p.FX,
			Notional:      p.Notional,
			UnrealizedPnL: p.UnrealizedPnL,
		})
	}

	if qs.metrics != nil {
		qs.metrics.RebuildRuns.WithLabelValues("positions").Inc()
		qs.metrics.RebuildDuration.WithLabelValues("positions").Observe(time.Since(start).Seconds())
	}

	return out, nil
}

// Reconcile replays an account's history against its stored state:
// cash via independent replay, avg_cost via the weighted-average fold.
// With repair set, drifted avg_cost values are overwritten from the
// fold.
func (qs *QueryService) Reconcile(
	ctx context.Context,
	accountID uuid.UUID,
	repair bool,
) (*ReconciliationReport, error) {
	start := time.Now()

	txRows, err := qs.history.TransactionRows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rebuild.SortRows(txRows)

	movements, err := qs.history.CashMovements(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{AccountID: accountID}

	// Accounts are created empty; all cash enters through deposits.
	report.CashReplayed = valuation.CashFromHistory(decimal.Zero, txRows, movements)
	if err := qs.db.QueryRowContext(ctx, `
		SELECT cash FROM ledger.accounts WHERE account_id = $1
	`, accountID.String()).Scan(&report.CashStored); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %s: not found", accountID)
		}
		return nil, err
	}
	report.CashMatches = money.WithinTolerance(report.CashStored, report.CashReplayed, money.DefaultTolerance)

	// Realized P&L from exits must equal the cash the trades moved:
	// cash change net of contributions, plus the basis still parked in
	// open positions.
	snap, err := qs.valuationSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	open := rebuild.Positions(txRows, snap.Prices(), snap.FXRates())
	openBasis := decimal.Zero
	rebuiltNotional := decimal.Zero
	for _, p := range open {
		openBasis = openBasis.Add(p.Qty.Mul(p.AvgCost))
		rebuiltNotional = rebuiltNotional.Add(p.Notional)
	}

	netContributions := decimal.Zero
	for _, mv := range movements {
		switch mv.Kind {
		case event.CashKindDeposit:
			netContributions = netContributions.Add(mv.Amount)
		case event.CashKindWithdrawal:
			netContributions = netContributions.Sub(mv.Amount)
		}
	}

	report.RealizedReplayed = aggregate.RealizedPnLFromExits(txRows)
	tradeCashChange := report.CashReplayed.Sub(netContributions).Add(openBasis)
	if err := invariant.ValidateRealizedPnLEqualsCashChange(
		report.RealizedReplayed, tradeCashChange, money.DefaultTolerance,
	); err != nil {
		report.Violations = append(report.Violations, err.Error())
	} else {
		report.RealizedMatches = true
	}

	var storedNotional decimal.Decimal
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty * last_price * fx), 0)
		FROM ledger.positions WHERE account_id = $1
	`, accountID.String()).Scan(&storedNotional); err != nil {
		return nil, err
	}
	report.EquityStored = money.Quantize(report.CashStored.Add(storedNotional))
	report.EquityReplayed = money.Quantize(report.CashReplayed.Add(rebuiltNotional))
	if err := invariant.ValidateEquityReconciliation(
		report.EquityStored, report.CashReplayed, rebuiltNotional, money.DefaultTolerance,
	); err != nil {
		report.Violations = append(report.Violations, err.Error())
	} else {
		report.EquityMatches = true
	}

	// Group rows per symbol for the avg-cost fold
	bySymbol := make(map[string][]rebuild.Row)
	for _, r := range txRows {
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r)
	}

	stored, err := qs.storedAvgCosts(ctx, accountID)
	if err != nil {
		return nil, err
	}

	for symbol, storedAvg := range stored {
		derived, ok := rebuild.AvgCost(bySymbol[symbol])
		if !ok {
			// Stored row says open, fold says flat
			derived = decimal.Zero
		}
		if money.WithinTolerance(storedAvg, derived, money.DefaultTolerance) {
			continue
		}

		drift := PositionDrift{
			Symbol:        symbol,
			AvgCostStored: storedAvg,
			AvgCostUnwind: derived,
			Diff:          storedAvg.Sub(derived),
		}

		if repair {
			if err := qs.history.RepairAvgCost(ctx, accountID, symbol, derived); err != nil {
				return nil, err
			}
			drift.Repaired = true
			report.Repaired++
			if qs.metrics != nil {
				qs.metrics.AvgCostRepairs.Inc()
			}
		}

		report.Positions = append(report.Positions, drift)
	}

	report.Healthy = report.CashMatches && report.RealizedMatches &&
		report.EquityMatches && len(report.Positions) == 0

	if qs.metrics != nil {
		qs.metrics.RebuildRuns.WithLabelValues("reconcile").Inc()
		qs.metrics.RebuildDuration.WithLabelValues("reconcile").Observe(time.Since(start).Seconds())
	}

	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'valuation'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// valuationSnapshot builds one immutable snapshot of the latest price
// and fx per symbol from the position valuations (the engine's price
// cache is not reachable from the query path). Every valuation within
// one query pass reads from the same snapshot instance.
func (qs *QueryService) valuationSnapshot(ctx context.Context, accountID uuid.UUID) (*state.ValuationSnapshot, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT symbol, last_price, fx, to_char(updated_at, 'YYYY-MM-DD')
		FROM projections.position_valuations
		WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	fxRates := make(map[string]decimal.Decimal)
	tradingDate := ""
	for rows.Next() {
		var (
			symbol string
			price  decimal.Decimal
			fx     decimal.Decimal
			date   string
		)
		if err := rows.Scan(&symbol, &price, &fx, &date); err != nil {
			return nil, err
		}
		prices[symbol] = price
		fxRates[symbol] = fx
		if date > tradingDate {
			tradingDate = date
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return state.NewValuationSnapshot(tradingDate, prices, fxRates), nil
}

func (qs *QueryService) storedAvgCosts(ctx context.Context, accountID uuid.UUID) (map[string]decimal.Decimal, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT symbol, avg_cost FROM ledger.positions WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			symbol  string
			avgCost decimal.Decimal
		)
		if err := rows.Scan(&symbol, &avgCost); err != nil {
			return nil, err
		}
		out[symbol] = avgCost
	}
	return out, rows.Err()
}
