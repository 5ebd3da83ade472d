package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RealizedPnLReport presents the three realized-P&L derivations side
// by side. They coincide on clean histories; divergence localizes data
// problems (missing entries, cost drift, unmatched sells).
type RealizedPnLReport struct {
	AccountID uuid.UUID `json:"account_id"`

	// From stored per-row deltas with the legacy BUY-cost correction
	CorrectedDeltas decimal.Decimal `json:"corrected_deltas"`

	// Sum of deltas on SELL executions only
	ExitsOnly decimal.Decimal `json:"exits_only"`

	// Independent FIFO lot matching over the raw fills
	FIFO           decimal.Decimal `json:"fifo"`
	UnmatchedSells int             `json:"unmatched_sells"`

	// True when all three agree within tolerance
	Converged bool `json:"converged"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// ReconciliationReport is the result of replaying an account's history
// against its stored state.
type ReconciliationReport struct {
	AccountID uuid.UUID `json:"account_id"`

	CashStored   decimal.Decimal `json:"cash_stored"`
	CashReplayed decimal.Decimal `json:"cash_replayed"`
	CashMatches  bool            `json:"cash_matches"`

	// Realized P&L replayed from exits, checked against the cash the
	// trades actually moved (net of contributions and open cost basis)
	RealizedReplayed decimal.Decimal `json:"realized_replayed"`
	RealizedMatches  bool            `json:"realized_matches"`

	// Stored equity components checked against the replayed ones
	EquityStored   decimal.Decimal `json:"equity_stored"`
	EquityReplayed decimal.Decimal `json:"equity_replayed"`
	EquityMatches  bool            `json:"equity_matches"`

	Positions []PositionDrift `json:"positions,omitempty"`

	Violations []string `json:"violations,omitempty"`
	Repaired   int      `json:"repaired"`
	Healthy    bool     `json:"healthy"`
}

// PositionDrift is one symbol whose stored avg_cost disagrees with the
// value re-derived from history.
type PositionDrift struct {
	Symbol        string          `json:"symbol"`
	AvgCostStored decimal.Decimal `json:"avg_cost_stored"`
	AvgCostUnwind decimal.Decimal `json:"avg_cost_rederived"`
	Diff          decimal.Decimal `json:"diff"`
	Repaired      bool            `json:"repaired"`
}
