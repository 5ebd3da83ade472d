package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/apply"
	"AcctLedger/internal/event"
	"AcctLedger/internal/invariant"
	"AcctLedger/internal/money"
	"AcctLedger/internal/observability"
	"AcctLedger/internal/state"
	"AcctLedger/internal/valuation"
)

// Engine is the single-threaded event processor. All account and
// position mutation happens here; concurrent access is not supported.
// Events for one account must arrive strictly ordered; events for
// different accounts may interleave freely.
type Engine struct {
	sequence     int64
	baseCurrency string

	accounts map[uuid.UUID]*state.Account
	book     *state.PositionBook
	prices   map[string]*PriceState

	idempotency *IdempotencyChecker
	chronology  *ChronologyValidator
	metrics     *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// PriceState tracks the latest valuation input per symbol.
type PriceState struct {
	Price         decimal.Decimal
	FX            decimal.Decimal
	PriceSequence int64
	Timestamp     time.Time
}

// TransactionRecord is the persisted result of one applied
// transaction: the input fields plus the post-transaction snapshots
// the reconstruction folds read back.
type TransactionRecord struct {
	TxID             uuid.UUID
	AccountID        uuid.UUID
	Symbol           string
	Type             event.TxType
	Side             event.Side
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

// CashRecord is the persisted result of one applied cash movement.
type CashRecord struct {
	MovementID uuid.UUID
	AccountID  uuid.UUID
	Kind       event.CashKind
	Amount     decimal.Decimal
	CashAfter  decimal.Decimal
	Timestamp  time.Time
}

// CoreOutput is what the engine emits per applied event. Account and
// Position are independent clones safe to read off-thread; Position is
// nil when the event touched no position or removed it.
type CoreOutput struct {
	Envelope        *event.EventEnvelope
	Record          *TransactionRecord
	Cash            *CashRecord
	Account         *state.Account
	Position        *state.Position
	PositionRemoved bool
	Symbol          string
}

func NewEngine(
	startSequence int64,
	baseCurrency string,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		sequence:     startSequence,
		baseCurrency: baseCurrency,
		accounts:     make(map[uuid.UUID]*state.Account),
		book:         state.NewPositionBook(),
		prices:       make(map[string]*PriceState),
		// Capacity of 1M dedup entries
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker),
		chronology:     NewChronologyValidator(),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// ProcessEvent is the main processing pipeline.
func (e *Engine) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := e.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Ordering validation. Price updates tolerate gaps and
	// skip stale sequences silently; everything else is strict.
	partition := e.getPartition(evt)

	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if stale := e.chronology.ValidatePriceSequence(priceEvt.Symbol, priceEvt.PriceSequence); stale {
			return nil
		}
	} else {
		if err := e.chronology.ValidateSequence(partition, evt.SourceSequence(), isDuplicate); err != nil {
			e.reject(eventType, "ordering")
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// Duplicates are acked without reprocessing
	if isDuplicate {
		e.reject(eventType, "duplicate")
		return nil
	}

	// Event time must not run backwards within a partition. Price
	// updates are ordered by their own sequence above.
	if _, ok := evt.(*event.PriceUpdate); !ok {
		if err := e.chronology.ValidateTimestamp(partition, e.getEventTimestamp(evt)); err != nil {
			e.reject(eventType, "ordering")
			return fmt.Errorf("timestamp validation failed: %w", err)
		}
	}

	// Step 3: Dispatch
	var output CoreOutput
	var err error

	switch ev := evt.(type) {
	case *event.Transaction:
		output, err = e.handleTransaction(ev)
	case *event.CashMovement:
		output, err = e.handleCashMovement(ev)
	case *event.PriceUpdate:
		output, err = e.handlePriceUpdate(ev)
	default:
		err = fmt.Errorf("unknown event type: %T", evt)
	}
	if err != nil {
		e.reject(eventType, "apply")
		return err
	}

	// Step 4: Post-apply invariant battery. Accounting integrity
	// violations halt the process; continuing would propagate
	// corrupted state.
	if err := e.postCheckInvariants(evt); err != nil {
		if e.metrics != nil {
			var v *invariant.Violation
			if vv, ok := err.(*invariant.Violation); ok {
				v = vv
			}
			rule := "unknown"
			if v != nil {
				rule = v.Rule
			}
			e.metrics.InvariantViolations.WithLabelValues(rule).Inc()
		}
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 5: Envelope and emit. Persist channel uses a BLOCKING send
	// (backpressure, no event loss); projection channel uses a
	// NON-BLOCKING send with silent drop.
	output.Envelope = &event.EventEnvelope{
		Sequence:       e.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		AccountID:      evt.AccountID(),
		Timestamp:      e.getEventTimestamp(evt),
		SourceSequence: evt.SourceSequence(),
	}
	e.sequence++

	e.persistChan <- output

	select {
	case e.projectionChan <- output:
	default:
		// Dropped — projections catch up from the transaction log
	}

	// Step 6: Mark as processed (add to LRU)
	e.idempotency.MarkProcessed(eventType, idempotencyKey)

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}

	return nil
}

func (e *Engine) handleTransaction(tx *event.Transaction) (CoreOutput, error) {
	// Costs on non-execution types are a contract violation by the
	// upstream producer; reject rather than halt.
	if err := invariant.ValidateCommissionOnExecutionOnly(tx.Type, tx.Commission, tx.Fees, tx.Taxes); err != nil {
		return CoreOutput{}, fmt.Errorf("transaction %s rejected: %w", tx.TxID, err)
	}

	account := e.getOrCreateAccount(tx.Account)
	position := e.book.Get(tx.Account, tx.Symbol)

	res, err := apply.Apply(account, position, tx)
	if err != nil {
		return CoreOutput{}, fmt.Errorf("apply %s %s %s: %w", tx.Type, tx.TradeSide, tx.TxID, err)
	}

	// BUY executions must be funded
	if tx.IsExecution() && tx.TradeSide == event.SideBuy {
		if err := invariant.ValidateSufficientCash(account.Cash, res.NetValue); err != nil {
			return CoreOutput{}, fmt.Errorf("transaction %s rejected: %w", tx.TxID, err)
		}
	}

	// Commit on success only
	acct := res.AccountAfter
	if tx.IsExecution() && tx.TradeSide == event.SideSell {
		acct.RealizedPnLCum = acct.RealizedPnLCum.Add(res.RealizedPnLDelta)
	}
	e.accounts[tx.Account] = acct
	if res.PositionRemoved {
		e.book.Remove(tx.Account, tx.Symbol)
	} else if res.PositionAfter != nil {
		e.book.Set(res.PositionAfter)
	}
	e.updateMaxEquity(acct)

	record := &TransactionRecord{
		TxID:             tx.TxID,
		AccountID:        tx.Account,
		Symbol:           tx.Symbol,
		Type:             tx.Type,
		Side:             tx.TradeSide,
		Qty:              tx.Qty,
		Price:            tx.Price,
		Commission:       tx.Commission,
		Fees:             tx.Fees,
		Taxes:            tx.Taxes,
		FX:               tx.FX,
		GrossValue:       res.GrossValue,
		CostTotal:        res.CostTotal,
		NetValue:         res.NetValue,
		CashAfter:        res.CashAfter,
		QtyAfter:         res.QtyAfter,
		AvgCostAfter:     res.AvgCostAfter,
		NotionalAfter:    res.NotionalAfter,
		RealizedPnLDelta: res.RealizedPnLDelta,
		PositionRemoved:  res.PositionRemoved,
		StrategyID:       tx.StrategyID,
		SourceSequence:   tx.Sequence,
		Timestamp:        tx.Timestamp,
	}

	var posClone *state.Position
	if res.PositionAfter != nil {
		posClone = res.PositionAfter.Clone()
	}
	return CoreOutput{
		Record:          record,
		Account:         acct.Clone(),
		Position:        posClone,
		PositionRemoved: res.PositionRemoved,
		Symbol:          tx.Symbol,
	}, nil
}

func (e *Engine) handleCashMovement(mv *event.CashMovement) (CoreOutput, error) {
	account := e.getOrCreateAccount(mv.Account)

	acct, err := apply.ApplyCashMovement(account, mv)
	if err != nil {
		return CoreOutput{}, fmt.Errorf("cash movement %s: %w", mv.MovementID, err)
	}

	// External contributions shift the P&L baseline, they are not
	// profit or loss.
	switch mv.Kind {
	case event.CashKindDeposit:
		acct.InitialEquity = acct.InitialEquity.Add(mv.Amount)
	case event.CashKindWithdrawal:
		acct.InitialEquity = acct.InitialEquity.Sub(mv.Amount)
	}

	e.accounts[mv.Account] = acct
	e.updateMaxEquity(acct)

	return CoreOutput{
		Cash: &CashRecord{
			MovementID: mv.MovementID,
			AccountID:  mv.Account,
			Kind:       mv.Kind,
			Amount:     mv.Amount,
			CashAfter:  acct.Cash,
			Timestamp:  mv.Timestamp,
		},
		Account: acct.Clone(),
	}, nil
}

// handlePriceUpdate refreshes the per-symbol price cache. It does not
// touch positions; intraday revaluation happens only through
// MARK_TO_MARKET transactions.
func (e *Engine) handlePriceUpdate(p *event.PriceUpdate) (CoreOutput, error) {
	if p.Price.Sign() <= 0 || p.FX.Sign() <= 0 {
		return CoreOutput{}, fmt.Errorf("price update %s: non-positive price or fx", p.Symbol)
	}
	e.prices[p.Symbol] = &PriceState{
		Price:         p.Price,
		FX:            p.FX,
		PriceSequence: p.PriceSequence,
		Timestamp:     p.Timestamp,
	}
	return CoreOutput{Symbol: p.Symbol}, nil
}

// getPartition determines the partition key for ordering validation
func (e *Engine) getPartition(evt event.Event) string {
	if accountID := evt.AccountID(); accountID != nil {
		return fmt.Sprintf("account:%s", *accountID)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event.
// The engine never calls time.Now() for event-time.
func (e *Engine) getEventTimestamp(evt event.Event) time.Time {
	switch ev := evt.(type) {
	case *event.Transaction:
		return ev.Timestamp
	case *event.CashMovement:
		return ev.Timestamp
	case *event.PriceUpdate:
		return ev.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T", evt))
	}
}

func (e *Engine) getOrCreateAccount(accountID uuid.UUID) *state.Account {
	acct := e.accounts[accountID]
	if acct == nil {
		acct = &state.Account{
			AccountID:       accountID,
			BaseCurrency:    e.baseCurrency,
			Cash:            decimal.Zero,
			InitialEquity:   decimal.Zero,
			MaxEquityToDate: decimal.Zero,
			RealizedPnLCum:  decimal.Zero,
		}
		e.accounts[accountID] = acct
	}
	return acct
}

func (e *Engine) updateMaxEquity(acct *state.Account) {
	equity := valuation.Equity(acct.Cash, e.book.AccountPositions(acct.AccountID))
	if equity.Cmp(acct.MaxEquityToDate) > 0 {
		acct.MaxEquityToDate = equity
	}
}

// postCheckInvariants runs the battery after state commit. Only the
// checks that hold identically for every reachable state run here;
// the window-scoped checks (capital conservation per fill, risk at
// entry) run in reconciliation jobs where both endpoints of the
// window are known.
func (e *Engine) postCheckInvariants(evt event.Event) error {
	accountID := evt.AccountID()
	if accountID == nil {
		return nil
	}
	id, err := uuid.Parse(*accountID)
	if err != nil {
		return nil
	}
	acct := e.accounts[id]
	if acct == nil {
		return nil
	}

	positions := e.book.AccountPositions(id)
	equity := valuation.Equity(acct.Cash, positions)
	notionalSum := decimal.Zero
	unrealizedSum := decimal.Zero
	for _, pos := range positions {
		if err := invariant.ValidatePositionQuantity(pos.Qty); err != nil {
			return err
		}
		if err := invariant.ValidatePositionState(pos.Qty, pos.AvgCost, pos.LastPrice, pos.FX); err != nil {
			return err
		}
		notionalSum = notionalSum.Add(pos.Notional())
		unrealizedSum = unrealizedSum.Add(valuation.UnrealizedPnL(pos))
	}

	if err := invariant.ValidateCashNonNegative(acct.Cash); err != nil {
		return err
	}
	if err := invariant.ValidateBalance(equity, acct.Cash, notionalSum, money.DefaultTolerance); err != nil {
		return err
	}
	if err := invariant.ValidatePnLConsistency(equity, acct.InitialEquity, acct.RealizedPnLCum, unrealizedSum, money.DefaultTolerance); err != nil {
		return err
	}
	return nil
}

func (e *Engine) reject(eventType, reason string) {
	if e.metrics != nil {
		e.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// --- Startup / recovery ---

// RestoreAccount loads a persisted account into the engine (warm
// restart path; runs before any event is processed).
func (e *Engine) RestoreAccount(acct *state.Account) {
	e.accounts[acct.AccountID] = acct
}

// RestorePosition loads a persisted open position into the engine.
func (e *Engine) RestorePosition(pos *state.Position) {
	e.book.Set(pos)
}

// RestorePartitionSequence initializes a partition's expected source
// sequence from persisted state.
func (e *Engine) RestorePartitionSequence(partition string, nextSeq int64) {
	e.chronology.SetExpectedSequence(partition, nextSeq)
}

// WarmLRU loads recent idempotency keys into the dedup cache.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the next global sequence number to assign.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetAccount returns the current account state or nil (read-only
// access for tests and diagnostics; not safe while the engine runs).
func (e *Engine) GetAccount(accountID uuid.UUID) *state.Account {
	return e.accounts[accountID]
}

// GetPosition returns the current open position or nil.
func (e *Engine) GetPosition(accountID uuid.UUID, symbol string) *state.Position {
	return e.book.Get(accountID, symbol)
}

// LatestPrice returns the cached price state for a symbol, or nil.
func (e *Engine) LatestPrice(symbol string) *PriceState {
	return e.prices[symbol]
}
