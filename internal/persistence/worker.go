package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"AcctLedger/internal/core"
	"AcctLedger/internal/observability"
)

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. This goroutine runs independently from the single-threaded
// engine. The persist channel uses BLOCKING sends from the engine, so
// if this worker falls behind, the engine stalls and no event is lost.
type PersistenceWorker struct {
	writer       *LedgerWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

// batch accumulates rows between flushes. Account and position state
// is keyed so only the latest version per key is written.
type batch struct {
	events   []EventRow
	txs      []TransactionRow
	cash     []CashRow
	accounts map[string]AccountRow
	pos      map[string]PositionRow
	posDel   map[string][2]string // key -> (account_id, symbol)
	lastSeq  int64
}

func newBatch(capacity int) *batch {
	return &batch{
		events:   make([]EventRow, 0, capacity),
		txs:      make([]TransactionRow, 0, capacity),
		cash:     make([]CashRow, 0, capacity),
		accounts: make(map[string]AccountRow),
		pos:      make(map[string]PositionRow),
		posDel:   make(map[string][2]string),
	}
}

func (b *batch) empty() bool {
	return len(b.events) == 0
}

func (b *batch) reset() {
	b.events = b.events[:0]
	b.txs = b.txs[:0]
	b.cash = b.cash[:0]
	b.accounts = make(map[string]AccountRow)
	b.pos = make(map[string]PositionRow)
	b.posDel = make(map[string][2]string)
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewLedgerWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout
// expires. Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	b := newBatch(pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if !b.empty() {
				if err := pw.flush(context.Background(), b); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if !b.empty() {
					if err := pw.flush(context.Background(), b); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			pw.accumulate(b, output)

			if len(b.events) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				b.reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if !b.empty() {
				if err := pw.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				b.reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// accumulate converts one engine output into batch rows.
func (pw *PersistenceWorker) accumulate(b *batch, output core.CoreOutput) {
	env := output.Envelope
	if env == nil {
		return
	}

	var payload interface{}
	switch {
	case output.Record != nil:
		payload = output.Record
	case output.Cash != nil:
		payload = output.Cash
	default:
		payload = struct {
			Symbol string `json:"symbol"`
		}{Symbol: output.Symbol}
	}

	b.events = append(b.events, EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		AccountID:      env.AccountID,
		Payload:        MarshalPayload(payload),
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	})
	b.lastSeq = env.Sequence

	if rec := output.Record; rec != nil {
		b.txs = append(b.txs, TransactionRow{
			TxID:             rec.TxID.String(),
			AccountID:        rec.AccountID.String(),
			Symbol:           rec.Symbol,
			Type:             rec.Type.String(),
			Side:             rec.Side.String(),
			Qty:              rec.Qty,
			Price:            rec.Price,
			Commission:       rec.Commission,
			Fees:             rec.Fees,
			Taxes:            rec.Taxes,
			FX:               rec.FX,
			GrossValue:       rec.GrossValue,
			CostTotal:        rec.CostTotal,
			NetValue:         rec.NetValue,
			CashAfter:        rec.CashAfter,
			QtyAfter:         rec.QtyAfter,
			AvgCostAfter:     rec.AvgCostAfter,
			NotionalAfter:    rec.NotionalAfter,
			RealizedPnLDelta: rec.RealizedPnLDelta,
			PositionRemoved:  rec.PositionRemoved,
			StrategyID:       rec.StrategyID,
			SourceSequence:   rec.SourceSequence,
			Timestamp:        rec.Timestamp,
		})
	}

	if mv := output.Cash; mv != nil {
		b.cash = append(b.cash, CashRow{
			MovementID: mv.MovementID.String(),
			AccountID:  mv.AccountID.String(),
			Kind:       mv.Kind.String(),
			Amount:     mv.Amount,
			CashAfter:  mv.CashAfter,
			Timestamp:  mv.Timestamp,
		})
	}

	if acct := output.Account; acct != nil {
		id := acct.AccountID.String()
		b.accounts[id] = AccountRow{
			AccountID:       id,
			BaseCurrency:    acct.BaseCurrency,
			Cash:            acct.Cash,
			InitialEquity:   acct.InitialEquity,
			MaxEquityToDate: acct.MaxEquityToDate,
			RealizedPnLCum:  acct.RealizedPnLCum,
			Version:         acct.Version,
		}
	}

	if pos := output.Position; pos != nil {
		key := pos.AccountID.String() + ":" + pos.Symbol
		delete(b.posDel, key)
		b.pos[key] = PositionRow{
			AccountID:  pos.AccountID.String(),
			Symbol:     pos.Symbol,
			Qty:        pos.Qty,
			AvgCost:    pos.AvgCost,
			EntryPrice: pos.EntryPrice,
			EntryFX:    pos.EntryFX,
			LastPrice:  pos.LastPrice,
			FX:         pos.FX,
			Version:    pos.Version,
		}
	} else if output.PositionRemoved && output.Record != nil {
		acctID := output.Record.AccountID.String()
		key := acctID + ":" + output.Symbol
		delete(b.pos, key)
		b.posDel[key] = [2]string{acctID, output.Symbol}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The
// worker never drops a batch; it retries until the write succeeds or
// the context is cancelled.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(b.events))
			select {
			case <-ctx.Done():
				// Graceful shutdown: one final attempt with a background
				// context so the batch is not lost.
				if finalErr := pw.flush(context.Background(), b); finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// flush writes the whole batch in one transaction.
func (pw *PersistenceWorker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, b.events); err != nil {
		pw.recordError("write_events")
		return err
	}
	if err := pw.writer.WriteTransactionBatch(ctx, tx, b.txs); err != nil {
		pw.recordError("write_transactions")
		return err
	}
	if err := pw.writer.WriteCashBatch(ctx, tx, b.cash); err != nil {
		pw.recordError("write_cash")
		return err
	}
	for _, a := range b.accounts {
		if err := pw.writer.UpsertAccount(ctx, tx, a); err != nil {
			pw.recordError("upsert_account")
			return err
		}
	}
	for _, p := range b.pos {
		if err := pw.writer.UpsertPosition(ctx, tx, p); err != nil {
			pw.recordError("upsert_position")
			return err
		}
	}
	for _, d := range b.posDel {
		if err := pw.writer.DeletePosition(ctx, tx, d[0], d[1]); err != nil {
			pw.recordError("delete_position")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		pw.recordError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(b.events)))
		pw.metrics.PersistRowsWritten.Add(float64(len(b.events) + len(b.txs) + len(b.cash)))
		pw.metrics.PersistLastSequence.Set(float64(b.lastSeq))
	}

	return nil
}

func (pw *PersistenceWorker) recordError(stage string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *LedgerWriter {
	return pw.writer
}

// MarshalPayload is a convenience wrapper for JSON-encoding event
// payloads. Payloads are stored as JSONB for debuggability.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
