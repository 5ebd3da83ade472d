package core

import (
	"fmt"
	"time"

	"AcctLedger/internal/invariant"
)

// ChronologyValidator validates source sequences and event-time
// ordering per partition (one partition per account, "global" for
// account-independent events).
// Not thread-safe — only accessed from the single-threaded engine.
type ChronologyValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	lastTimestamp   map[string]time.Time
	metrics         *ChronologyMetrics
}

func NewChronologyValidator() *ChronologyValidator {
	return &ChronologyValidator{
		expectedNextSeq: make(map[string]int64),
		lastTimestamp:   make(map[string]time.Time),
		metrics:         NewChronologyMetrics(),
	}
}

// ValidateSequence checks source sequence ordering. Transactions and
// cash movements tolerate no gaps.
func (cv *ChronologyValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	expected := cv.expectedNextSeq[partition]

	if sourceSequence < expected {
		// Stale or duplicate
		if isDuplicate {
			// Already processed
			return nil
		}
		// Out-of-order delivery of a NEW event
		cv.metrics.RecordOutOfOrder(partition)
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		cv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	// sourceSequence > expected - gap detected
	cv.metrics.RecordGap(partition)
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidateTimestamp enforces monotonic event-time per partition and
// records the accepted timestamp.
func (cv *ChronologyValidator) ValidateTimestamp(partition string, ts time.Time) error {
	var last *time.Time
	if prev, ok := cv.lastTimestamp[partition]; ok {
		last = &prev
	}
	if err := invariant.CheckChronologicalOrder(last, ts); err != nil {
		return err
	}
	cv.lastTimestamp[partition] = ts
	return nil
}

// ValidatePriceSequence validates price updates; gaps are tolerated,
// stale updates are silently ignored.
func (cv *ChronologyValidator) ValidatePriceSequence(
	symbol string,
	priceSequence int64,
) (stale bool) {
	partition := fmt.Sprintf("price:%s", symbol)

	expected := cv.expectedNextSeq[partition]

	if priceSequence <= expected {
		// Stale - idempotent skip
		return true
	}

	if priceSequence > expected+1 {
		cv.metrics.RecordPriceGap(symbol)
		// Continue processing - price gaps are tolerable
	}

	cv.expectedNextSeq[partition] = priceSequence + 1
	return false
}

// GetExpectedSequence returns the next expected sequence for a partition
func (cv *ChronologyValidator) GetExpectedSequence(partition string) int64 {
	return cv.expectedNextSeq[partition]
}

// SetExpectedSequence initializes the expected sequence (used during recovery)
func (cv *ChronologyValidator) SetExpectedSequence(partition string, seq int64) {
	cv.expectedNextSeq[partition] = seq
}

// --- Metrics ---

// ChronologyMetrics tracks ordering validation stats.
// Not thread-safe — only accessed from the single-threaded engine.
type ChronologyMetrics struct {
	gaps       map[string]int64
	outOfOrder map[string]int64
	priceGaps  map[string]int64
}

func NewChronologyMetrics() *ChronologyMetrics {
	return &ChronologyMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
		priceGaps:  make(map[string]int64),
	}
}

func (m *ChronologyMetrics) RecordGap(partition string) {
	m.gaps[partition]++
}

func (m *ChronologyMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *ChronologyMetrics) RecordPriceGap(symbol string) {
	m.priceGaps[symbol]++
}

func (m *ChronologyMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *ChronologyMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}

func (m *ChronologyMetrics) GetPriceGaps(symbol string) int64 {
	return m.priceGaps[symbol]
}
