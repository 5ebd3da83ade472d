package ingestion_test

import (
	"AcctLedger/internal/event"
	"AcctLedger/internal/ingestion"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseTransactionFill(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"symbol":       "AAPL",
		"type":         "FILL",
		"side":         "BUY",
		"qty":          "10",
		"price":        "190.50",
		"commission":   "1.25",
		"fees":         "0.30",
		"taxes":        "0",
		"fx":           "1",
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx, ok := evt.(*event.Transaction)
	if !ok {
		t.Fatalf("expected *event.Transaction, got %T", evt)
	}

	if tx.Symbol != "AAPL" {
		t.Errorf("symbol: got %s, want AAPL", tx.Symbol)
	}
	if tx.Type != event.TxTypeFill {
		t.Errorf("type: got %v, want FILL", tx.Type)
	}
	if tx.TradeSide != event.SideBuy {
		t.Errorf("side: got %v, want BUY", tx.TradeSide)
	}
	if !tx.Qty.Equal(dec(t, "10")) {
		t.Errorf("qty: got %s, want 10", tx.Qty)
	}
	if !tx.Price.Equal(dec(t, "190.50")) {
		t.Errorf("price: got %s, want 190.50", tx.Price)
	}
	if !tx.Commission.Equal(dec(t, "1.25")) {
		t.Errorf("commission: got %s, want 1.25", tx.Commission)
	}
	if tx.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", tx.Sequence)
	}
	if tx.EventType() != event.EventTypeTransaction {
		t.Errorf("event type: got %v, want Transaction", tx.EventType())
	}
}

func TestParseTransactionDecimalsAsNumbers(t *testing.T) {
	// Upstream producers send decimals as JSON numbers or strings;
	// both must parse identically.
	raw := ingestion.RawEvent{Data: []byte(`{
		"tx_id": "550e8400-e29b-41d4-a716-446655440000",
		"account_id": "660e8400-e29b-41d4-a716-446655440001",
		"symbol": "MSFT",
		"type": "FILL",
		"side": "SELL",
		"qty": 5,
		"price": 410.25,
		"commission": 0,
		"fees": 0,
		"taxes": 0,
		"fx": 1,
		"sequence": 7,
		"timestamp_us": 1700000000000000
	}`)}

	evt, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tx := evt.(*event.Transaction)
	if !tx.Price.Equal(dec(t, "410.25")) {
		t.Errorf("price: got %s, want 410.25", tx.Price)
	}
	if tx.TradeSide != event.SideSell {
		t.Errorf("side: got %v, want SELL", tx.TradeSide)
	}
}

func TestParseTransactionOrderWithoutSide(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"symbol":       "AAPL",
		"type":         "ORDER",
		"qty":          "10",
		"price":        "190.50",
		"sl_price":     "180.00",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx := evt.(*event.Transaction)
	if tx.TradeSide != event.SideUnknown {
		t.Errorf("side: got %v, want Unknown for ORDER", tx.TradeSide)
	}
	if tx.StopPrice == nil || !tx.StopPrice.Equal(dec(t, "180.00")) {
		t.Errorf("sl_price: got %v, want 180.00", tx.StopPrice)
	}
}

func TestParseTransactionFXDefaultsToOne(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"symbol":       "AAPL",
		"type":         "FILL",
		"side":         "BUY",
		"qty":          "1",
		"price":        "100",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tx := evt.(*event.Transaction)
	if !tx.FX.Equal(dec(t, "1")) {
		t.Errorf("fx: got %s, want 1", tx.FX)
	}
}

func TestParseCashMovement(t *testing.T) {
	payload := map[string]interface{}{
		"movement_id":  "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"kind":         "DEPOSIT",
		"amount":       "25000.00",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CashMovement")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mv, ok := evt.(*event.CashMovement)
	if !ok {
		t.Fatalf("expected *event.CashMovement, got %T", evt)
	}

	if mv.Kind != event.CashKindDeposit {
		t.Errorf("kind: got %v, want DEPOSIT", mv.Kind)
	}
	if !mv.Amount.Equal(dec(t, "25000.00")) {
		t.Errorf("amount: got %s, want 25000.00", mv.Amount)
	}
	if mv.EventType() != event.EventTypeCashMovement {
		t.Errorf("event type: got %v, want CashMovement", mv.EventType())
	}
}

func TestParseCashMovementUnknownKind_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"movement_id":  "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"kind":         "DIVIDEND",
		"amount":       "1",
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "CashMovement"); err == nil {
		t.Fatal("expected error for unknown cash kind")
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"symbol":         "7203.T",
		"price":          "2850",
		"fx":             "0.0067",
		"trading_date":   "2024-05-10",
		"price_sequence": int64(100),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	p, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if p.Symbol != "7203.T" {
		t.Errorf("symbol: got %s, want 7203.T", p.Symbol)
	}
	if !p.FX.Equal(dec(t, "0.0067")) {
		t.Errorf("fx: got %s, want 0.0067", p.FX)
	}
	if p.PriceSequence != 100 {
		t.Errorf("price_sequence: got %d, want 100", p.PriceSequence)
	}
	if p.TradingDate != "2024-05-10" {
		t.Errorf("trading_date: got %s, want 2024-05-10", p.TradingDate)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "not-a-uuid",
		"account_id":   "also-not-a-uuid",
		"symbol":       "AAPL",
		"type":         "FILL",
		"side":         "BUY",
		"qty":          "1",
		"price":        "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseUnknownTxType_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"account_id":   "660e8400-e29b-41d4-a716-446655440001",
		"symbol":       "AAPL",
		"type":         "SHORT_SELL",
		"qty":          "1",
		"price":        "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "Transaction")
	if err == nil {
		t.Fatal("expected error for unknown transaction type")
	}
}
