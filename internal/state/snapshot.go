package state

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValuationSnapshot is the immutable once-per-trading-day valuation
// input: one price map and one FX map. Every position valuation within
// a trading day must reference the same snapshot instance.
type ValuationSnapshot struct {
	TradingDate string // YYYY-MM-DD
	prices      map[string]decimal.Decimal
	fxRates     map[string]decimal.Decimal
}

// NewValuationSnapshot copies the provided maps so later mutation by
// the caller cannot leak into the snapshot.
func NewValuationSnapshot(tradingDate string, prices, fxRates map[string]decimal.Decimal) *ValuationSnapshot {
	p := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		p[k] = v
	}
	f := make(map[string]decimal.Decimal, len(fxRates))
	for k, v := range fxRates {
		f[k] = v
	}
	return &ValuationSnapshot{TradingDate: tradingDate, prices: p, fxRates: f}
}

// Price returns the closing price for a symbol.
func (s *ValuationSnapshot) Price(symbol string) (decimal.Decimal, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for symbol %s on %s", symbol, s.TradingDate)
	}
	return p, nil
}

// FX returns the rate from a currency to the account base currency.
// The base currency itself maps to 1.
func (s *ValuationSnapshot) FX(currency string) (decimal.Decimal, error) {
	f, ok := s.fxRates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no fx rate for currency %s on %s", currency, s.TradingDate)
	}
	return f, nil
}

// Prices returns a copy of the full price map.
func (s *ValuationSnapshot) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// FXRates returns a copy of the full FX map.
func (s *ValuationSnapshot) FXRates() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.fxRates))
	for k, v := range s.fxRates {
		out[k] = v
	}
	return out
}
