package apply

import (
	"fmt"

	"github.com/shopspring/decimal"

	"AcctLedger/internal/event"
	"AcctLedger/internal/money"
	"AcctLedger/internal/state"
)

// Result is the immutable output of one Apply call. AccountAfter and
// PositionAfter are fresh copies; the caller commits them on success.
// PositionAfter is nil when no position exists after the transaction.
type Result struct {
	GrossValue       decimal.Decimal
	CostTotal        decimal.Decimal
	NetValue         decimal.Decimal
	CashAfter        decimal.Decimal
	QtyAfter         decimal.Decimal
	AvgCostAfter     decimal.Decimal
	NotionalAfter    decimal.Decimal
	RealizedPnLDelta decimal.Decimal // Informational; authoritative P&L is re-derived from history
	LastPriceAfter   decimal.Decimal
	FXAfter          decimal.Decimal
	PositionRemoved  bool

	AccountAfter  *state.Account
	PositionAfter *state.Position
}

// Apply runs one transaction against account and position state.
// Pure: inputs are never mutated, outputs are independent copies, and
// nothing commits on failure. position may be nil (no open position).
// Events for one (account, symbol) must arrive strictly ordered; the
// applier assumes order, the invariant battery checks it after the
// fact.
func Apply(account *state.Account, position *state.Position, tx *event.Transaction) (*Result, error) {
	if err := validate(position, tx); err != nil {
		return nil, err
	}

	gross := money.GrossValue(tx.Qty, tx.Price, tx.FX)
	cost := money.CostTotal(tx.Commission, tx.Fees, tx.Taxes)

	var net decimal.Decimal
	switch tx.TradeSide {
	case event.SideBuy:
		net = gross.Add(cost).Neg()
	case event.SideSell:
		net = gross.Sub(cost)
	}

	res := &Result{
		GrossValue:     gross,
		CostTotal:      cost,
		NetValue:       net,
		CashAfter:      account.Cash,
		LastPriceAfter: tx.Price,
		FXAfter:        tx.FX,
		AccountAfter:   account.Clone(),
	}

	switch tx.Type {
	case event.TxTypeOrder, event.TxTypeOrderSL, event.TxTypeOrderTP:
		applyOrder(position, tx, res)
	case event.TxTypeMarkToMarket:
		if position == nil {
			return nil, fmt.Errorf("%w: MARK_TO_MARKET for %s", ErrMissingPosition, tx.Symbol)
		}
		applyMarkToMarket(position, tx, res)
	case event.TxTypeFill, event.TxTypeStopLoss, event.TxTypeTakeProfit:
		var err error
		switch tx.TradeSide {
		case event.SideBuy:
			err = applyBuy(account, position, tx, res)
		case event.SideSell:
			err = applySell(account, position, tx, res)
		}
		if err != nil {
			return nil, err
		}
	case event.TxTypeAdjustment:
		return nil, fmt.Errorf("%w: ADJUSTMENT", ErrNotImplemented)
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidInput, tx.Type)
	}

	res.AccountAfter.Cash = res.CashAfter
	res.AccountAfter.Version++
	return res, nil
}

func validate(position *state.Position, tx *event.Transaction) error {
	if tx.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidInput)
	}
	if tx.Price.Sign() <= 0 {
		return fmt.Errorf("%w: price %s", ErrInvalidInput, tx.Price)
	}
	if tx.FX.Sign() <= 0 {
		return fmt.Errorf("%w: fx %s", ErrInvalidInput, tx.FX)
	}
	if tx.Commission.Sign() < 0 || tx.Fees.Sign() < 0 || tx.Taxes.Sign() < 0 {
		return fmt.Errorf("%w: negative transaction costs", ErrInvalidInput)
	}
	if tx.IsExecution() {
		if tx.Qty.Sign() <= 0 {
			return fmt.Errorf("%w: qty %s", ErrInvalidInput, tx.Qty)
		}
		if tx.TradeSide != event.SideBuy && tx.TradeSide != event.SideSell {
			return fmt.Errorf("%w: execution without side", ErrInvalidInput)
		}
	}
	if position != nil && position.Qty.Sign() < 0 {
		return fmt.Errorf("%w: negative held qty %s", ErrInvalidInput, position.Qty)
	}
	return nil
}

// applyOrder handles ORDER / ORDER_SL / ORDER_TP: valuation inputs
// move, cash and quantity do not.
func applyOrder(position *state.Position, tx *event.Transaction, res *Result) {
	if position != nil {
		pos := position.Clone()
		pos.LastPrice = tx.Price
		pos.FX = tx.FX
		pos.Version++
		res.PositionAfter = pos
		res.QtyAfter = pos.Qty
		res.AvgCostAfter = pos.AvgCost
		res.NotionalAfter = money.Quantize(pos.Notional())
	}
}

func applyMarkToMarket(position *state.Position, tx *event.Transaction, res *Result) {
	pos := position.Clone()
	pos.LastPrice = tx.Price
	pos.FX = tx.FX
	pos.Version++
	res.PositionAfter = pos
	res.QtyAfter = pos.Qty
	res.AvgCostAfter = pos.AvgCost
	res.NotionalAfter = money.Quantize(pos.Qty.Mul(tx.Price).Mul(tx.FX))
}

// applyBuy opens or increases a position. Transaction costs fold into
// the cost basis, not into realized P&L.
func applyBuy(account *state.Account, position *state.Position, tx *event.Transaction, res *Result) error {
	res.CashAfter = account.Cash.Add(res.NetValue)

	entryCost := res.GrossValue.Add(res.CostTotal)

	if position == nil {
		avg := entryCost.Div(tx.Qty)
		if avg.Sign() <= 0 {
			return fmt.Errorf("%w: entry avg_cost %s for %s", ErrInvalidCostBasis, avg, tx.Symbol)
		}
		res.PositionAfter = &state.Position{
			AccountID:  tx.Account,
			Symbol:     tx.Symbol,
			Qty:        tx.Qty,
			AvgCost:    avg,
			EntryPrice: tx.Price,
			EntryFX:    tx.FX,
			LastPrice:  tx.Price,
			FX:         tx.FX,
		}
	} else {
		qtyAfter := position.Qty.Add(tx.Qty)
		costBefore := position.Qty.Mul(position.AvgCost)
		avg := costBefore.Add(entryCost).Div(qtyAfter)
		if avg.Sign() <= 0 {
			return fmt.Errorf("%w: weighted avg_cost %s for %s", ErrInvalidCostBasis, avg, tx.Symbol)
		}
		pos := position.Clone()
		// Entry price/FX track the cost-free moving average, so the
		// canonical unrealized form stays cost-exclusive.
		priceQty := position.Qty.Mul(position.EntryPrice).Add(tx.Qty.Mul(tx.Price))
		baseCost := position.Qty.Mul(position.EntryPrice).Mul(position.EntryFX).Add(tx.Qty.Mul(tx.Price).Mul(tx.FX))
		pos.EntryPrice = priceQty.Div(qtyAfter)
		if pos.EntryPrice.Sign() > 0 {
			pos.EntryFX = baseCost.Div(qtyAfter).Div(pos.EntryPrice)
		}
		pos.Qty = qtyAfter
		pos.AvgCost = avg
		pos.LastPrice = tx.Price
		pos.FX = tx.FX
		pos.Version++
		res.PositionAfter = pos
	}

	res.QtyAfter = res.PositionAfter.Qty
	res.AvgCostAfter = res.PositionAfter.AvgCost
	res.NotionalAfter = money.Quantize(res.PositionAfter.Notional())
	res.RealizedPnLDelta = decimal.Zero
	return nil
}

// applySell decreases or closes a position. Average cost is carried
// unchanged across a partial close and zeroed on a full close.
func applySell(account *state.Account, position *state.Position, tx *event.Transaction, res *Result) error {
	if position == nil {
		return fmt.Errorf("%w: SELL %s for %s", ErrMissingPosition, tx.Qty, tx.Symbol)
	}
	if position.Qty.Cmp(tx.Qty) < 0 {
		return fmt.Errorf("%w: held %s, sell %s for %s",
			ErrInsufficientPosition, position.Qty, tx.Qty, tx.Symbol)
	}

	res.CashAfter = account.Cash.Add(res.NetValue)

	pnlGross := tx.Price.Mul(tx.FX).Sub(position.AvgCost).Mul(tx.Qty)
	res.RealizedPnLDelta = money.Quantize(pnlGross.Sub(res.CostTotal))

	qtyAfter := position.Qty.Sub(tx.Qty)
	if qtyAfter.IsZero() {
		res.PositionRemoved = true
		res.QtyAfter = decimal.Zero
		res.AvgCostAfter = decimal.Zero
		res.NotionalAfter = decimal.Zero
	} else {
		pos := position.Clone()
		pos.Qty = qtyAfter
		pos.LastPrice = tx.Price
		pos.FX = tx.FX
		pos.Version++
		res.PositionAfter = pos
		res.QtyAfter = qtyAfter
		res.AvgCostAfter = pos.AvgCost
		res.NotionalAfter = money.Quantize(pos.Notional())
	}
	return nil
}

// ApplyCashMovement adjusts account cash by a deposit or withdrawal.
// Withdrawals below zero cash are rejected.
func ApplyCashMovement(account *state.Account, mv *event.CashMovement) (*state.Account, error) {
	if mv.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s", ErrInvalidInput, mv.Amount)
	}
	acct := account.Clone()
	switch mv.Kind {
	case event.CashKindDeposit:
		acct.Cash = acct.Cash.Add(mv.Amount)
	case event.CashKindWithdrawal:
		if account.Cash.Cmp(mv.Amount) < 0 {
			return nil, fmt.Errorf("%w: withdrawal %s exceeds cash %s",
				ErrInvalidInput, mv.Amount, account.Cash)
		}
		acct.Cash = acct.Cash.Sub(mv.Amount)
	default:
		return nil, fmt.Errorf("%w: unknown cash kind %d", ErrInvalidInput, mv.Kind)
	}
	acct.Version++
	return acct, nil
}
