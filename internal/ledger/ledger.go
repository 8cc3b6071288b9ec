// Package ledger owns position records and their state machine
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/event"
	"github.com/vmaslov/brokerage/internal/ident"
	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
	"github.com/vmaslov/brokerage/internal/request"
)

// Ledger performs every position state transition. All mutations go
// through compare-and-swap updates on the status field with a bounded
// retry loop
type Ledger struct {
	positions  repository.Positions
	accounts   repository.Accounts
	quotes     repository.Quotes
	catalog    *quote.Catalog
	rates      *quote.Rates
	margin     request.MarginChecker
	commission request.CommissionRecorder
	events     event.Publisher
	retries    int
}

// NewLedger is constructor
func NewLedger(positions repository.Positions, accounts repository.Accounts,
	quotes repository.Quotes, catalog *quote.Catalog, rates *quote.Rates,
	margin request.MarginChecker, commission request.CommissionRecorder,
	events event.Publisher, retries int) *Ledger {
	if retries < 1 {
		retries = 1
	}
	return &Ledger{
		positions:  positions,
		accounts:   accounts,
		quotes:     quotes,
		catalog:    catalog,
		rates:      rates,
		margin:     margin,
		commission: commission,
		events:     events,
		retries:    retries,
	}
}

// OpenMarket opens a position at the current quote. The position must
// leave the account with non-negative free margin, including its own
// margin requirement
func (l *Ledger) OpenMarket(ctx context.Context, r request.OpenMarket) (*model.Position, error) {
	symbol, err := l.catalog.Get(r.Symbol)
	if err != nil {
		return nil, err
	}
	if !model.ValidVolume(r.Volume, symbol.LotStep) {
		return nil, fmt.Errorf("%s lots of %s: %w", r.Volume, r.Symbol, model.ErrInvalidVolume)
	}
	account, err := l.accounts.GetAccount(ctx, r.AccountID)
	if err != nil {
		return nil, err
	}
	q, err := l.quotes.Get(r.Symbol)
	if err != nil {
		return nil, err
	}
	price := q.Ask
	if r.Side == model.Sell {
		price = q.Bid
	}
	if r.Price.IsPositive() && !priceAcceptable(price, r.Price, r.Side) {
		return nil, fmt.Errorf("price of %s changed to %s, try again", r.Symbol, price)
	}

	p := &model.Position{
		ID:         ident.New(),
		AccountID:  r.AccountID,
		Symbol:     r.Symbol,
		Side:       r.Side,
		OrderType:  model.Market,
		Status:     model.Open,
		Volume:     r.Volume,
		OpenVolume: r.Volume,
		OpenPrice:  price,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		OpenTime:   time.Now(),
	}

	free, err := l.margin.FreeMargin(ctx, r.AccountID)
	if err != nil {
		return nil, err
	}
	required := model.RequiredMargin(p, symbol, account.Leverage)
	if free.Sub(required).IsNegative() {
		return nil, fmt.Errorf("free margin %s, required %s: %w",
			free, required, model.ErrInsufficientMargin)
	}

	record, err := l.commission.RecordTrade(ctx, request.Trade{
		TradeID:        p.ID,
		AccountID:      account.ID,
		IBID:           account.IBID,
		Symbol:         p.Symbol,
		Volume:         p.Volume,
		IBSharePercent: account.IBSharePercent,
	})
	if err != nil {
		return nil, err
	}
	p.Commission = record.TotalCommission

	if err = l.positions.CreatePosition(ctx, p); err != nil {
		return nil, err
	}
	l.publishChange(ctx, event.PositionOpened, p)
	return p, nil
}

// PlaceLimit creates a pending limit order. Margin is checked when the
// order triggers, not at placement
func (l *Ledger) PlaceLimit(ctx context.Context, r request.PlaceLimit) (*model.Position, error) {
	symbol, err := l.catalog.Get(r.Symbol)
	if err != nil {
		return nil, err
	}
	if !model.ValidVolume(r.Volume, symbol.LotStep) {
		return nil, fmt.Errorf("%s lots of %s: %w", r.Volume, r.Symbol, model.ErrInvalidVolume)
	}
	if !r.TriggerPrice.IsPositive() {
		return nil, fmt.Errorf("trigger price %s: %w", r.TriggerPrice, model.ErrInvalidVolume)
	}
	if _, err = l.accounts.GetAccount(ctx, r.AccountID); err != nil {
		return nil, err
	}

	p := &model.Position{
		ID:           ident.New(),
		AccountID:    r.AccountID,
		Symbol:       r.Symbol,
		Side:         r.Side,
		OrderType:    model.Limit,
		Status:       model.Pending,
		Volume:       r.Volume,
		OpenVolume:   r.Volume,
		TriggerPrice: r.TriggerPrice,
		StopLoss:     r.StopLoss,
		TakeProfit:   r.TakeProfit,
	}
	if err = l.positions.CreatePosition(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Trigger promotes a pending limit order to an open position at the
// crossing price. Exactly one concurrent evaluation pass wins the
// transition; the others get model.ErrConcurrentModification.
// An order whose account lacks free margin is cancelled, not left in
// the book
func (l *Ledger) Trigger(ctx context.Context, positionID string, price decimal.Decimal) (*model.Position, error) {
	p, err := l.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.Pending {
		return nil, fmt.Errorf("trigger of %s position %s: %w", p.Status, p.ID, model.ErrInvalidState)
	}
	symbol, err := l.catalog.Get(p.Symbol)
	if err != nil {
		return nil, err
	}
	account, err := l.accounts.GetAccount(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}

	opened := *p
	opened.Status = model.Open
	opened.OpenPrice = price
	opened.OpenTime = time.Now()

	free, err := l.margin.FreeMargin(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	required := model.RequiredMargin(&opened, symbol, account.Leverage)
	if free.Sub(required).IsNegative() {
		cancelled := *p
		cancelled.Status = model.Closed
		cancelled.CloseReason = model.ReasonSystem
		cancelled.CloseTime = time.Now()
		if err = l.positions.UpdatePosition(ctx, &cancelled, model.Pending); err != nil {
			return nil, err
		}
		l.publishChange(ctx, event.PositionClosed, &cancelled)
		return nil, fmt.Errorf("order %s cancelled, free margin %s, required %s: %w",
			p.ID, free, required, model.ErrInsufficientMargin)
	}

	if err = l.positions.UpdatePosition(ctx, &opened, model.Pending); err != nil {
		return nil, err
	}

	record, err := l.commission.RecordTrade(ctx, request.Trade{
		TradeID:        opened.ID,
		AccountID:      account.ID,
		IBID:           account.IBID,
		Symbol:         opened.Symbol,
		Volume:         opened.Volume,
		IBSharePercent: account.IBSharePercent,
	})
	if err != nil {
		log.Errorf("commission for triggered order %s: %v", opened.ID, err)
	} else {
		charged := opened
		charged.Commission = record.TotalCommission
		if err = l.updateWithRetry(ctx, &charged, model.Open); err != nil {
			log.Errorf("charge commission on %s: %v", opened.ID, err)
		} else {
			opened = charged
		}
	}

	l.publishChange(ctx, event.PositionOpened, &opened)
	return &opened, nil
}

// Close closes the whole remaining volume of an open or partially
// closed position and books the realized profit to the account balance
func (l *Ledger) Close(ctx context.Context, positionID string, price decimal.Decimal, reason model.CloseReason) (*model.Position, error) {
	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		p, err := l.positions.GetPosition(ctx, positionID)
		if err != nil {
			return nil, err
		}
		if p.Status != model.Open && p.Status != model.PartiallyClosed {
			return nil, fmt.Errorf("close of %s position %s: %w", p.Status, p.ID, model.ErrInvalidState)
		}
		realized, err := l.realized(ctx, p, price, p.Volume)
		if err != nil {
			return nil, err
		}

		closed := *p
		closed.Status = model.Closed
		closed.CloseReason = reason
		closed.ClosePrice = price
		closed.CloseTime = time.Now()
		closed.Profit = p.Profit.Add(realized)

		if err = l.positions.UpdatePosition(ctx, &closed, p.Status); err != nil {
			if errors.Is(err, model.ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if err = l.accounts.ChangeBalance(ctx, p.AccountID, realized); err != nil {
			log.Errorf("book profit of position %s: %v", p.ID, err)
			return &closed, err
		}
		l.publishChange(ctx, event.PositionClosed, &closed)
		return &closed, nil
	}
	return nil, lastErr
}

// PartialClose closes volume lots out of the remaining volume, books
// the realized profit for the closed leg and leaves the rest open at
// the original open price. Closing the full remainder must go through
// Close
func (l *Ledger) PartialClose(ctx context.Context, positionID string, volume, price decimal.Decimal) (*model.Position, error) {
	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		p, err := l.positions.GetPosition(ctx, positionID)
		if err != nil {
			return nil, err
		}
		if p.Status != model.Open && p.Status != model.PartiallyClosed {
			return nil, fmt.Errorf("partial close of %s position %s: %w", p.Status, p.ID, model.ErrInvalidState)
		}
		symbol, err := l.catalog.Get(p.Symbol)
		if err != nil {
			return nil, err
		}
		if !model.ValidVolume(volume, symbol.LotStep) || volume.Cmp(p.Volume) >= 0 {
			return nil, fmt.Errorf("partial close of %s lots out of %s: %w",
				volume, p.Volume, model.ErrInvalidVolume)
		}

		// the closed leg takes its share of accrued swap and commission,
		// the remainder stays with the open part
		legSwap := p.Swap.Mul(volume).Div(p.Volume)
		legCommission := p.Commission.Mul(volume).Div(p.Volume)
		realized, err := l.realizedLeg(ctx, p, price, volume, legSwap, legCommission)
		if err != nil {
			return nil, err
		}

		remaining := *p
		remaining.Status = model.PartiallyClosed
		remaining.Volume = p.Volume.Sub(volume)
		remaining.Swap = p.Swap.Sub(legSwap)
		remaining.Commission = p.Commission.Sub(legCommission)
		remaining.Profit = p.Profit.Add(realized)

		if err = l.positions.UpdatePosition(ctx, &remaining, p.Status); err != nil {
			if errors.Is(err, model.ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if err = l.accounts.ChangeBalance(ctx, p.AccountID, realized); err != nil {
			log.Errorf("book profit of position %s: %v", p.ID, err)
			return &remaining, err
		}
		l.publishChange(ctx, event.PositionClosed, &remaining)
		return &remaining, nil
	}
	return nil, lastErr
}

// Cancel closes a pending limit order with zero profit. No margin was
// ever held for it
func (l *Ledger) Cancel(ctx context.Context, positionID string) (*model.Position, error) {
	p, err := l.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.Pending {
		return nil, fmt.Errorf("cancel of %s position %s: %w", p.Status, p.ID, model.ErrInvalidState)
	}
	cancelled := *p
	cancelled.Status = model.Closed
	cancelled.CloseReason = model.ReasonSystem
	cancelled.CloseTime = time.Now()
	if err = l.positions.UpdatePosition(ctx, &cancelled, model.Pending); err != nil {
		return nil, err
	}
	l.publishChange(ctx, event.PositionClosed, &cancelled)
	return &cancelled, nil
}

// MarkToMarket returns the unrealized profit of an open position at
// current quotes in the account currency. No state is mutated
func (l *Ledger) MarkToMarket(ctx context.Context, positionID string) (decimal.Decimal, error) {
	p, err := l.positions.GetPosition(ctx, positionID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if p.Status != model.Open && p.Status != model.PartiallyClosed {
		return decimal.Decimal{}, fmt.Errorf("mark to market of %s position %s: %w",
			p.Status, p.ID, model.ErrInvalidState)
	}
	symbol, err := l.catalog.Get(p.Symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	account, err := l.accounts.GetAccount(ctx, p.AccountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	q, err := l.quotes.Get(p.Symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := l.rates.Rate(symbol.QuoteCurrency, account.Currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return model.Unrealized(p, q, symbol, rate), nil
}

// AccrueSwap adds one period's financing cost to every position that
// holds margin. Positions that changed mid-pass are skipped and picked
// up next period
func (l *Ledger) AccrueSwap(ctx context.Context) error {
	positions, err := l.positions.OpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		symbol, err := l.catalog.Get(p.Symbol)
		if err != nil {
			log.Error(err)
			continue
		}
		perLot := symbol.SwapLongPerLot
		if p.Side == model.Sell {
			perLot = symbol.SwapShortPerLot
		}
		charged := *p
		charged.Swap = p.Swap.Add(perLot.Mul(p.Volume))
		if err = l.positions.UpdatePosition(ctx, &charged, p.Status); err != nil {
			log.Errorf("accrue swap on position %s: %v", p.ID, err)
		}
	}
	return nil
}

// realized is the profit of closing volume lots at price after the
// whole remaining swap and commission burden
func (l *Ledger) realized(ctx context.Context, p *model.Position, price, volume decimal.Decimal) (decimal.Decimal, error) {
	return l.realizedLeg(ctx, p, price, volume, p.Swap, p.Commission)
}

func (l *Ledger) realizedLeg(ctx context.Context, p *model.Position, price, volume, swap, commission decimal.Decimal) (decimal.Decimal, error) {
	symbol, err := l.catalog.Get(p.Symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	account, err := l.accounts.GetAccount(ctx, p.AccountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := l.rates.Rate(symbol.QuoteCurrency, account.Currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	gross := model.GrossProfit(p, price, volume, symbol, rate)
	return gross.Sub(swap).Sub(commission), nil
}

func (l *Ledger) updateWithRetry(ctx context.Context, p *model.Position, expect model.Status) error {
	var err error
	for attempt := 0; attempt < l.retries; attempt++ {
		if err = l.positions.UpdatePosition(ctx, p, expect); !errors.Is(err, model.ErrConcurrentModification) {
			return err
		}
	}
	return err
}

func (l *Ledger) publishChange(ctx context.Context, name string, p *model.Position) {
	err := l.events.Publish(ctx, name, event.PositionChange{
		PositionID: p.ID,
		AccountID:  p.AccountID,
		Symbol:     p.Symbol,
		Status:     string(p.Status),
		Reason:     string(p.CloseReason),
		Profit:     p.Profit.String(),
	})
	if err != nil {
		log.Errorf("publish %s for position %s: %v", name, p.ID, err)
	}
}

// priceAcceptable reports whether the live price is not worse than the
// price the caller agreed to
func priceAcceptable(actual, wanted decimal.Decimal, side model.Side) bool {
	if side == model.Buy {
		return wanted.Cmp(actual) >= 0
	}
	return wanted.Cmp(actual) <= 0
}
