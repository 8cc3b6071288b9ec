// Package trigger scans resting orders and protections against quotes
package trigger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/repository"
	"github.com/vmaslov/brokerage/internal/request"
)

// Activator promotes one pending order to an open position at the
// crossing price. The ledger implements it
type Activator interface {
	Trigger(ctx context.Context, positionID string, price decimal.Decimal) (*model.Position, error)
}

// Evaluator decides which resting orders fire on current quotes
type Evaluator struct {
	positions repository.Positions
	quotes    repository.Quotes
	ledger    Activator
	closer    request.PositionCloser
}

// NewEvaluator is constructor
func NewEvaluator(positions repository.Positions, quotes repository.Quotes,
	ledger Activator, closer request.PositionCloser) *Evaluator {
	return &Evaluator{positions: positions, quotes: quotes, ledger: ledger, closer: closer}
}

// Evaluate promotes every pending limit order whose trigger price is
// crossed. Orders are visited in ascending id order, oldest first, so
// two passes over the same book promote the same sequence. A symbol
// without a quote is skipped, not failed. Returns ids of the positions
// that opened
func (e *Evaluator) Evaluate(ctx context.Context) ([]string, error) {
	pending, err := e.positions.PendingPositions(ctx)
	if err != nil {
		return nil, err
	}

	var triggered []string
	for _, p := range pending {
		q, err := e.quotes.Get(p.Symbol)
		if err != nil {
			if !errors.Is(err, model.ErrQuoteUnavailable) {
				log.Error(err)
			}
			continue
		}
		price, ok := crossingPrice(p, q)
		if !ok {
			continue
		}
		if _, err = e.ledger.Trigger(ctx, p.ID, price); err != nil {
			switch {
			case errors.Is(err, model.ErrConcurrentModification),
				errors.Is(err, model.ErrInvalidState):
				// a concurrent pass got there first
			case errors.Is(err, model.ErrInsufficientMargin):
				log.Infof("order %s cancelled at trigger: %v", p.ID, err)
			default:
				log.Errorf("trigger order %s: %v", p.ID, err)
			}
			continue
		}
		triggered = append(triggered, p.ID)
	}
	return triggered, nil
}

// SweepProtections closes open positions whose stop loss or take profit
// is crossed. Returns ids of the positions that closed
func (e *Evaluator) SweepProtections(ctx context.Context) ([]string, error) {
	positions, err := e.positions.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}

	var closed []string
	for _, p := range positions {
		q, err := e.quotes.Get(p.Symbol)
		if err != nil {
			if !errors.Is(err, model.ErrQuoteUnavailable) {
				log.Error(err)
			}
			continue
		}
		reason, ok := protectionHit(p, q)
		if !ok {
			continue
		}
		price := closingPrice(p, q)
		if _, err = e.closer.Close(ctx, p.ID, price, reason); err != nil {
			if !errors.Is(err, model.ErrConcurrentModification) && !errors.Is(err, model.ErrInvalidState) {
				log.Errorf("close position %s on %s: %v", p.ID, reason, err)
			}
			continue
		}
		closed = append(closed, p.ID)
	}
	return closed, nil
}

// crossingPrice returns the price a pending order fires at. A limit buy
// fires when the ask falls to the trigger, a limit sell when the bid
// rises to it. The order opens at the crossing quote, never at the
// stale trigger price
func crossingPrice(p *model.Position, q *model.Quote) (decimal.Decimal, bool) {
	if p.Side == model.Buy {
		if q.Ask.Cmp(p.TriggerPrice) <= 0 {
			return q.Ask, true
		}
		return decimal.Decimal{}, false
	}
	if q.Bid.Cmp(p.TriggerPrice) >= 0 {
		return q.Bid, true
	}
	return decimal.Decimal{}, false
}

// protectionHit checks stop loss and take profit against the side the
// position would close on
func protectionHit(p *model.Position, q *model.Quote) (model.CloseReason, bool) {
	price := closingPrice(p, q)
	if p.Side == model.Buy {
		if p.StopLoss.IsPositive() && price.Cmp(p.StopLoss) <= 0 {
			return model.ReasonStopLoss, true
		}
		if p.TakeProfit.IsPositive() && price.Cmp(p.TakeProfit) >= 0 {
			return model.ReasonTakeProfit, true
		}
		return "", false
	}
	if p.StopLoss.IsPositive() && price.Cmp(p.StopLoss) >= 0 {
		return model.ReasonStopLoss, true
	}
	if p.TakeProfit.IsPositive() && price.Cmp(p.TakeProfit) <= 0 {
		return model.ReasonTakeProfit, true
	}
	return "", false
}

// closingPrice is the quote side a close executes at
func closingPrice(p *model.Position, q *model.Quote) decimal.Decimal {
	if p.Side == model.Buy {
		return q.Bid
	}
	return q.Ask
}
