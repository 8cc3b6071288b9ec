package account

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/event"
	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/request"
)

// Monitor enforces the margin-call policy. When an account's margin
// level falls below the threshold it emits MarginCallTriggered and
// force-closes open positions, most losing first, until the level
// recovers or nothing remains. A close that fails is retried on the
// next pass; the account stays in margin call until resolved
type Monitor struct {
	agg       *Aggregator
	closer    request.PositionCloser
	events    event.Publisher
	threshold decimal.Decimal // percent
	interval  time.Duration
}

// NewMonitor is constructor
func NewMonitor(agg *Aggregator, closer request.PositionCloser, events event.Publisher,
	threshold decimal.Decimal, interval time.Duration) *Monitor {
	return &Monitor{agg: agg, closer: closer, events: events, threshold: threshold, interval: interval}
}

// Run sweeps every account holding margin until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Errorf("margin sweep: %v", err)
			}
		}
	}
}

// Sweep checks every account that currently holds margin
func (m *Monitor) Sweep(ctx context.Context) error {
	ids, err := m.agg.positions.AccountsWithOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.CheckAccount(ctx, id); err != nil {
			log.Errorf("margin check of account %s: %v", id, err)
		}
	}
	return nil
}

// CheckAccount evaluates one account against the threshold and
// liquidates if needed
func (m *Monitor) CheckAccount(ctx context.Context, accountID string) error {
	s, err := m.agg.Summarize(ctx, accountID)
	if err != nil {
		return err
	}
	// an account without margin in use cannot be margin called
	if !s.MarginLevelDefined || s.MarginLevel.Cmp(m.threshold) >= 0 {
		log.Debugf("account %s margin level %s", accountID, s.MarginLevel)
		return nil
	}

	err = m.events.Publish(ctx, event.MarginCallTriggered, event.MarginCall{
		AccountID:   accountID,
		MarginLevel: s.MarginLevel.String(),
	})
	if err != nil {
		log.Errorf("publish margin call for account %s: %v", accountID, err)
	}
	log.Infof("margin call on account %s, level %s", accountID, s.MarginLevel)

	for {
		target, price, ok, err := m.worstPosition(ctx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return nil // nothing closable now, retry next pass
		}
		if _, err = m.closer.Close(ctx, target.ID, price, model.ReasonMarginCall); err != nil {
			log.Errorf("margin-call close of position %s: %v", target.ID, err)
			return nil
		}
		s, err = m.agg.Summarize(ctx, accountID)
		if err != nil {
			return err
		}
		if !s.MarginLevelDefined || s.MarginLevel.Cmp(m.threshold) >= 0 {
			return nil
		}
	}
}

// worstPosition picks the open position with the lowest unrealized
// profit among those with a live quote, together with its closing price
func (m *Monitor) worstPosition(ctx context.Context, accountID string) (*model.Position, decimal.Decimal, bool, error) {
	positions, err := m.agg.positions.OpenPositionsByAccount(ctx, accountID)
	if err != nil {
		return nil, decimal.Decimal{}, false, err
	}
	acc, err := m.agg.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, decimal.Decimal{}, false, err
	}

	type candidate struct {
		p          *model.Position
		price      decimal.Decimal
		unrealized decimal.Decimal
	}
	var candidates []candidate
	for _, p := range positions {
		symbol, err := m.agg.catalog.Get(p.Symbol)
		if err != nil {
			return nil, decimal.Decimal{}, false, err
		}
		unrealized, err := m.agg.unrealized(p, symbol, acc.Currency)
		if err != nil {
			if errors.Is(err, model.ErrQuoteUnavailable) {
				continue
			}
			return nil, decimal.Decimal{}, false, err
		}
		q, err := m.agg.quotes.Get(p.Symbol)
		if err != nil {
			continue
		}
		price := q.Bid
		if p.Side == model.Sell {
			price = q.Ask
		}
		candidates = append(candidates, candidate{p: p, price: price, unrealized: unrealized})
	}
	if len(candidates) == 0 {
		return nil, decimal.Decimal{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		c := candidates[i].unrealized.Cmp(candidates[j].unrealized)
		if c != 0 {
			return c < 0
		}
		return candidates[i].p.ID < candidates[j].p.ID
	})
	return candidates[0].p, candidates[0].price, true, nil
}
