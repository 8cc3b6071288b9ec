// Package account rolls positions up into account figures and watches
// the margin-call policy
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
)

// Aggregator derives equity, margin, free margin and margin level from
// the open-position set and the latest quotes. The figures are never
// persisted as source of truth
type Aggregator struct {
	positions repository.Positions
	accounts  repository.Accounts
	quotes    repository.Quotes
	catalog   *quote.Catalog
	rates     *quote.Rates
}

// NewAggregator is constructor
func NewAggregator(positions repository.Positions, accounts repository.Accounts,
	quotes repository.Quotes, catalog *quote.Catalog, rates *quote.Rates) *Aggregator {
	return &Aggregator{
		positions: positions,
		accounts:  accounts,
		quotes:    quotes,
		catalog:   catalog,
		rates:     rates,
	}
}

// Summarize computes the account projection at current quotes. A symbol
// without a quote contributes its margin but no unrealized profit; the
// scan never fails over one symbol. With no margin in use the margin
// level is reported undefined, not as a numeric error
func (a *Aggregator) Summarize(ctx context.Context, accountID string) (*model.AccountSummary, error) {
	acc, err := a.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions, err := a.positions.OpenPositionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	equity := acc.Balance
	margin := decimal.Zero
	for _, p := range positions {
		symbol, err := a.catalog.Get(p.Symbol)
		if err != nil {
			return nil, err
		}
		margin = margin.Add(model.RequiredMargin(p, symbol, acc.Leverage))

		unrealized, err := a.unrealized(p, symbol, acc.Currency)
		if err != nil {
			if errors.Is(err, model.ErrQuoteUnavailable) {
				log.Debugf("summarize %s: %v", accountID, err)
				continue
			}
			return nil, err
		}
		equity = equity.Add(unrealized)
	}

	s := &model.AccountSummary{
		AccountID:  accountID,
		Balance:    acc.Balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: equity.Sub(margin),
	}
	if margin.IsPositive() {
		s.MarginLevel = equity.Div(margin).Mul(decimal.NewFromInt(100))
		s.MarginLevelDefined = true
	}
	return s, nil
}

// FreeMargin returns equity minus margin at current quotes
func (a *Aggregator) FreeMargin(ctx context.Context, accountID string) (decimal.Decimal, error) {
	s, err := a.Summarize(ctx, accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return s.FreeMargin, nil
}

// Deposit adds funds to the account balance
func (a *Aggregator) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit of %s: %w", amount, model.ErrInvalidVolume)
	}
	return a.accounts.ChangeBalance(ctx, accountID, amount)
}

// Withdraw removes funds from the account balance. The withdrawal may
// not push free margin negative
func (a *Aggregator) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdrawal of %s: %w", amount, model.ErrInvalidVolume)
	}
	s, err := a.Summarize(ctx, accountID)
	if err != nil {
		return err
	}
	if s.FreeMargin.Cmp(amount) < 0 {
		return fmt.Errorf("withdrawal of %s with free margin %s: %w",
			amount, s.FreeMargin, model.ErrInsufficientMargin)
	}
	return a.accounts.ChangeBalance(ctx, accountID, amount.Neg())
}

func (a *Aggregator) unrealized(p *model.Position, symbol *model.Symbol, currency string) (decimal.Decimal, error) {
	q, err := a.quotes.Get(p.Symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, err := a.rates.Rate(symbol.QuoteCurrency, currency)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return model.Unrealized(p, q, symbol, rate), nil
}
