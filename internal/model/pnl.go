package model

import "github.com/shopspring/decimal"

// Unrealized is the mark-to-market profit of an open position. A buy is
// valued against the bid, a sell against the ask. The rate converts the
// symbol's quote currency into the account currency; pass one when they
// match
func Unrealized(p *Position, q *Quote, s *Symbol, rate decimal.Decimal) decimal.Decimal {
	var diff decimal.Decimal
	if p.Side == Buy {
		diff = q.Bid.Sub(p.OpenPrice)
	} else {
		diff = p.OpenPrice.Sub(q.Ask)
	}
	return diff.Mul(p.Volume).Mul(s.ContractSize).Mul(rate)
}

// GrossProfit is the profit of closing volume lots at price, before
// swap and commission are deducted
func GrossProfit(p *Position, price, volume decimal.Decimal, s *Symbol, rate decimal.Decimal) decimal.Decimal {
	var diff decimal.Decimal
	if p.Side == Buy {
		diff = price.Sub(p.OpenPrice)
	} else {
		diff = p.OpenPrice.Sub(price)
	}
	return diff.Mul(volume).Mul(s.ContractSize).Mul(rate)
}

// RequiredMargin is the capital reserved against a position, always at
// the account's leverage
func RequiredMargin(p *Position, s *Symbol, leverage int64) decimal.Decimal {
	return p.OpenPrice.Mul(p.Volume).Mul(s.ContractSize).Div(decimal.NewFromInt(leverage))
}

// ValidVolume reports whether volume is positive and a whole number of
// lot steps
func ValidVolume(volume, lotStep decimal.Decimal) bool {
	if !volume.IsPositive() {
		return false
	}
	if lotStep.IsPositive() && !volume.Mod(lotStep).IsZero() {
		return false
	}
	return true
}
