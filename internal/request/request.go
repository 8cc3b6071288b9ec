// Package request has parameter structs and the small interfaces that
// connect the components without import cycles
package request

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vmaslov/brokerage/internal/model"
)

// OpenMarket stores parameters for opening a market position.
// Price is the quote the caller saw; the position opens at the live
// price and the request is rejected if the market moved against it
type OpenMarket struct {
	AccountID  string
	Symbol     string
	Side       model.Side
	Volume     decimal.Decimal
	Price      decimal.Decimal // zero skips the price check
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// PlaceLimit stores parameters for placing a pending limit order
type PlaceLimit struct {
	AccountID    string
	Symbol       string
	Side         model.Side
	Volume       decimal.Decimal
	TriggerPrice decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
}

// Trade describes an executed trade for commission purposes
type Trade struct {
	TradeID        string // position id
	AccountID      string
	IBID           string
	Symbol         string
	Volume         decimal.Decimal
	IBSharePercent decimal.Decimal
}

// RecordCommission stores parameters for one commission record
type RecordCommission struct {
	TradeID         string
	IBID            string
	AccountID       string
	Symbol          string
	LotSize         decimal.Decimal
	TotalCommission decimal.Decimal
	IBSharePercent  decimal.Decimal
}

// CommissionSummary is the aggregation returned for an IB over a period
type CommissionSummary struct {
	TotalCommission decimal.Decimal
	IBShare         decimal.Decimal
	AdminShare      decimal.Decimal
	Pending         decimal.Decimal // IB share not yet paid out
	Paid            decimal.Decimal // IB share already paid out
}

// ClientCommissionBreakdown is the per-client slice of an IB's commission
type ClientCommissionBreakdown struct {
	AccountID       string
	Trades          int
	TotalCommission decimal.Decimal
	IBShare         decimal.Decimal
}

// PositionCloser closes a position at the given price. The margin-call
// monitor and the protection sweep use it so they do not depend on the
// ledger package directly
type PositionCloser interface {
	Close(ctx context.Context, positionID string, price decimal.Decimal, reason model.CloseReason) (*model.Position, error)
}

// CommissionRecorder creates the commission record for an executed trade
type CommissionRecorder interface {
	RecordTrade(ctx context.Context, trade Trade) (*model.CommissionRecord, error)
}

// MarginChecker reports the free margin of an account at current quotes
type MarginChecker interface {
	FreeMargin(ctx context.Context, accountID string) (decimal.Decimal, error)
}
