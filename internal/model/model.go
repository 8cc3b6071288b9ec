// Package model contains the entities of the accounting core
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a direction of a position
type Side string

// Directions of a position
const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType says how a position enters the book
type OrderType string

// Order types
const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// Status is a stage of the position lifecycle
type Status string

// Position statuses. There is no transition out of Closed
const (
	Pending         Status = "pending"
	Open            Status = "open"
	PartiallyClosed Status = "partially_closed"
	Closed          Status = "closed"
)

// CloseReason says why a position left the book
type CloseReason string

// Close reasons
const (
	ReasonManual     CloseReason = "manual"
	ReasonStopLoss   CloseReason = "stop_loss"
	ReasonTakeProfit CloseReason = "take_profit"
	ReasonMarginCall CloseReason = "margin_call"
	ReasonSystem     CloseReason = "system"
)

// CommissionStatus is a payout state of a commission record
type CommissionStatus string

// Commission record statuses
const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// Position is one trading exposure. Closed positions are kept for
// statistics and audit, never deleted
type Position struct {
	ID           string
	AccountID    string
	Symbol       string
	Side         Side
	OrderType    OrderType
	Status       Status
	CloseReason  CloseReason
	Volume       decimal.Decimal // remaining lots
	OpenVolume   decimal.Decimal // lots originally opened
	OpenPrice    decimal.Decimal
	ClosePrice   decimal.Decimal
	TriggerPrice decimal.Decimal // limit orders only
	StopLoss     decimal.Decimal // zero means not set
	TakeProfit   decimal.Decimal // zero means not set
	Commission   decimal.Decimal // commission still carried by the open part
	Swap         decimal.Decimal // financing cost still carried by the open part
	Profit       decimal.Decimal // realized, accumulated across partial closes
	OpenTime     time.Time
	CloseTime    time.Time
}

// Account is the stored financial state of one trading account.
// Equity, margin and free margin are derived by the aggregator and
// never persisted as source of truth
type Account struct {
	ID             string
	UserID         string
	Balance        decimal.Decimal
	Leverage       int64 // 100 means 1:100
	Currency       string
	IBID           string          // introducing broker, empty if none
	IBSharePercent decimal.Decimal // snapshot source for new commission records
}

// AccountSummary is a point-in-time projection of an account.
// MarginLevel is meaningful only when MarginLevelDefined is true;
// with no margin in use the level is unbounded, not a number
type AccountSummary struct {
	AccountID          string
	Balance            decimal.Decimal
	Equity             decimal.Decimal
	Margin             decimal.Decimal
	FreeMargin         decimal.Decimal
	MarginLevel        decimal.Decimal
	MarginLevelDefined bool
}

// CommissionRecord is one commission event tied to a trade.
// IBShare + AdminShare always equals TotalCommission exactly
type CommissionRecord struct {
	ID              string
	TradeID         string
	IBID            string
	AccountID       string // the referred client
	Symbol          string
	LotSize         decimal.Decimal
	TotalCommission decimal.Decimal
	IBSharePercent  decimal.Decimal // fixed at creation, never recomputed
	IBShare         decimal.Decimal
	AdminShare      decimal.Decimal
	Status          CommissionStatus
	CreatedAt       time.Time
}

// PayoutBatch is the result of marking a set of commission records paid
type PayoutBatch struct {
	ID        string
	RecordIDs []string
	Total     decimal.Decimal // sum of IB shares paid out
	PaidAt    time.Time
}

// Quote is the latest bid/ask for a symbol
type Quote struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Update time.Time
}

// Symbol contains the trading properties of an instrument
type Symbol struct {
	Title            string
	ContractSize     decimal.Decimal // notional units per 1.0 lot
	QuoteCurrency    string
	LotStep          decimal.Decimal // minimum volume increment
	CommissionPerLot decimal.Decimal
	SwapLongPerLot   decimal.Decimal // per accrual period, negative is a cost
	SwapShortPerLot  decimal.Decimal
}

// Stats are derived figures over a set of positions. ProfitFactor is 0
// when there are no winning trades and +Inf when there are winners and
// no losers; WinRate is 0 when nothing is closed yet
type Stats struct {
	TotalPositions  int
	ClosedPositions int
	WinRate         float64 // percent
	TotalPnL        float64
	AvgWin          float64
	AvgLoss         float64 // magnitude of the average losing trade
	ProfitFactor    float64
}
