package account

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCatalog() *quote.Catalog {
	return quote.NewCatalog([]model.Symbol{
		{Title: "EURUSD", ContractSize: d("100000"), QuoteCurrency: "USD", LotStep: d("0.01")},
	})
}

func newAggregator(t *testing.T, balance string) (*Aggregator, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory()
	err := store.CreateAccount(context.Background(), &model.Account{
		ID: "acc1", UserID: "user1", Balance: d(balance), Leverage: 100, Currency: "USD",
	})
	require.NoError(t, err)
	return NewAggregator(store, store, store, testCatalog(), quote.NewRates(nil)), store
}

func openPosition(t *testing.T, store *repository.Memory, id, openPrice, volume string) {
	t.Helper()
	err := store.CreatePosition(context.Background(), &model.Position{
		ID: id, AccountID: "acc1", Symbol: "EURUSD", Side: model.Buy,
		OrderType: model.Market, Status: model.Open,
		Volume: d(volume), OpenVolume: d(volume), OpenPrice: d(openPrice),
		OpenTime: time.Now(),
	})
	require.NoError(t, err)
}

func TestAggregator_Summarize(t *testing.T) {
	agg, store := newAggregator(t, "10000")
	ctx := context.Background()
	openPosition(t, store, "p1", "1.1000", "1")
	require.NoError(t, store.Set(&model.Quote{
		Symbol: "EURUSD", Bid: d("1.0950"), Ask: d("1.0952"), Update: time.Now(),
	}))

	s, err := agg.Summarize(ctx, "acc1")
	require.NoError(t, err)
	assert.True(t, s.Equity.Equal(d("9500")), "equity is %s", s.Equity)
	assert.True(t, s.Margin.Equal(d("1100")), "margin is %s", s.Margin)
	assert.True(t, s.FreeMargin.Equal(d("8400")), "free margin is %s", s.FreeMargin)
	require.True(t, s.MarginLevelDefined)
	assert.True(t, s.MarginLevel.Round(2).Equal(d("863.64")), "margin level is %s", s.MarginLevel)
}

func TestAggregator_SummarizeWithoutPositions(t *testing.T) {
	agg, _ := newAggregator(t, "10000")

	s, err := agg.Summarize(context.Background(), "acc1")
	require.NoError(t, err)
	assert.True(t, s.Equity.Equal(d("10000")))
	assert.True(t, s.Margin.IsZero())
	assert.False(t, s.MarginLevelDefined, "margin level must be undefined with no margin in use")
}

func TestAggregator_SummarizeWithoutQuote(t *testing.T) {
	agg, store := newAggregator(t, "10000")
	openPosition(t, store, "p1", "1.1000", "1")

	// no quote: the position still reserves margin but adds no
	// unrealized profit
	s, err := agg.Summarize(context.Background(), "acc1")
	require.NoError(t, err)
	assert.True(t, s.Equity.Equal(d("10000")), "equity is %s", s.Equity)
	assert.True(t, s.Margin.Equal(d("1100")), "margin is %s", s.Margin)
}

func TestAggregator_Deposit(t *testing.T) {
	agg, store := newAggregator(t, "1000")
	ctx := context.Background()

	require.NoError(t, agg.Deposit(ctx, "acc1", d("250")))
	acc, err := store.GetAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("1250")))

	assert.ErrorIs(t, agg.Deposit(ctx, "acc1", d("0")), model.ErrInvalidVolume)
	assert.ErrorIs(t, agg.Deposit(ctx, "acc1", d("-5")), model.ErrInvalidVolume)
}

func TestAggregator_Withdraw(t *testing.T) {
	agg, store := newAggregator(t, "1000")
	ctx := context.Background()

	assert.ErrorIs(t, agg.Withdraw(ctx, "acc1", d("1500")), model.ErrInsufficientMargin)
	assert.ErrorIs(t, agg.Withdraw(ctx, "acc1", d("-5")), model.ErrInvalidVolume)

	require.NoError(t, agg.Withdraw(ctx, "acc1", d("400")))
	acc, err := store.GetAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("600")))
}

func TestAggregator_WithdrawGuardsMargin(t *testing.T) {
	agg, store := newAggregator(t, "10000")
	ctx := context.Background()
	openPosition(t, store, "p1", "1.1000", "1")
	require.NoError(t, store.Set(&model.Quote{
		Symbol: "EURUSD", Bid: d("1.0950"), Ask: d("1.0952"), Update: time.Now(),
	}))

	// free margin is 8400, the balance alone is not the limit
	assert.ErrorIs(t, agg.Withdraw(ctx, "acc1", d("8500")), model.ErrInsufficientMargin)
	require.NoError(t, agg.Withdraw(ctx, "acc1", d("8400")))
}
