package commission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmaslov/brokerage/internal/event"
	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
	"github.com/vmaslov/brokerage/internal/request"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngine(t *testing.T) (*Engine, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory()
	catalog := quote.NewCatalog([]model.Symbol{
		{Title: "EURUSD", ContractSize: d("100000"), QuoteCurrency: "USD",
			LotStep: d("0.01"), CommissionPerLot: d("7")},
	})
	return NewEngine(store, catalog, event.Noop{}, 2), store
}

func TestEngine_Record(t *testing.T) {
	testTable := []struct {
		name            string
		total           string
		percent         string
		expectIB        string
		expectAdmin     string
		expectErrorType error
	}{
		{
			name:        "Thirty percent of ten dollars",
			total:       "10",
			percent:     "30",
			expectIB:    "3",
			expectAdmin: "7",
		},
		{
			name:        "Fraction rounds down to the IB",
			total:       "10",
			percent:     "33",
			expectIB:    "3.30",
			expectAdmin: "6.70",
		},
		{
			name:        "Sub-cent share goes entirely to the platform",
			total:       "0.01",
			percent:     "33",
			expectIB:    "0",
			expectAdmin: "0.01",
		},
		{
			name:        "Zero percent",
			total:       "7",
			percent:     "0",
			expectIB:    "0",
			expectAdmin: "7",
		},
		{
			name:        "Full percent",
			total:       "9.99",
			percent:     "100",
			expectIB:    "9.99",
			expectAdmin: "0",
		},
		{
			name:            "Negative percent",
			total:           "10",
			percent:         "-1",
			expectErrorType: model.ErrInvalidPercent,
		},
		{
			name:            "Percent above one hundred",
			total:           "10",
			percent:         "101",
			expectErrorType: model.ErrInvalidPercent,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			engine, _ := newEngine(t)
			record, err := engine.Record(context.Background(), request.RecordCommission{
				TradeID: "t1", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
				LotSize: d("1"), TotalCommission: d(testCase.total), IBSharePercent: d(testCase.percent),
			})
			if testCase.expectErrorType != nil {
				assert.ErrorIs(t, err, testCase.expectErrorType)
				return
			}
			require.NoError(t, err)
			assert.True(t, record.IBShare.Equal(d(testCase.expectIB)), "ib share is %s", record.IBShare)
			assert.True(t, record.AdminShare.Equal(d(testCase.expectAdmin)), "admin share is %s", record.AdminShare)
			assert.True(t, record.IBShare.Add(record.AdminShare).Equal(record.TotalCommission),
				"shares must sum to the total exactly")
			assert.Equal(t, model.CommissionPending, record.Status)
		})
	}
}

func TestEngine_RecordTrade(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	record, err := engine.RecordTrade(ctx, request.Trade{
		TradeID: "t1", AccountID: "acc1", IBID: "ib1", Symbol: "EURUSD",
		Volume: d("2"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	assert.True(t, record.TotalCommission.Equal(d("14")), "total is %s", record.TotalCommission)
	assert.True(t, record.IBShare.Equal(d("4.20")), "ib share is %s", record.IBShare)

	// a trade without a referring IB keeps nothing aside
	record, err = engine.RecordTrade(ctx, request.Trade{
		TradeID: "t2", AccountID: "acc1", Symbol: "EURUSD",
		Volume: d("1"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	assert.True(t, record.IBShare.IsZero())
	assert.True(t, record.AdminShare.Equal(record.TotalCommission))

	_, err = engine.RecordTrade(ctx, request.Trade{
		TradeID: "t3", AccountID: "acc1", Symbol: "XAUUSD", Volume: d("1"),
	})
	assert.ErrorIs(t, err, model.ErrUnknownSymbol)
}

func TestEngine_Payout(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	first, err := engine.Record(ctx, request.RecordCommission{
		TradeID: "t1", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
		LotSize: d("1"), TotalCommission: d("10"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	second, err := engine.Record(ctx, request.RecordCommission{
		TradeID: "t2", IBID: "ib1", AccountID: "acc2", Symbol: "EURUSD",
		LotSize: d("1"), TotalCommission: d("20"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)

	batch, err := engine.Payout(ctx, []string{first.ID, second.ID})
	require.NoError(t, err)
	assert.True(t, batch.Total.Equal(d("9")), "batch total is %s", batch.Total)

	// the same batch cannot be paid twice
	_, err = engine.Payout(ctx, []string{first.ID, second.ID})
	assert.ErrorIs(t, err, model.ErrAlreadyPaid)

	// a batch with one paid record fails whole, the pending one survives
	third, err := engine.Record(ctx, request.RecordCommission{
		TradeID: "t3", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
		LotSize: d("1"), TotalCommission: d("10"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	_, err = engine.Payout(ctx, []string{first.ID, third.ID})
	assert.ErrorIs(t, err, model.ErrAlreadyPaid)

	batch, err = engine.Payout(ctx, []string{third.ID})
	require.NoError(t, err)
	assert.True(t, batch.Total.Equal(d("3")))

	_, err = engine.Payout(ctx, nil)
	assert.Error(t, err)
}

func TestEngine_Summary(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	first, err := engine.Record(ctx, request.RecordCommission{
		TradeID: "t1", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
		LotSize: d("1"), TotalCommission: d("10"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	_, err = engine.Record(ctx, request.RecordCommission{
		TradeID: "t2", IBID: "ib1", AccountID: "acc2", Symbol: "EURUSD",
		LotSize: d("2"), TotalCommission: d("20"), IBSharePercent: d("30"),
	})
	require.NoError(t, err)
	// another IB's record stays out of ib1's summary
	_, err = engine.Record(ctx, request.RecordCommission{
		TradeID: "t3", IBID: "ib2", AccountID: "acc3", Symbol: "EURUSD",
		LotSize: d("1"), TotalCommission: d("50"), IBSharePercent: d("50"),
	})
	require.NoError(t, err)

	_, err = engine.Payout(ctx, []string{first.ID})
	require.NoError(t, err)

	s, err := engine.Summary(ctx, "ib1", from, to)
	require.NoError(t, err)
	assert.True(t, s.TotalCommission.Equal(d("30")), "total is %s", s.TotalCommission)
	assert.True(t, s.IBShare.Equal(d("9")), "ib share is %s", s.IBShare)
	assert.True(t, s.AdminShare.Equal(d("21")), "admin share is %s", s.AdminShare)
	assert.True(t, s.Paid.Equal(d("3")), "paid is %s", s.Paid)
	assert.True(t, s.Pending.Equal(d("6")), "pending is %s", s.Pending)
}

func TestEngine_ByClient(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()
	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	for _, r := range []request.RecordCommission{
		{TradeID: "t1", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
			LotSize: d("1"), TotalCommission: d("10"), IBSharePercent: d("30")},
		{TradeID: "t2", IBID: "ib1", AccountID: "acc2", Symbol: "EURUSD",
			LotSize: d("1"), TotalCommission: d("20"), IBSharePercent: d("30")},
		{TradeID: "t3", IBID: "ib1", AccountID: "acc1", Symbol: "EURUSD",
			LotSize: d("1"), TotalCommission: d("10"), IBSharePercent: d("30")},
	} {
		_, err := engine.Record(ctx, r)
		require.NoError(t, err)
	}

	breakdown, err := engine.ByClient(ctx, "ib1", from, to)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)

	byAccount := make(map[string]*request.ClientCommissionBreakdown)
	for _, b := range breakdown {
		byAccount[b.AccountID] = b
	}
	require.Contains(t, byAccount, "acc1")
	require.Contains(t, byAccount, "acc2")
	assert.Equal(t, 2, byAccount["acc1"].Trades)
	assert.True(t, byAccount["acc1"].TotalCommission.Equal(d("20")))
	assert.True(t, byAccount["acc1"].IBShare.Equal(d("6")))
	assert.Equal(t, 1, byAccount["acc2"].Trades)
	assert.True(t, byAccount["acc2"].IBShare.Equal(d("6")))
}
