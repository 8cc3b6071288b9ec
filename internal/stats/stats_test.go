package stats

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vmaslov/brokerage/internal/model"
)

func closed(profit string) *model.Position {
	return &model.Position{Status: model.Closed, Profit: decimal.RequireFromString(profit)}
}

func TestCompute(t *testing.T) {
	testTable := []struct {
		name      string
		positions []*model.Position
		expect    model.Stats
	}{
		{
			name:   "No positions",
			expect: model.Stats{},
		},
		{
			name: "Open positions count but carry no statistics",
			positions: []*model.Position{
				{Status: model.Open, Profit: decimal.Zero},
				{Status: model.Pending},
			},
			expect: model.Stats{TotalPositions: 2},
		},
		{
			name: "Winners and losers",
			positions: []*model.Position{
				closed("100"),
				closed("-50"),
				closed("20"),
				{Status: model.Open},
			},
			expect: model.Stats{
				TotalPositions:  4,
				ClosedPositions: 3,
				WinRate:         200.0 / 3,
				TotalPnL:        70,
				AvgWin:          60,
				AvgLoss:         50,
				ProfitFactor:    2.4,
			},
		},
		{
			name: "Only winners",
			positions: []*model.Position{
				closed("10"),
				closed("30"),
			},
			expect: model.Stats{
				TotalPositions:  2,
				ClosedPositions: 2,
				WinRate:         100,
				TotalPnL:        40,
				AvgWin:          20,
				ProfitFactor:    math.Inf(1),
			},
		},
		{
			name: "Only losers",
			positions: []*model.Position{
				closed("-10"),
				closed("-30"),
			},
			expect: model.Stats{
				TotalPositions:  2,
				ClosedPositions: 2,
				TotalPnL:        -40,
				AvgLoss:         20,
			},
		},
		{
			name: "Breakeven trade is neither a win nor a loss",
			positions: []*model.Position{
				closed("0"),
				closed("10"),
			},
			expect: model.Stats{
				TotalPositions:  2,
				ClosedPositions: 2,
				WinRate:         50,
				TotalPnL:        10,
				AvgWin:          10,
				ProfitFactor:    math.Inf(1),
			},
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			s := Compute(testCase.positions)
			assert.Equal(t, testCase.expect.TotalPositions, s.TotalPositions)
			assert.Equal(t, testCase.expect.ClosedPositions, s.ClosedPositions)
			assert.InDelta(t, testCase.expect.WinRate, s.WinRate, 1e-9)
			assert.InDelta(t, testCase.expect.TotalPnL, s.TotalPnL, 1e-9)
			assert.InDelta(t, testCase.expect.AvgWin, s.AvgWin, 1e-9)
			assert.InDelta(t, testCase.expect.AvgLoss, s.AvgLoss, 1e-9)
			if math.IsInf(testCase.expect.ProfitFactor, 1) {
				assert.True(t, math.IsInf(s.ProfitFactor, 1), "profit factor is %v", s.ProfitFactor)
			} else {
				assert.InDelta(t, testCase.expect.ProfitFactor, s.ProfitFactor, 1e-9)
			}
		})
	}
}
