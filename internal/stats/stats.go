// Package stats derives trading statistics from closed positions
package stats

import (
	"math"

	"github.com/vmaslov/brokerage/internal/model"
)

// Compute aggregates a set of positions. Only closed positions count
// towards the trade statistics; pending and open ones only raise
// TotalPositions. Every ratio has a defined value for empty inputs:
// WinRate is 0 with nothing closed, ProfitFactor is 0 without winners
// and +Inf with winners and no losers
func Compute(positions []*model.Position) *model.Stats {
	s := &model.Stats{TotalPositions: len(positions)}

	var winners, losers int
	var totalWin, totalLoss float64
	for _, p := range positions {
		if p.Status != model.Closed {
			continue
		}
		s.ClosedPositions++
		pnl := p.Profit.InexactFloat64()
		s.TotalPnL += pnl
		switch {
		case pnl > 0:
			winners++
			totalWin += pnl
		case pnl < 0:
			losers++
			totalLoss += math.Abs(pnl)
		}
	}

	if s.ClosedPositions > 0 {
		s.WinRate = float64(winners) / float64(s.ClosedPositions) * 100
	}
	if winners > 0 {
		s.AvgWin = totalWin / float64(winners)
	}
	if losers > 0 {
		s.AvgLoss = totalLoss / float64(losers)
	}
	switch {
	case winners == 0:
		s.ProfitFactor = 0
	case totalLoss == 0:
		s.ProfitFactor = math.Inf(1)
	default:
		s.ProfitFactor = totalWin / totalLoss
	}
	return s
}
