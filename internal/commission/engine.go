// Package commission computes, splits and pays out trade commission
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslov/brokerage/internal/event"
	"github.com/vmaslov/brokerage/internal/ident"
	"github.com/vmaslov/brokerage/internal/model"
	"github.com/vmaslov/brokerage/internal/quote"
	"github.com/vmaslov/brokerage/internal/repository"
	"github.com/vmaslov/brokerage/internal/request"
)

var hundred = decimal.NewFromInt(100)

// Engine creates commission records and runs payout cycles
type Engine struct {
	records  repository.Commissions
	catalog  *quote.Catalog
	events   event.Publisher
	exponent int32 // decimal places of the payout currency's minimal unit
}

// NewEngine is constructor
func NewEngine(records repository.Commissions, catalog *quote.Catalog,
	events event.Publisher, exponent int32) *Engine {
	return &Engine{records: records, catalog: catalog, events: events, exponent: exponent}
}

// Record creates one commission record. The IB share is rounded down to
// the minimal currency unit and the remainder goes to the platform, so
// the two shares always sum to the total exactly
func (e *Engine) Record(ctx context.Context, r request.RecordCommission) (*model.CommissionRecord, error) {
	if r.IBSharePercent.IsNegative() || r.IBSharePercent.GreaterThan(hundred) {
		return nil, fmt.Errorf("%s%%: %w", r.IBSharePercent, model.ErrInvalidPercent)
	}

	ibShare := r.TotalCommission.Mul(r.IBSharePercent).Div(hundred).RoundFloor(e.exponent)
	record := &model.CommissionRecord{
		ID:              ident.New(),
		TradeID:         r.TradeID,
		IBID:            r.IBID,
		AccountID:       r.AccountID,
		Symbol:          r.Symbol,
		LotSize:         r.LotSize,
		TotalCommission: r.TotalCommission,
		IBSharePercent:  r.IBSharePercent,
		IBShare:         ibShare,
		AdminShare:      r.TotalCommission.Sub(ibShare),
		Status:          model.CommissionPending,
		CreatedAt:       time.Now(),
	}
	if err := e.records.CreateCommission(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordTrade computes the total commission of an executed trade from
// the symbol's per-lot rate and records it. The IB share percent is the
// snapshot carried by the trade; a later change of the IB's rate never
// touches existing records
func (e *Engine) RecordTrade(ctx context.Context, t request.Trade) (*model.CommissionRecord, error) {
	symbol, err := e.catalog.Get(t.Symbol)
	if err != nil {
		return nil, err
	}
	total := t.Volume.Mul(symbol.CommissionPerLot).Round(e.exponent)
	percent := t.IBSharePercent
	if t.IBID == "" {
		percent = decimal.Zero
	}
	return e.Record(ctx, request.RecordCommission{
		TradeID:         t.TradeID,
		IBID:            t.IBID,
		AccountID:       t.AccountID,
		Symbol:          t.Symbol,
		LotSize:         t.Volume,
		TotalCommission: total,
		IBSharePercent:  percent,
	})
}

// Payout marks the given pending records paid as one atomic batch. If
// any record is not pending the whole batch fails with
// model.ErrAlreadyPaid and nothing changes
func (e *Engine) Payout(ctx context.Context, recordIDs []string) (*model.PayoutBatch, error) {
	if len(recordIDs) == 0 {
		return nil, fmt.Errorf("empty payout batch")
	}
	records, err := e.records.MarkPaid(ctx, recordIDs)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.IBShare)
	}
	batch := &model.PayoutBatch{
		ID:        ident.New(),
		RecordIDs: recordIDs,
		Total:     total,
		PaidAt:    time.Now(),
	}
	err = e.events.Publish(ctx, event.CommissionPaidOut, event.Payout{
		BatchID: batch.ID,
		Records: batch.RecordIDs,
		Total:   batch.Total.String(),
	})
	if err != nil {
		log.Errorf("publish payout %s: %v", batch.ID, err)
	}
	return batch, nil
}

// Summary aggregates an IB's records created inside [from, to). Pure
// read, no side effects
func (e *Engine) Summary(ctx context.Context, ibID string, from, to time.Time) (*request.CommissionSummary, error) {
	records, err := e.records.CommissionsByIB(ctx, ibID, from, to)
	if err != nil {
		return nil, err
	}
	s := &request.CommissionSummary{
		TotalCommission: decimal.Zero,
		IBShare:         decimal.Zero,
		AdminShare:      decimal.Zero,
		Pending:         decimal.Zero,
		Paid:            decimal.Zero,
	}
	for _, r := range records {
		s.TotalCommission = s.TotalCommission.Add(r.TotalCommission)
		s.IBShare = s.IBShare.Add(r.IBShare)
		s.AdminShare = s.AdminShare.Add(r.AdminShare)
		if r.Status == model.CommissionPaid {
			s.Paid = s.Paid.Add(r.IBShare)
		} else {
			s.Pending = s.Pending.Add(r.IBShare)
		}
	}
	return s, nil
}

// ByClient slices an IB's commission per referred client. Pure read,
// deterministic order
func (e *Engine) ByClient(ctx context.Context, ibID string, from, to time.Time) ([]*request.ClientCommissionBreakdown, error) {
	records, err := e.records.CommissionsByIB(ctx, ibID, from, to)
	if err != nil {
		return nil, err
	}
	byClient := make(map[string]*request.ClientCommissionBreakdown)
	var order []string
	for _, r := range records {
		b, ok := byClient[r.AccountID]
		if !ok {
			b = &request.ClientCommissionBreakdown{
				AccountID:       r.AccountID,
				TotalCommission: decimal.Zero,
				IBShare:         decimal.Zero,
			}
			byClient[r.AccountID] = b
			order = append(order, r.AccountID)
		}
		b.Trades++
		b.TotalCommission = b.TotalCommission.Add(r.TotalCommission)
		b.IBShare = b.IBShare.Add(r.IBShare)
	}
	out := make([]*request.ClientCommissionBreakdown, 0, len(order))
	for _, id := range order {
		out = append(out, byClient[id])
	}
	return out, nil
}
