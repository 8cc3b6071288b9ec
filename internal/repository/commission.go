package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vmaslov/brokerage/internal/model"
)

const commissionColumns = `id, trade_id, ib_id, account_id, symbol, lot_size::text,
	total_commission::text, ib_share_percent::text, ib_share::text, admin_share::text,
	status, created_at`

// CreateCommission inserts a new commission record
func (r *Postgres) CreateCommission(ctx context.Context, c *model.CommissionRecord) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO commission_records
		(id, trade_id, ib_id, account_id, symbol, lot_size, total_commission,
		 ib_share_percent, ib_share, admin_share, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric,
		 $9::numeric, $10::numeric, $11, $12)`,
		c.ID, c.TradeID, c.IBID, c.AccountID, c.Symbol, c.LotSize.String(),
		c.TotalCommission.String(), c.IBSharePercent.String(), c.IBShare.String(),
		c.AdminShare.String(), string(c.Status), c.CreatedAt)
	return err
}

// MarkPaid transitions the given pending records to paid as one
// transaction. If any record is not pending the whole batch is rolled
// back and model.ErrAlreadyPaid is returned
func (r *Postgres) MarkPaid(ctx context.Context, ids []string) ([]*model.CommissionRecord, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `UPDATE commission_records SET status = 'paid'
		WHERE id = ANY($1) AND status = 'pending'
		RETURNING `+commissionColumns, ids)
	if err != nil {
		return nil, err
	}

	var records []*model.CommissionRecord
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, c)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(records) != len(ids) {
		return nil, fmt.Errorf("payout of %d records touched %d: %w",
			len(ids), len(records), model.ErrAlreadyPaid)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// CommissionsByIB returns the IB's records created inside [from, to)
func (r *Postgres) CommissionsByIB(ctx context.Context, ibID string, from, to time.Time) ([]*model.CommissionRecord, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+commissionColumns+` FROM commission_records
		WHERE ib_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY id`, ibID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*model.CommissionRecord
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

func scanCommission(row rowScanner) (*model.CommissionRecord, error) {
	var c model.CommissionRecord
	var status string
	var lotSize, total, percent, ibShare, adminShare string

	err := row.Scan(&c.ID, &c.TradeID, &c.IBID, &c.AccountID, &c.Symbol, &lotSize,
		&total, &percent, &ibShare, &adminShare, &status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CommissionStatus(status)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.LotSize, lotSize}, {&c.TotalCommission, total}, {&c.IBSharePercent, percent},
		{&c.IBShare, ibShare}, {&c.AdminShare, adminShare},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
