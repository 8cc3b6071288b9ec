// Package repository stores positions, accounts and commission records
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/vmaslov/brokerage/internal/model"
)

// Positions is the position row store. UpdatePosition applies only if
// the stored status still equals expect, otherwise it fails with
// model.ErrConcurrentModification and the caller must re-read and retry
type Positions interface {
	CreatePosition(ctx context.Context, p *model.Position) error
	GetPosition(ctx context.Context, id string) (*model.Position, error)
	OpenPositionsByAccount(ctx context.Context, accountID string) ([]*model.Position, error)
	PositionsByAccount(ctx context.Context, accountID string) ([]*model.Position, error)
	PendingPositions(ctx context.Context) ([]*model.Position, error)
	OpenPositions(ctx context.Context) ([]*model.Position, error)
	AccountsWithOpenPositions(ctx context.Context) ([]string, error)
	UpdatePosition(ctx context.Context, p *model.Position, expect model.Status) error
}

// Accounts is the account row store
type Accounts interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ChangeBalance(ctx context.Context, id string, delta decimal.Decimal) error
}

// Commissions is the commission record store. MarkPaid transitions the
// whole batch pending to paid or nothing at all
type Commissions interface {
	CreateCommission(ctx context.Context, r *model.CommissionRecord) error
	MarkPaid(ctx context.Context, ids []string) ([]*model.CommissionRecord, error)
	CommissionsByIB(ctx context.Context, ibID string, from, to time.Time) ([]*model.CommissionRecord, error)
}

// Quotes is the bid/ask lookup fed by the quote stream
type Quotes interface {
	Set(quote *model.Quote) error
	Get(symbol string) (*model.Quote, error)
}

// Postgres works with postgres
type Postgres struct {
	conn *pgx.Conn
}

// NewPostgres is constructor
func NewPostgres(conn *pgx.Conn) *Postgres {
	return &Postgres{conn: conn}
}

const positionColumns = `id, account_id, symbol, side, order_type, status, close_reason,
	volume::text, open_volume::text, open_price::text, close_price::text, trigger_price::text,
	stop_loss::text, take_profit::text, commission::text, swap::text, profit::text,
	open_time, close_time`

// CreatePosition inserts a new position row
func (r *Postgres) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO positions
		(id, account_id, symbol, side, order_type, status, close_reason,
		 volume, open_volume, open_price, close_price, trigger_price,
		 stop_loss, take_profit, commission, swap, profit, open_time, close_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric,
		 $11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric,
		 $16::numeric, $17::numeric, $18, $19)`,
		p.ID, p.AccountID, p.Symbol, string(p.Side), string(p.OrderType), string(p.Status),
		string(p.CloseReason), p.Volume.String(), p.OpenVolume.String(), p.OpenPrice.String(),
		p.ClosePrice.String(), p.TriggerPrice.String(), p.StopLoss.String(), p.TakeProfit.String(),
		p.Commission.String(), p.Swap.String(), p.Profit.String(),
		nullTime(p.OpenTime), nullTime(p.CloseTime))
	return err
}

// GetPosition returns one position by id
func (r *Postgres) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("position %s didn't find", id)
	}
	return p, err
}

// OpenPositionsByAccount returns open and partially closed positions of the account
func (r *Postgres) OpenPositionsByAccount(ctx context.Context, accountID string) ([]*model.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE account_id = $1 AND status IN ('open', 'partially_closed') ORDER BY id`, accountID)
}

// PositionsByAccount returns every position of the account
func (r *Postgres) PositionsByAccount(ctx context.Context, accountID string) ([]*model.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE account_id = $1 ORDER BY id`, accountID)
}

// PendingPositions returns all pending limit orders in ascending id order
func (r *Postgres) PendingPositions(ctx context.Context) ([]*model.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE status = 'pending' ORDER BY id`)
}

// OpenPositions returns all open and partially closed positions
func (r *Postgres) OpenPositions(ctx context.Context) ([]*model.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE status IN ('open', 'partially_closed') ORDER BY id`)
}

// AccountsWithOpenPositions returns ids of accounts holding margin
func (r *Postgres) AccountsWithOpenPositions(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT account_id FROM positions
		WHERE status IN ('open', 'partially_closed')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdatePosition writes the mutable fields of a position if its stored
// status still equals expect
func (r *Postgres) UpdatePosition(ctx context.Context, p *model.Position, expect model.Status) error {
	tag, err := r.conn.Exec(ctx, `UPDATE positions SET
		status = $1, close_reason = $2, volume = $3::numeric, open_price = $4::numeric,
		close_price = $5::numeric, commission = $6::numeric, swap = $7::numeric,
		profit = $8::numeric, open_time = $9, close_time = $10
		WHERE id = $11 AND status = $12`,
		string(p.Status), string(p.CloseReason), p.Volume.String(), p.OpenPrice.String(),
		p.ClosePrice.String(), p.Commission.String(), p.Swap.String(), p.Profit.String(),
		nullTime(p.OpenTime), nullTime(p.CloseTime), p.ID, string(expect))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConcurrentModification
	}
	return nil
}

// CreateAccount inserts a new account row
func (r *Postgres) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO accounts
		(id, user_id, balance, leverage, currency, ib_id, ib_share_percent)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::numeric)`,
		a.ID, a.UserID, a.Balance.String(), a.Leverage, a.Currency, a.IBID, a.IBSharePercent.String())
	return err
}

// GetAccount returns one account by id
func (r *Postgres) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	var balance, percent string
	err := r.conn.QueryRow(ctx, `SELECT id, user_id, balance::text, leverage, currency,
		ib_id, ib_share_percent::text FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &balance, &a.Leverage, &a.Currency, &a.IBID, &percent)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("account %s didn't find", id)
	}
	if err != nil {
		return nil, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, err
	}
	if a.IBSharePercent, err = decimal.NewFromString(percent); err != nil {
		return nil, err
	}
	return &a, nil
}

// ChangeBalance adds delta to the account balance
func (r *Postgres) ChangeBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2`, delta.String(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s didn't find", id)
	}
	return nil
}

func (r *Postgres) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*model.Position, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	var side, orderType, status, reason string
	var volume, openVolume, openPrice, closePrice, triggerPrice string
	var stopLoss, takeProfit, commission, swap, profit string
	var openTime, closeTime sql.NullTime

	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &side, &orderType, &status, &reason,
		&volume, &openVolume, &openPrice, &closePrice, &triggerPrice,
		&stopLoss, &takeProfit, &commission, &swap, &profit, &openTime, &closeTime)
	if err != nil {
		return nil, err
	}

	p.Side = model.Side(side)
	p.OrderType = model.OrderType(orderType)
	p.Status = model.Status(status)
	p.CloseReason = model.CloseReason(reason)
	if openTime.Valid {
		p.OpenTime = openTime.Time
	}
	if closeTime.Valid {
		p.CloseTime = closeTime.Time
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.Volume, volume}, {&p.OpenVolume, openVolume}, {&p.OpenPrice, openPrice},
		{&p.ClosePrice, closePrice}, {&p.TriggerPrice, triggerPrice},
		{&p.StopLoss, stopLoss}, {&p.TakeProfit, takeProfit},
		{&p.Commission, commission}, {&p.Swap, swap}, {&p.Profit, profit},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
