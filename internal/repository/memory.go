package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vmaslov/brokerage/internal/model"
)

// Memory is an in-process store with the same compare-and-swap
// semantics as Postgres. Tests and standalone runs use it
type Memory struct {
	mu          sync.RWMutex
	positions   map[string]*model.Position
	accounts    map[string]*model.Account
	commissions map[string]*model.CommissionRecord
	quotes      map[string]*model.Quote
}

// NewMemory is constructor
func NewMemory() *Memory {
	return &Memory{
		positions:   make(map[string]*model.Position),
		accounts:    make(map[string]*model.Account),
		commissions: make(map[string]*model.CommissionRecord),
		quotes:      make(map[string]*model.Quote),
	}
}

// CreatePosition stores a copy of the position
func (m *Memory) CreatePosition(_ context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; ok {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

// GetPosition returns a copy of the position
func (m *Memory) GetPosition(_ context.Context, id string) (*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s didn't find", id)
	}
	cp := *p
	return &cp, nil
}

// OpenPositionsByAccount returns open and partially closed positions of the account
func (m *Memory) OpenPositionsByAccount(_ context.Context, accountID string) ([]*model.Position, error) {
	return m.list(func(p *model.Position) bool {
		return p.AccountID == accountID && holdsMargin(p.Status)
	}), nil
}

// PositionsByAccount returns every position of the account
func (m *Memory) PositionsByAccount(_ context.Context, accountID string) ([]*model.Position, error) {
	return m.list(func(p *model.Position) bool { return p.AccountID == accountID }), nil
}

// PendingPositions returns all pending limit orders in ascending id order
func (m *Memory) PendingPositions(_ context.Context) ([]*model.Position, error) {
	return m.list(func(p *model.Position) bool { return p.Status == model.Pending }), nil
}

// OpenPositions returns all open and partially closed positions
func (m *Memory) OpenPositions(_ context.Context) ([]*model.Position, error) {
	return m.list(func(p *model.Position) bool { return holdsMargin(p.Status) }), nil
}

// AccountsWithOpenPositions returns ids of accounts holding margin
func (m *Memory) AccountsWithOpenPositions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, p := range m.positions {
		if holdsMargin(p.Status) && !seen[p.AccountID] {
			seen[p.AccountID] = true
			ids = append(ids, p.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// UpdatePosition applies the update only if the stored status still
// equals expect
func (m *Memory) UpdatePosition(_ context.Context, p *model.Position, expect model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.positions[p.ID]
	if !ok {
		return fmt.Errorf("position %s didn't find", p.ID)
	}
	if stored.Status != expect {
		return model.ErrConcurrentModification
	}
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

// CreateAccount stores a copy of the account
func (m *Memory) CreateAccount(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

// GetAccount returns a copy of the account
func (m *Memory) GetAccount(_ context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s didn't find", id)
	}
	cp := *a
	return &cp, nil
}

// ChangeBalance adds delta to the account balance
func (m *Memory) ChangeBalance(_ context.Context, id string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %s didn't find", id)
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

// CreateCommission stores a copy of the record
func (m *Memory) CreateCommission(_ context.Context, c *model.CommissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commissions[c.ID]; ok {
		return fmt.Errorf("commission record %s already exists", c.ID)
	}
	cp := *c
	m.commissions[c.ID] = &cp
	return nil
}

// MarkPaid transitions the whole batch pending to paid or nothing at all
func (m *Memory) MarkPaid(_ context.Context, ids []string) ([]*model.CommissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*model.CommissionRecord, 0, len(ids))
	for _, id := range ids {
		c, ok := m.commissions[id]
		if !ok {
			return nil, fmt.Errorf("commission record %s didn't find", id)
		}
		if c.Status != model.CommissionPending {
			return nil, fmt.Errorf("record %s: %w", id, model.ErrAlreadyPaid)
		}
		records = append(records, c)
	}
	out := make([]*model.CommissionRecord, 0, len(records))
	for _, c := range records {
		c.Status = model.CommissionPaid
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// CommissionsByIB returns the IB's records created inside [from, to)
func (m *Memory) CommissionsByIB(_ context.Context, ibID string, from, to time.Time) ([]*model.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []*model.CommissionRecord
	for _, c := range m.commissions {
		if c.IBID != ibID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		cp := *c
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Set stores the quote under its symbol
func (m *Memory) Set(quote *model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *quote
	m.quotes[quote.Symbol] = &cp
	return nil
}

// Get returns the latest quote for the symbol
func (m *Memory) Get(symbol string) (*model.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, model.ErrQuoteUnavailable)
	}
	cp := *q
	return &cp, nil
}

func (m *Memory) list(keep func(*model.Position) bool) []*model.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var positions []*model.Position
	for _, p := range m.positions {
		if keep(p) {
			cp := *p
			positions = append(positions, &cp)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions
}

func holdsMargin(s model.Status) bool {
	return s == model.Open || s == model.PartiallyClosed
}
