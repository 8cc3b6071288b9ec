package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vmaslov/brokerage/internal/model"
)

// Rates converts amounts between currencies. The table is supplied by
// the surrounding application; the core never derives rates itself
type Rates struct {
	table map[string]decimal.Decimal // key: FROM + TO
}

// NewRates is constructor
func NewRates(table map[string]decimal.Decimal) *Rates {
	if table == nil {
		table = make(map[string]decimal.Decimal)
	}
	return &Rates{table: table}
}

// Rate returns the conversion rate from one currency to another.
// Identical currencies convert at one
func (r *Rates) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := r.table[from+to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("rate %s/%s: %w", from, to, model.ErrQuoteUnavailable)
	}
	return rate, nil
}
