// Package quote supplies symbol properties, conversion rates and the
// tick feed that keeps the quote cache current
package quote

import (
	"fmt"

	"github.com/vmaslov/brokerage/internal/model"
)

// Catalog is the symbol property lookup
type Catalog struct {
	symbols map[string]model.Symbol
}

// NewCatalog is constructor
func NewCatalog(symbols []model.Symbol) *Catalog {
	m := make(map[string]model.Symbol, len(symbols))
	for _, s := range symbols {
		m[s.Title] = s
	}
	return &Catalog{symbols: m}
}

// Get returns the properties of a symbol
func (c *Catalog) Get(title string) (*model.Symbol, error) {
	s, ok := c.symbols[title]
	if !ok {
		return nil, fmt.Errorf("%s: %w", title, model.ErrUnknownSymbol)
	}
	return &s, nil
}
