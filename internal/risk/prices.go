package risk

import (
	"sync"
	"time"
)

// Quote is the last trade seen for a symbol.
type Quote struct {
	Price     float64
	Timestamp time.Time
}

// PriceTable is the last-price table keyed by normalized symbol. Writes are
// last-write-wins; out-of-order prints simply overwrite newer ones.
type PriceTable struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewPriceTable returns an empty PriceTable.
func NewPriceTable() *PriceTable {
	return &PriceTable{quotes: make(map[string]Quote)}
}

// Set records price as the latest for symbol.
func (t *PriceTable) Set(symbol string, price float64, ts time.Time) {
	t.mu.Lock()
	t.quotes[symbol] = Quote{Price: price, Timestamp: ts}
	t.mu.Unlock()
}

// Get returns the last quote for symbol.
func (t *PriceTable) Get(symbol string) (Quote, bool) {
	t.mu.RLock()
	q, ok := t.quotes[symbol]
	t.mu.RUnlock()
	return q, ok
}

// Price returns the last price for symbol. Its signature matches
// domain.PriceLookup.
func (t *PriceTable) Price(symbol string) (float64, bool) {
	q, ok := t.Get(symbol)
	return q.Price, ok
}

// All returns a copy of every quote.
func (t *PriceTable) All() map[string]Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Quote, len(t.quotes))
	for k, v := range t.quotes {
		out[k] = v
	}
	return out
}
