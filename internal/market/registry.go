package market

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"virtual-exchange/internal/models"
)

// Registry is the shared in-memory stock table. The tick engine mutates
// prices under the write lock; trading and query paths read under the read
// lock and adjust pressure through AdjustPressure.
type Registry struct {
	mu     sync.RWMutex
	stocks map[string]*models.Stock
}

// NewRegistry creates a registry pre-populated with the given stocks.
func NewRegistry(stocks map[string]*models.Stock) *Registry {
	if stocks == nil {
		stocks = make(map[string]*models.Stock)
	}
	return &Registry{stocks: stocks}
}

// Add inserts a stock, replacing any existing entry with the same ID.
func (r *Registry) Add(st *models.Stock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks[st.ID] = st
}

// Remove deletes a stock and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stocks[id]
	delete(r.stocks, id)
	return ok
}

// Get returns the stock with the given ID.
func (r *Registry) Get(id string) (*models.Stock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stocks[id]
	return st, ok
}

// Has reports whether a stock with the given ID exists.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of listed stocks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stocks)
}

// IDs returns all stock IDs sorted lexically. The same ordering backs the
// numeric resolution in Resolve, so position N in a listing is stable
// between calls as long as the set of stocks does not change.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stocks))
	for id := range r.stocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve looks a stock up by 1-based listing position, ticker symbol or
// exact display name.
func (r *Registry) Resolve(identifier string) (*models.Stock, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, false
	}

	if n, err := strconv.Atoi(identifier); err == nil {
		ids := r.IDs()
		if n < 1 || n > len(ids) {
			return nil, false
		}
		return r.Get(ids[n-1])
	}

	if st, ok := r.Get(strings.ToUpper(identifier)); ok {
		return st, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.stocks {
		if st.Name == identifier {
			return st, true
		}
	}
	return nil, false
}

// Price returns a stock's current price. The tick loop writes prices under
// the write lock, so this is the quote path for trading and query callers.
func (r *Registry) Price(id string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stocks[id]
	if !ok {
		return 0, false
	}
	return st.CurrentPrice, true
}

// Update runs fn on one stock under the write lock, excluding the tick loop.
// It reports whether the stock exists.
func (r *Registry) Update(id string, fn func(*models.Stock)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stocks[id]
	if ok {
		fn(st)
	}
	return ok
}

// AdjustPressure adds delta to a stock's market pressure. Lost updates under
// extreme contention are acceptable for this signal; the write lock keeps
// the read-modify-write itself consistent.
func (r *Registry) AdjustPressure(id string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stocks[id]; ok {
		st.MarketPressure += delta
	}
}

// Each runs fn for every stock under the write lock, in sorted ID order.
// The tick engine uses it so no reader observes a stock mid-computation.
func (r *Registry) Each(fn func(*models.Stock)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.stocks))
	for id := range r.stocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fn(r.stocks[id])
	}
}
