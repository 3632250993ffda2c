package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"virtual-exchange/internal/models"
)

// MemoryStore implements Store in memory. It backs tests and ephemeral
// markets that do not need to survive a restart.
type MemoryStore struct {
	mu          sync.Mutex
	sellLock    time.Duration
	stocks      map[string]*models.Stock
	lots        []*models.HoldingLot
	nextLotID   int64
	subscribers map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(sellLock time.Duration) *MemoryStore {
	return &MemoryStore{
		sellLock:    sellLock,
		stocks:      make(map[string]*models.Stock),
		nextLotID:   1,
		subscribers: make(map[string]struct{}),
	}
}

// LoadStocks returns copies of the stored stocks.
func (m *MemoryStore) LoadStocks(ctx context.Context) (map[string]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.Stock, len(m.stocks))
	for id, st := range m.stocks {
		cp := *st
		out[id] = &cp
	}
	return out, nil
}

// AddStock stores a copy of the stock.
func (m *MemoryStore) AddStock(ctx context.Context, stock *models.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stocks[stock.ID]; exists {
		return fmt.Errorf("stock %s already exists", stock.ID)
	}
	cp := *stock
	m.stocks[stock.ID] = &cp
	return nil
}

// DeleteStock removes a stock.
func (m *MemoryStore) DeleteStock(ctx context.Context, stockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stocks, stockID)
	return nil
}

// BatchUpdateStockData applies one tick's updates.
func (m *MemoryStore) BatchUpdateStockData(ctx context.Context, updates []models.StockTickUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if st, ok := m.stocks[u.StockID]; ok {
			st.CurrentPrice = u.CurrentPrice
			st.MarketPressure = u.MarketPressure
			st.PushCandle(u.Candle)
		}
	}
	return nil
}

// AddHolding records a purchase lot.
func (m *MemoryStore) AddHolding(ctx context.Context, userID, stockID string, quantity int64, price float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lots = append(m.lots, &models.HoldingLot{
		ID:          m.nextLotID,
		UserID:      userID,
		StockID:     stockID,
		Quantity:    quantity,
		Price:       price,
		PurchasedAt: at,
	})
	m.nextLotID++
	return nil
}

func (m *MemoryStore) unlockedLots(userID, stockID string, now time.Time) []*models.HoldingLot {
	cutoff := now.Add(-m.sellLock)
	var out []*models.HoldingLot
	for _, l := range m.lots {
		if l.UserID == userID && l.StockID == stockID && !l.PurchasedAt.After(cutoff) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PurchasedAt.Before(out[j].PurchasedAt)
	})
	return out
}

// SellableQuantity sums unlocked lot quantities.
func (m *MemoryStore) SellableQuantity(ctx context.Context, userID, stockID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, l := range m.unlockedLots(userID, stockID, now) {
		total += l.Quantity
	}
	return total, nil
}

// NextUnlockTime returns when the oldest locked lot unlocks.
func (m *MemoryStore) NextUnlockTime(ctx context.Context, userID, stockID string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.sellLock)
	var earliest time.Time
	for _, l := range m.lots {
		if l.UserID != userID || l.StockID != stockID || !l.PurchasedAt.After(cutoff) {
			continue
		}
		if earliest.IsZero() || l.PurchasedAt.Before(earliest) {
			earliest = l.PurchasedAt
		}
	}
	if earliest.IsZero() {
		return time.Time{}, nil
	}
	return earliest.Add(m.sellLock), nil
}

// ExecuteFIFOSell consumes unlocked lots oldest-first.
func (m *MemoryStore) ExecuteFIFOSell(ctx context.Context, userID, stockID string, quantity int64, now time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lots := m.unlockedLots(userID, stockID, now)
	var available int64
	for _, l := range lots {
		available += l.Quantity
	}
	if available < quantity {
		return 0, fmt.Errorf("fifo sell: only %d of %d shares unlocked", available, quantity)
	}

	var costBasis float64
	remaining := quantity
	consumed := make(map[int64]bool)
	for _, l := range lots {
		if remaining <= 0 {
			break
		}
		take := l.Quantity
		if take > remaining {
			take = remaining
		}
		costBasis += float64(take) * l.Price
		l.Quantity -= take
		if l.Quantity == 0 {
			consumed[l.ID] = true
		}
		remaining -= take
	}

	if len(consumed) > 0 {
		kept := m.lots[:0]
		for _, l := range m.lots {
			if !consumed[l.ID] {
				kept = append(kept, l)
			}
		}
		m.lots = kept
	}
	return costBasis, nil
}

// UserHoldings aggregates lots per stock.
func (m *MemoryStore) UserHoldings(ctx context.Context, userID string) ([]models.HoldingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregate(userID, func(*models.HoldingLot) bool { return true }), nil
}

// SellablePortfolio aggregates unlocked lots per stock.
func (m *MemoryStore) SellablePortfolio(ctx context.Context, userID string, now time.Time) ([]models.HoldingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.sellLock)
	return m.aggregate(userID, func(l *models.HoldingLot) bool {
		return !l.PurchasedAt.After(cutoff)
	}), nil
}

func (m *MemoryStore) aggregate(userID string, keep func(*models.HoldingLot) bool) []models.HoldingSummary {
	byStock := make(map[string]*models.HoldingSummary)
	for _, l := range m.lots {
		if l.UserID != userID || !keep(l) {
			continue
		}
		h, ok := byStock[l.StockID]
		if !ok {
			h = &models.HoldingSummary{StockID: l.StockID}
			byStock[l.StockID] = h
		}
		h.Quantity += l.Quantity
		h.CostBasis += float64(l.Quantity) * l.Price
	}
	ids := make([]string, 0, len(byStock))
	for id := range byStock {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.HoldingSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byStock[id])
	}
	return out
}

// Lots returns a snapshot of all lots, oldest first. Test helper.
func (m *MemoryStore) Lots(userID, stockID string) []models.HoldingLot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HoldingLot
	for _, l := range m.lots {
		if l.UserID == userID && l.StockID == stockID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadSubscribers returns the subscriber set.
func (m *MemoryStore) LoadSubscribers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribers))
	for t := range m.subscribers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// AddSubscriber registers a broadcast target.
func (m *MemoryStore) AddSubscriber(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[target] = struct{}{}
	return nil
}

// RemoveSubscriber drops a broadcast target.
func (m *MemoryStore) RemoveSubscriber(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, target)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
