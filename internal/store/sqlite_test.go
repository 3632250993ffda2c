package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"virtual-exchange/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "exchange.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndLoadStocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Stock{
		ID:               "ZY",
		Name:             "Zenyth Cloud",
		Industry:         "Technology",
		CurrentPrice:     57,
		Volatility:       0.022,
		FundamentalValue: 57,
		IsListedCompany:  true,
		OwnerID:          "founder",
		TotalShares:      1000,
	}
	if err := s.AddStock(ctx, st); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadStocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := loaded["ZY"]
	if !ok {
		t.Fatal("stock not loaded")
	}
	if got.Name != "Zenyth Cloud" || got.Industry != "Technology" || got.CurrentPrice != 57 {
		t.Errorf("loaded = %+v", got)
	}
	if !got.IsListedCompany || got.OwnerID != "founder" || got.TotalShares != 1000 {
		t.Errorf("listing fields = %+v", got)
	}
	if got.PreviousClose != 57 {
		t.Errorf("previous close = %v, want seeded from price", got.PreviousClose)
	}
	if len(got.PriceHistory) != 1 || got.PriceHistory[0] != 57 {
		t.Errorf("price history = %v, want seeded from price", got.PriceHistory)
	}
}

func TestAddStockDuplicateTicker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Stock{ID: "ZY", Name: "Zenyth Cloud", CurrentPrice: 57, FundamentalValue: 57}
	if err := s.AddStock(ctx, st); err != nil {
		t.Fatal(err)
	}
	dup := &models.Stock{ID: "ZY", Name: "Other Corp", CurrentPrice: 10, FundamentalValue: 10}
	if err := s.AddStock(ctx, dup); err == nil {
		t.Error("duplicate ticker accepted")
	}
}

func TestBatchUpdateAndReload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Stock{ID: "ZY", Name: "Zenyth Cloud", CurrentPrice: 57, FundamentalValue: 57}
	if err := s.AddStock(ctx, st); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	var updates []models.StockTickUpdate
	price := 57.0
	for i := 0; i < 3; i++ {
		next := price + 0.5
		updates = append(updates, models.StockTickUpdate{
			StockID:        "ZY",
			CurrentPrice:   next,
			MarketPressure: 0.01 * float64(i),
			Candle: models.Candle{
				Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
				Open:      price, High: next, Low: price, Close: next,
			},
		})
		price = next
	}
	if err := s.BatchUpdateStockData(ctx, updates); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadStocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := loaded["ZY"]
	if got.CurrentPrice != 58.5 {
		t.Errorf("price = %v, want 58.5", got.CurrentPrice)
	}
	if got.MarketPressure != 0.02 {
		t.Errorf("pressure = %v, want 0.02", got.MarketPressure)
	}
	if len(got.Candles) != 3 {
		t.Fatalf("candles = %d, want 3", len(got.Candles))
	}
	// oldest first after reload
	if got.Candles[0].Open != 57 || got.Candles[2].Close != 58.5 {
		t.Errorf("candle order = %+v", got.Candles)
	}
	if len(got.PriceHistory) != 3 || got.PriceHistory[2] != 58.5 {
		t.Errorf("price history = %v", got.PriceHistory)
	}
}

func TestBatchUpdateUpsertsSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Stock{ID: "ZY", Name: "Zenyth Cloud", CurrentPrice: 57, FundamentalValue: 57}
	if err := s.AddStock(ctx, st); err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	u := models.StockTickUpdate{
		StockID:      "ZY",
		CurrentPrice: 58,
		Candle:       models.Candle{Timestamp: ts, Open: 57, High: 58, Low: 57, Close: 58},
	}
	if err := s.BatchUpdateStockData(ctx, []models.StockTickUpdate{u}); err != nil {
		t.Fatal(err)
	}
	u.CurrentPrice = 59
	u.Candle.Close = 59
	u.Candle.High = 59
	if err := s.BatchUpdateStockData(ctx, []models.StockTickUpdate{u}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadStocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := loaded["ZY"]
	if len(got.Candles) != 1 {
		t.Fatalf("candles = %d, want 1 after upsert", len(got.Candles))
	}
	if got.Candles[0].Close != 59 {
		t.Errorf("close = %v, want 59", got.Candles[0].Close)
	}
}

func TestDeleteStockKeepsHoldings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &models.Stock{ID: "ZY", Name: "Zenyth Cloud", CurrentPrice: 57, FundamentalValue: 57}
	if err := s.AddStock(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 57, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteStock(ctx, "ZY"); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadStocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := loaded["ZY"]; ok {
		t.Error("stock still present after delete")
	}
	holdings, err := s.UserHoldings(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 || holdings[0].Quantity != 10 {
		t.Errorf("holdings = %+v, want audit trail preserved", holdings)
	}
}

func TestSellLockArithmetic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	// one lot well past the lock, one bought 30 minutes ago
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 50, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "ZY", 20, 55, now.Add(-30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	sellable, err := s.SellableQuantity(ctx, "alice", "ZY", now)
	if err != nil {
		t.Fatal(err)
	}
	if sellable != 10 {
		t.Errorf("sellable = %d, want 10", sellable)
	}

	unlock, err := s.NextUnlockTime(ctx, "alice", "ZY", now)
	if err != nil {
		t.Fatal(err)
	}
	want := now.Add(-30 * time.Minute).Add(time.Hour)
	if !unlock.Equal(want) {
		t.Errorf("next unlock = %v, want %v", unlock, want)
	}

	// once everything is unlocked there is no pending lot
	later := now.Add(time.Hour)
	unlock, err = s.NextUnlockTime(ctx, "alice", "ZY", later)
	if err != nil {
		t.Fatal(err)
	}
	if !unlock.IsZero() {
		t.Errorf("next unlock = %v, want zero time", unlock)
	}
}

func TestFIFOSellPartialLot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 10, now.Add(-3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 20, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	basis, err := s.ExecuteFIFOSell(ctx, "alice", "ZY", 15, now)
	if err != nil {
		t.Fatal(err)
	}
	// 10 @ 10 + 5 @ 20
	if basis != 200 {
		t.Errorf("cost basis = %v, want 200", basis)
	}

	holdings, err := s.UserHoldings(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 || holdings[0].Quantity != 5 || holdings[0].CostBasis != 100 {
		t.Errorf("holdings = %+v, want 5 shares at basis 100", holdings)
	}
}

func TestFIFOOrderAcrossSubsecondTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// a whole-second lot followed by a fractional one in the same second:
	// trailing-zero trimming would sort the older lot after the newer one
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	first := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(500 * time.Millisecond)
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 10, first); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 20, second); err != nil {
		t.Fatal(err)
	}

	basis, err := s.ExecuteFIFOSell(ctx, "alice", "ZY", 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if basis != 100 {
		t.Errorf("cost basis = %v, want 100 from the older lot", basis)
	}
	holdings, err := s.UserHoldings(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 || holdings[0].CostBasis != 200 {
		t.Errorf("holdings = %+v, want the newer lot at basis 200 left", holdings)
	}
}

func TestFIFOSellRespectsLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 10, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 20, now.Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ExecuteFIFOSell(ctx, "alice", "ZY", 15, now); err == nil {
		t.Fatal("oversell of locked shares accepted")
	}
	// the failed sell must not consume anything
	holdings, err := s.UserHoldings(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(holdings) != 1 || holdings[0].Quantity != 20 {
		t.Errorf("holdings = %+v, want untouched 20 shares", holdings)
	}
}

func TestSellablePortfolio(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if err := s.AddHolding(ctx, "alice", "ZY", 10, 10, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "HL", 5, 40, now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddHolding(ctx, "alice", "HL", 5, 45, now.Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}

	out, err := s.SellablePortfolio(ctx, "alice", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("portfolio = %+v, want 2 stocks", out)
	}
	// ordered by stock id; locked HL lot excluded
	if out[0].StockID != "HL" || out[0].Quantity != 5 || out[0].CostBasis != 200 {
		t.Errorf("HL position = %+v", out[0])
	}
	if out[1].StockID != "ZY" || out[1].Quantity != 10 {
		t.Errorf("ZY position = %+v", out[1])
	}
}

func TestSubscriberRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddSubscriber(ctx, "channel:42"); err != nil {
		t.Fatal(err)
	}
	// duplicate registration is a no-op
	if err := s.AddSubscriber(ctx, "channel:42"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSubscriber(ctx, "channel:99"); err != nil {
		t.Fatal(err)
	}

	targets, err := s.LoadSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("targets = %v, want 2", targets)
	}

	if err := s.RemoveSubscriber(ctx, "channel:42"); err != nil {
		t.Fatal(err)
	}
	targets, err = s.LoadSubscribers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0] != "channel:99" {
		t.Errorf("targets = %v, want [channel:99]", targets)
	}
}
