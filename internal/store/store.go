// Package store provides data persistence for stocks, candles and holdings.
package store

import (
	"context"
	"time"

	"virtual-exchange/internal/models"
)

// Store defines the persistence contract consumed by the market core.
//
// BatchUpdateStockData and ExecuteFIFOSell are atomic: either every row of
// the call is applied or none is.
type Store interface {
	// Stocks
	LoadStocks(ctx context.Context) (map[string]*models.Stock, error)
	AddStock(ctx context.Context, stock *models.Stock) error
	DeleteStock(ctx context.Context, stockID string) error
	BatchUpdateStockData(ctx context.Context, updates []models.StockTickUpdate) error

	// Holdings. now is passed explicitly so lock arithmetic is testable;
	// the sell-lock window is fixed at construction.
	AddHolding(ctx context.Context, userID, stockID string, quantity int64, price float64, at time.Time) error
	SellableQuantity(ctx context.Context, userID, stockID string, now time.Time) (int64, error)
	NextUnlockTime(ctx context.Context, userID, stockID string, now time.Time) (time.Time, error)
	ExecuteFIFOSell(ctx context.Context, userID, stockID string, quantity int64, now time.Time) (float64, error)
	UserHoldings(ctx context.Context, userID string) ([]models.HoldingSummary, error)
	SellablePortfolio(ctx context.Context, userID string, now time.Time) ([]models.HoldingSummary, error)

	// Broadcast subscriptions
	LoadSubscribers(ctx context.Context) ([]string, error)
	AddSubscriber(ctx context.Context, target string) error
	RemoveSubscriber(ctx context.Context, target string) error

	// Lifecycle
	Close() error
}
