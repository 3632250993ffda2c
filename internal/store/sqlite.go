package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"virtual-exchange/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	sellLock time.Duration
}

// NewSQLiteStore opens (or creates) the database at dbPath. sellLock is the
// minimum age a holding lot must reach before it becomes sellable.
func NewSQLiteStore(dbPath string, sellLock time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, sellLock: sellLock}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stocks (
		stock_id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		industry TEXT NOT NULL DEFAULT 'GENERAL',
		current_price REAL NOT NULL,
		volatility REAL NOT NULL DEFAULT 0.05,
		fundamental_value REAL NOT NULL,
		market_pressure REAL NOT NULL DEFAULT 0,
		is_listed_company INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL DEFAULT '',
		total_shares INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS candles (
		stock_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (stock_id, timestamp),
		FOREIGN KEY (stock_id) REFERENCES stocks(stock_id) ON DELETE CASCADE
	);

	-- purchase_timestamp is fixed-width UTC text: lexicographic order is
	-- chronological order, which the FIFO queries rely on.
	CREATE TABLE IF NOT EXISTS holdings (
		holding_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		stock_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		purchase_price REAL NOT NULL,
		purchase_timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_holdings_user_stock ON holdings (user_id, stock_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		target TEXT PRIMARY KEY
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadStocks loads every stock with its recent candle history.
func (s *SQLiteStore) LoadStocks(ctx context.Context) (map[string]*models.Stock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stock_id, name, industry, current_price, volatility,
		       fundamental_value, market_pressure, is_listed_company,
		       owner_id, total_shares
		FROM stocks`)
	if err != nil {
		return nil, fmt.Errorf("loading stocks: %w", err)
	}
	defer rows.Close()

	stocks := make(map[string]*models.Stock)
	for rows.Next() {
		st := &models.Stock{}
		var listed int
		if err := rows.Scan(&st.ID, &st.Name, &st.Industry, &st.CurrentPrice,
			&st.Volatility, &st.FundamentalValue, &st.MarketPressure,
			&listed, &st.OwnerID, &st.TotalShares); err != nil {
			return nil, fmt.Errorf("scanning stock: %w", err)
		}
		st.IsListedCompany = listed != 0
		st.PreviousClose = st.CurrentPrice
		if st.FundamentalValue <= 0 {
			st.FundamentalValue = st.CurrentPrice
		}
		stocks[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, st := range stocks {
		if err := s.loadCandles(ctx, st); err != nil {
			return nil, err
		}
	}
	return stocks, nil
}

func (s *SQLiteStore) loadCandles(ctx context.Context, st *models.Stock) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close
		FROM candles WHERE stock_id = ?
		ORDER BY timestamp DESC LIMIT ?`,
		st.ID, models.CandleHistoryCap)
	if err != nil {
		return fmt.Errorf("loading candles for %s: %w", st.ID, err)
	}
	defer rows.Close()

	var recent []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return fmt.Errorf("scanning candle for %s: %w", st.ID, err)
		}
		recent = append(recent, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := len(recent) - 1; i >= 0; i-- {
		st.PushCandle(recent[i])
		st.PushPrice(recent[i].Close)
	}

	if len(st.PriceHistory) == 0 {
		st.PushPrice(st.CurrentPrice)
	}
	// Seed the daily-close window from what history we have.
	start := 0
	if len(st.PriceHistory) > models.DailyCloseCap {
		start = len(st.PriceHistory) - models.DailyCloseCap
	}
	for _, p := range st.PriceHistory[start:] {
		st.PushDailyClose(p)
	}
	return nil
}

// AddStock inserts a new stock row.
func (s *SQLiteStore) AddStock(ctx context.Context, stock *models.Stock) error {
	listed := 0
	if stock.IsListedCompany {
		listed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (stock_id, name, industry, current_price, volatility,
		                    fundamental_value, market_pressure, is_listed_company,
		                    owner_id, total_shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stock.ID, stock.Name, stock.Industry, stock.CurrentPrice, stock.Volatility,
		stock.FundamentalValue, stock.MarketPressure, listed,
		stock.OwnerID, stock.TotalShares)
	if err != nil {
		return fmt.Errorf("inserting stock %s: %w", stock.ID, err)
	}
	return nil
}

// DeleteStock removes a stock and its candle history. Holdings are left in
// place so a delisting cannot destroy a user's audit trail.
func (s *SQLiteStore) DeleteStock(ctx context.Context, stockID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candles WHERE stock_id = ?`, stockID); err != nil {
		return fmt.Errorf("deleting candles for %s: %w", stockID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stocks WHERE stock_id = ?`, stockID); err != nil {
		return fmt.Errorf("deleting stock %s: %w", stockID, err)
	}
	return tx.Commit()
}

// BatchUpdateStockData applies one tick's worth of per-stock updates in a
// single transaction.
func (s *SQLiteStore) BatchUpdateStockData(ctx context.Context, updates []models.StockTickUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `
			UPDATE stocks SET current_price = ?, market_pressure = ?
			WHERE stock_id = ?`,
			u.CurrentPrice, u.MarketPressure, u.StockID); err != nil {
			return fmt.Errorf("updating stock %s: %w", u.StockID, err)
		}
		c := u.Candle
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO candles (stock_id, timestamp, open, high, low, close)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(stock_id, timestamp) DO UPDATE SET
				open = excluded.open, high = excluded.high,
				low = excluded.low, close = excluded.close`,
			u.StockID, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close); err != nil {
			return fmt.Errorf("inserting candle for %s: %w", u.StockID, err)
		}
	}
	return tx.Commit()
}

// AddHolding inserts a new purchase lot.
func (s *SQLiteStore) AddHolding(ctx context.Context, userID, stockID string, quantity int64, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings (user_id, stock_id, quantity, purchase_price, purchase_timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		userID, stockID, quantity, price, timeKey(at))
	if err != nil {
		return fmt.Errorf("inserting holding: %w", err)
	}
	return nil
}

// timeKeyLayout is fixed-width: RFC3339Nano trims trailing zeros, which
// would sort a whole-second timestamp after fractional ones in the same
// second and break the lexicographic FIFO ordering.
const timeKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeKey(t time.Time) string {
	return t.UTC().Format(timeKeyLayout)
}

// SellableQuantity sums the quantity of lots old enough to have cleared the
// sell-lock window.
func (s *SQLiteStore) SellableQuantity(ctx context.Context, userID, stockID string, now time.Time) (int64, error) {
	cutoff := timeKey(now.Add(-s.sellLock))
	var qty sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(quantity) FROM holdings
		WHERE user_id = ? AND stock_id = ? AND purchase_timestamp <= ?`,
		userID, stockID, cutoff).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("querying sellable quantity: %w", err)
	}
	return qty.Int64, nil
}

// NextUnlockTime returns when the oldest still-locked lot unlocks, or the
// zero time if no lot is locked.
func (s *SQLiteStore) NextUnlockTime(ctx context.Context, userID, stockID string, now time.Time) (time.Time, error) {
	cutoff := timeKey(now.Add(-s.sellLock))
	var earliest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(purchase_timestamp) FROM holdings
		WHERE user_id = ? AND stock_id = ? AND purchase_timestamp > ?`,
		userID, stockID, cutoff).Scan(&earliest)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying next unlock: %w", err)
	}
	if !earliest.Valid {
		return time.Time{}, nil
	}
	purchased, err := time.Parse(timeKeyLayout, earliest.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing purchase timestamp %q: %w", earliest.String, err)
	}
	return purchased.Add(s.sellLock), nil
}

// ExecuteFIFOSell consumes unlocked lots oldest-first until quantity shares
// are sold, returning the cost basis of the consumed shares. A partially
// consumed lot keeps its original price and timestamp. The whole sell runs
// in one transaction; selling more than is unlocked fails without change.
func (s *SQLiteStore) ExecuteFIFOSell(ctx context.Context, userID, stockID string, quantity int64, now time.Time) (float64, error) {
	cutoff := timeKey(now.Add(-s.sellLock))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT holding_id, quantity, purchase_price FROM holdings
		WHERE user_id = ? AND stock_id = ? AND purchase_timestamp <= ?
		ORDER BY purchase_timestamp ASC, holding_id ASC`,
		userID, stockID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("querying sellable lots: %w", err)
	}

	type lot struct {
		id    int64
		qty   int64
		price float64
	}
	var lots []lot
	for rows.Next() {
		var l lot
		if err := rows.Scan(&l.id, &l.qty, &l.price); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning lot: %w", err)
		}
		lots = append(lots, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var costBasis float64
	remaining := quantity
	for _, l := range lots {
		if remaining <= 0 {
			break
		}
		take := l.qty
		if take > remaining {
			take = remaining
		}
		costBasis += float64(take) * l.price

		if take == l.qty {
			_, err = tx.ExecContext(ctx, `DELETE FROM holdings WHERE holding_id = ?`, l.id)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE holdings SET quantity = ? WHERE holding_id = ?`, l.qty-take, l.id)
		}
		if err != nil {
			return 0, fmt.Errorf("consuming lot %d: %w", l.id, err)
		}
		remaining -= take
	}
	if remaining > 0 {
		return 0, fmt.Errorf("fifo sell: only %d of %d shares unlocked", quantity-remaining, quantity)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return costBasis, nil
}

// UserHoldings aggregates a user's lots per stock.
func (s *SQLiteStore) UserHoldings(ctx context.Context, userID string) ([]models.HoldingSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stock_id, SUM(quantity), SUM(quantity * purchase_price)
		FROM holdings WHERE user_id = ?
		GROUP BY stock_id ORDER BY stock_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying holdings: %w", err)
	}
	defer rows.Close()

	var out []models.HoldingSummary
	for rows.Next() {
		var h models.HoldingSummary
		if err := rows.Scan(&h.StockID, &h.Quantity, &h.CostBasis); err != nil {
			return nil, fmt.Errorf("scanning holding summary: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SellablePortfolio aggregates a user's unlocked quantity per stock.
func (s *SQLiteStore) SellablePortfolio(ctx context.Context, userID string, now time.Time) ([]models.HoldingSummary, error) {
	cutoff := timeKey(now.Add(-s.sellLock))
	rows, err := s.db.QueryContext(ctx, `
		SELECT stock_id, SUM(quantity), SUM(quantity * purchase_price)
		FROM holdings WHERE user_id = ? AND purchase_timestamp <= ?
		GROUP BY stock_id ORDER BY stock_id`,
		userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying sellable portfolio: %w", err)
	}
	defer rows.Close()

	var out []models.HoldingSummary
	for rows.Next() {
		var h models.HoldingSummary
		if err := rows.Scan(&h.StockID, &h.Quantity, &h.CostBasis); err != nil {
			return nil, fmt.Errorf("scanning sellable summary: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LoadSubscribers returns all broadcast subscription targets.
func (s *SQLiteStore) LoadSubscribers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target FROM subscriptions`)
	if err != nil {
		return nil, fmt.Errorf("loading subscribers: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// AddSubscriber registers a broadcast target.
func (s *SQLiteStore) AddSubscriber(ctx context.Context, target string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (target) VALUES (?)
		ON CONFLICT(target) DO NOTHING`, target)
	return err
}

// RemoveSubscriber drops a broadcast target.
func (s *SQLiteStore) RemoveSubscriber(ctx context.Context, target string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE target = ?`, target)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
