// Package trading implements the FIFO-lot trading ledger: buys, sells and
// their cash, fee, slippage and market-pressure effects.
package trading

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/errors"
	"virtual-exchange/internal/market"
	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
)

// Wallet is the cash ledger trades settle against. Debit fails with
// InsufficientFundsError when the balance is short; both mutations are
// atomic per call.
type Wallet interface {
	Balance(ctx context.Context, userID string) (float64, error)
	Debit(ctx context.Context, userID string, amount float64, memo string) error
	Credit(ctx context.Context, userID string, amount float64, memo string) error
}

// Side distinguishes the two trade directions on a receipt.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Receipt is the settled record of one executed trade.
type Receipt struct {
	ID        string
	UserID    string
	StockID   string
	StockName string
	Side      Side
	Quantity  int64

	// MarketPrice is the quote at submission; ExecPrice includes slippage.
	MarketPrice float64
	ExecPrice   float64
	Slippage    float64

	Gross float64
	Fee   float64
	Net   float64

	// Sell only: cost basis consumed and realized gain against it.
	CostBasis   float64
	RealizedPnL float64

	ExecutedAt time.Time
}

// lockStripes bounds the per-(user,stock) mutex table.
const lockStripes = 64

// LedgerEngine executes trades against the live market. Concurrent orders
// for the same (user, stock) pair serialize on a striped mutex so lot reads
// and writes cannot interleave.
type LedgerEngine struct {
	market *market.MarketService
	store  store.Store
	wallet Wallet
	cfg    config.TradingConfig
	log    zerolog.Logger

	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

// NewLedgerEngine wires the ledger from its collaborators.
func NewLedgerEngine(m *market.MarketService, st store.Store, w Wallet, cfg config.TradingConfig, log zerolog.Logger) *LedgerEngine {
	return &LedgerEngine{
		market: m,
		store:  st,
		wallet: w,
		cfg:    cfg,
		log:    log.With().Str("component", "ledger").Logger(),
	}
}

func (l *LedgerEngine) lock(userID, stockID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(stockID))
	return &l.locks[h.Sum32()%lockStripes]
}

func (l *LedgerEngine) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Buy purchases qty shares at the current market price. The lot is locked
// for the configured window before it becomes sellable.
func (l *LedgerEngine) Buy(ctx context.Context, userID, identifier string, qty int64) (*Receipt, error) {
	if qty <= 0 {
		return nil, &errors.ValidationError{Field: "quantity", Value: qty, Message: "must be a positive integer"}
	}
	if !l.market.IsOpen() {
		return nil, errors.ErrMarketClosed
	}
	st, err := l.market.FindStock(identifier)
	if err != nil {
		return nil, err
	}

	mu := l.lock(userID, st.ID)
	mu.Lock()
	defer mu.Unlock()

	price, ok := l.market.Registry().Price(st.ID)
	if !ok {
		return nil, errors.Wrapf(errors.ErrStockNotFound, "no stock matches %q", identifier)
	}
	cost := models.Round2(price * float64(qty))

	if err := l.wallet.Debit(ctx, userID, cost, "buy "+st.ID); err != nil {
		return nil, err
	}
	now := l.clock()
	if err := l.store.AddHolding(ctx, userID, st.ID, qty, price, now); err != nil {
		// undo the debit so a storage fault leaves no state change
		if refundErr := l.wallet.Credit(ctx, userID, cost, "refund buy "+st.ID); refundErr != nil {
			l.log.Error().Err(refundErr).Str("user", userID).Float64("amount", cost).Msg("refund after failed buy also failed")
		}
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}

	l.market.Registry().AdjustPressure(st.ID, math.Pow(cost, l.cfg.BuyPressureExp)*l.cfg.PressureFactor)

	r := &Receipt{
		ID:          uuid.NewString(),
		UserID:      userID,
		StockID:     st.ID,
		StockName:   st.Name,
		Side:        SideBuy,
		Quantity:    qty,
		MarketPrice: price,
		ExecPrice:   price,
		Gross:       cost,
		Net:         cost,
		ExecutedAt:  now,
	}
	l.log.Info().
		Str("user", userID).
		Str("stock", st.ID).
		Int64("qty", qty).
		Float64("cost", cost).
		Msg("buy executed")
	return r, nil
}

// Sell sells qty shares from the user's unlocked lots, oldest first. Larger
// orders execute at a worse price via the slippage discount; the fee comes
// out of gross proceeds.
func (l *LedgerEngine) Sell(ctx context.Context, userID, identifier string, qty int64) (*Receipt, error) {
	if qty <= 0 {
		return nil, &errors.ValidationError{Field: "quantity", Value: qty, Message: "must be a positive integer"}
	}
	if !l.market.IsOpen() {
		return nil, errors.ErrMarketClosed
	}
	st, err := l.market.FindStock(identifier)
	if err != nil {
		return nil, err
	}

	mu := l.lock(userID, st.ID)
	mu.Lock()
	defer mu.Unlock()

	now := l.clock()
	sellable, err := l.store.SellableQuantity(ctx, userID, st.ID, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}
	if sellable < qty {
		unlock, _ := l.store.NextUnlockTime(ctx, userID, st.ID, now)
		return nil, &errors.InsufficientSharesError{Requested: qty, Sellable: sellable, NextUnlock: unlock}
	}

	price, ok := l.market.Registry().Price(st.ID)
	if !ok {
		return nil, errors.Wrapf(errors.ErrStockNotFound, "no stock matches %q", identifier)
	}
	slippage := math.Min(float64(qty)*l.cfg.SlippageFactor, l.cfg.MaxSlippage)
	execPrice := price * (1 - slippage)
	gross := models.Round2(execPrice * float64(qty))
	fee := models.Round2(gross * l.cfg.FeeRate)
	net := models.Round2(gross - fee)

	costBasis, err := l.store.ExecuteFIFOSell(ctx, userID, st.ID, qty, now)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}
	if err := l.wallet.Credit(ctx, userID, net, "sell "+st.ID); err != nil {
		// restore the position as an already-unlocked lot at its average cost
		avg := costBasis / float64(qty)
		if undoErr := l.store.AddHolding(ctx, userID, st.ID, qty, avg, now.Add(-l.cfg.SellLock)); undoErr != nil {
			l.log.Error().Err(undoErr).Str("user", userID).Str("stock", st.ID).Msg("restoring lots after failed credit also failed")
		}
		return nil, errors.Wrap(err, "crediting sale proceeds")
	}

	l.market.Registry().AdjustPressure(st.ID, -math.Pow(gross, l.cfg.SellPressureExp)*l.cfg.PressureFactor)

	r := &Receipt{
		ID:          uuid.NewString(),
		UserID:      userID,
		StockID:     st.ID,
		StockName:   st.Name,
		Side:        SideSell,
		Quantity:    qty,
		MarketPrice: price,
		ExecPrice:   execPrice,
		Slippage:    slippage,
		Gross:       gross,
		Fee:         fee,
		Net:         net,
		CostBasis:   costBasis,
		RealizedPnL: models.Round2(gross - costBasis),
		ExecutedAt:  now,
	}
	l.log.Info().
		Str("user", userID).
		Str("stock", st.ID).
		Int64("qty", qty).
		Float64("net", net).
		Float64("pnl", r.RealizedPnL).
		Msg("sell executed")
	return r, nil
}

// BuyAllIn spends the user's entire balance on the given stock.
func (l *LedgerEngine) BuyAllIn(ctx context.Context, userID, identifier string) (*Receipt, error) {
	st, err := l.market.FindStock(identifier)
	if err != nil {
		return nil, err
	}
	balance, err := l.wallet.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	price, ok := l.market.Registry().Price(st.ID)
	if !ok || price <= 0 {
		return nil, errors.ErrInvalidPrice
	}
	qty := int64(balance / price)
	if qty < 1 {
		return nil, &errors.InsufficientFundsError{Need: price, Have: balance}
	}
	return l.Buy(ctx, userID, st.ID, qty)
}

// SellAllForStock sells every currently unlocked share of one stock.
func (l *LedgerEngine) SellAllForStock(ctx context.Context, userID, identifier string) (*Receipt, error) {
	st, err := l.market.FindStock(identifier)
	if err != nil {
		return nil, err
	}
	sellable, err := l.store.SellableQuantity(ctx, userID, st.ID, l.clock())
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}
	if sellable == 0 {
		return nil, errors.ErrNothingToSell
	}
	return l.Sell(ctx, userID, st.ID, sellable)
}

// SellAllPortfolio liquidates every unlocked position the user holds.
// Per-stock failures are logged and skipped; it fails only when nothing at
// all could be sold.
func (l *LedgerEngine) SellAllPortfolio(ctx context.Context, userID string) ([]*Receipt, error) {
	positions, err := l.store.SellablePortfolio(ctx, userID, l.clock())
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}

	var receipts []*Receipt
	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}
		r, err := l.Sell(ctx, userID, pos.StockID, pos.Quantity)
		if err != nil {
			l.log.Warn().Err(err).Str("user", userID).Str("stock", pos.StockID).Msg("skipping position in portfolio liquidation")
			continue
		}
		receipts = append(receipts, r)
	}
	if len(receipts) == 0 {
		return nil, errors.ErrNothingToSell
	}
	return receipts, nil
}

// Portfolio returns the user's aggregated holdings with current market
// values and unrealized P&L.
func (l *LedgerEngine) Portfolio(ctx context.Context, userID string) ([]Position, error) {
	holdings, err := l.store.UserHoldings(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreFailure, err.Error())
	}
	positions := make([]Position, 0, len(holdings))
	for _, h := range holdings {
		pos := Position{
			StockID:   h.StockID,
			Quantity:  h.Quantity,
			CostBasis: h.CostBasis,
		}
		if st, err := l.market.FindStock(h.StockID); err == nil {
			pos.StockName = st.Name
			price, _ := l.market.Registry().Price(st.ID)
			pos.MarketValue = models.Round2(price * float64(h.Quantity))
			pos.UnrealizedPnL = models.Round2(pos.MarketValue - h.CostBasis)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// Position is one aggregated holding valued at the current price.
type Position struct {
	StockID       string
	StockName     string
	Quantity      int64
	CostBasis     float64
	MarketValue   float64
	UnrealizedPnL float64
}
