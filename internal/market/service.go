package market

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/errors"
	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
)

// seedStocks are the native securities inserted into an empty market.
var seedStocks = []struct {
	ID         string
	Name       string
	Price      float64
	Volatility float64
	Industry   string
}{
	{"ZY", "Zenyth Cloud", 57, 0.022, "Technology"},
	{"HL", "Helix Pharma", 49, 0.025, "Pharmaceuticals"},
	{"DF", "Dawnfield Energy", 44, 0.014, "Renewables"},
	{"JM", "Junction Mark Logistics", 54, 0.020, "Transport"},
	{"RL", "Redoak Realty", 45, 0.030, "Real Estate"},
	{"TX", "Telix Software", 26, 0.045, "Software"},
}

// SubscriptionHub is a Broadcaster whose subscriber set can be managed.
type SubscriptionHub interface {
	Broadcaster
	Subscribe(ctx context.Context, target string) error
	Unsubscribe(ctx context.Context, target string) error
}

// MarketService is the market's public face: stock lookup, registration and
// delisting, the listed-company hooks that let an external economy drive a
// security's fundamentals, and broadcast subscription management.
type MarketService struct {
	registry *Registry
	store    store.Store
	hub      SubscriptionHub
	clock    *SessionClock
	cfg      ServiceConfig
	log      zerolog.Logger
}

// ServiceConfig carries the listed-company tuning knobs.
type ServiceConfig struct {
	ListedVolatility    float64
	EarningsSensitivity float64
	IntrinsicPressure   float64
	DailyLimitPercent   float64
}

// NewMarketService wires the service from its collaborators.
func NewMarketService(registry *Registry, st store.Store, hub SubscriptionHub, clock *SessionClock, cfg ServiceConfig, log zerolog.Logger) *MarketService {
	return &MarketService{
		registry: registry,
		store:    st,
		hub:      hub,
		clock:    clock,
		cfg:      cfg,
		log:      log.With().Str("component", "market_service").Logger(),
	}
}

// Registry exposes the shared stock table to collaborators such as the
// trading engine.
func (s *MarketService) Registry() *Registry { return s.registry }

// IsOpen reports whether the trading session is open.
func (s *MarketService) IsOpen() bool { return s.clock.IsOpen() }

// FindStock resolves a stock by listing position, ticker or display name.
// The returned struct identifies the security; its live market fields are
// written by the tick loop and must be read through Registry accessors.
func (s *MarketService) FindStock(identifier string) (*models.Stock, error) {
	st, ok := s.registry.Resolve(identifier)
	if !ok {
		return nil, errors.Wrapf(errors.ErrStockNotFound, "no stock matches %q", identifier)
	}
	return st, nil
}

// StockPrice returns the current price for an identifier.
func (s *MarketService) StockPrice(identifier string) (float64, error) {
	st, err := s.FindStock(identifier)
	if err != nil {
		return 0, err
	}
	price, ok := s.registry.Price(st.ID)
	if !ok {
		return 0, errors.Wrapf(errors.ErrStockNotFound, "no stock matches %q", identifier)
	}
	return price, nil
}

// MarketCap returns price × total shares. Native stocks have no share count
// and report zero.
func (s *MarketService) MarketCap(identifier string) (float64, error) {
	st, err := s.FindStock(identifier)
	if err != nil {
		return 0, err
	}
	price, _ := s.registry.Price(st.ID)
	return price * float64(st.TotalShares), nil
}

// IsTickerAvailable reports whether a ticker is free for registration.
func (s *MarketService) IsTickerAvailable(ticker string) bool {
	return !s.registry.Has(strings.ToUpper(strings.TrimSpace(ticker)))
}

// RegisterStock lists an externally-owned company on the exchange. The new
// security starts with the default listed-company volatility and a
// fundamental value equal to its issue price.
func (s *MarketService) RegisterStock(ctx context.Context, ticker, name string, price float64, totalShares int64, ownerID string) (*models.Stock, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || name == "" {
		return nil, &errors.ValidationError{Field: "ticker", Value: ticker, Message: "ticker and name are required"}
	}
	if price <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidPrice, "issue price %.2f", price)
	}
	if !s.IsTickerAvailable(ticker) {
		return nil, errors.Wrapf(errors.ErrTickerTaken, "ticker %s", ticker)
	}

	st := &models.Stock{
		ID:               ticker,
		Name:             name,
		Industry:         "Listed",
		CurrentPrice:     models.Round2(price),
		PreviousClose:    models.Round2(price),
		FundamentalValue: price,
		Volatility:       s.cfg.ListedVolatility,
		IsListedCompany:  true,
		OwnerID:          ownerID,
		TotalShares:      totalShares,
	}
	if err := s.store.AddStock(ctx, st); err != nil {
		return nil, errors.Wrap(err, "persisting new listing")
	}
	s.registry.Add(st)
	s.log.Info().Str("ticker", ticker).Float64("price", models.Round2(price)).Msg("stock listed")
	s.broadcast(st.ID, "🔔 [New Listing] "+name+" ("+ticker+") is now trading on the exchange!")
	return st, nil
}

// SeedDefaults inserts the built-in native securities when the market is
// empty, so a fresh deployment has something to trade.
func (s *MarketService) SeedDefaults(ctx context.Context) error {
	if s.registry.Len() > 0 {
		return nil
	}
	for _, seed := range seedStocks {
		st := &models.Stock{
			ID:               seed.ID,
			Name:             seed.Name,
			Industry:         seed.Industry,
			CurrentPrice:     seed.Price,
			PreviousClose:    seed.Price,
			FundamentalValue: seed.Price,
			Volatility:       seed.Volatility,
		}
		if err := s.store.AddStock(ctx, st); err != nil {
			return errors.Wrapf(err, "seeding stock %s", seed.ID)
		}
		s.registry.Add(st)
	}
	s.log.Info().Int("stocks", len(seedStocks)).Msg("seeded default securities")
	return nil
}

// DelistStock removes a security from the exchange.
func (s *MarketService) DelistStock(ctx context.Context, ticker string) error {
	st, err := s.FindStock(ticker)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStock(ctx, st.ID); err != nil {
		return errors.Wrap(err, "deleting stock")
	}
	s.registry.Remove(st.ID)
	s.log.Info().Str("ticker", st.ID).Msg("stock delisted")
	s.broadcast(st.ID, "🔔 [Delisting] "+st.Name+" ("+st.ID+") has been removed from the exchange.")
	return nil
}

// SetIntrinsicValue sets a security's fundamental value and nudges market
// pressure toward it, so a revaluation shows up in subsequent ticks rather
// than as an instant jump.
func (s *MarketService) SetIntrinsicValue(identifier string, value float64) error {
	st, err := s.FindStock(identifier)
	if err != nil {
		return err
	}
	if value <= 0 {
		return errors.Wrapf(errors.ErrInvalidPrice, "intrinsic value %.2f", value)
	}
	s.registry.Update(st.ID, func(st *models.Stock) {
		applyEffect(st, models.LevelChange{Delta: value - st.FundamentalValue})
		if st.CurrentPrice > 0 {
			gap := (value - st.CurrentPrice) / st.CurrentPrice
			st.MarketPressure += gap * s.cfg.IntrinsicPressure
		}
	})
	return nil
}

// ReportEarnings applies an earnings report to the fundamental value. The
// modifier is centered on 1.0; sensitivity dampens how much of the surprise
// passes through.
func (s *MarketService) ReportEarnings(identifier string, modifier float64) error {
	st, err := s.FindStock(identifier)
	if err != nil {
		return err
	}
	if modifier <= 0 {
		return &errors.ValidationError{Field: "modifier", Value: modifier, Message: "must be positive"}
	}
	damped := 1 + (modifier-1)*s.cfg.EarningsSensitivity
	var fundamental float64
	s.registry.Update(st.ID, func(st *models.Stock) {
		applyEffect(st, models.EarningsModifier{Modifier: damped})
		fundamental = st.FundamentalValue
	})
	s.log.Info().
		Str("ticker", st.ID).
		Float64("modifier", modifier).
		Float64("fundamental", fundamental).
		Msg("earnings reported")
	return nil
}

// ReportEvent applies an immediate percentage price shock from an external
// collaborator, clamped to the daily limit band, and broadcasts a bulletin.
func (s *MarketService) ReportEvent(identifier string, priceImpact float64, message string) error {
	st, err := s.FindStock(identifier)
	if err != nil {
		return err
	}

	limit := s.cfg.DailyLimitPercent
	if priceImpact > limit {
		priceImpact = limit
	} else if priceImpact < -limit {
		priceImpact = -limit
	}
	s.registry.Update(st.ID, func(st *models.Stock) {
		applyEffect(st, models.PriceChangePercent{Percent: priceImpact})
	})

	if message == "" {
		message = "🔔 [Company News] " + st.Name + " (" + st.ID + ") moved on company news."
	}
	s.log.Info().Str("ticker", st.ID).Float64("impact", priceImpact).Msg("external event applied")
	s.broadcast(st.ID, message)
	return nil
}

// Subscribe adds a broadcast target through the hub, which persists it.
func (s *MarketService) Subscribe(ctx context.Context, target string) error {
	if target == "" {
		return &errors.ValidationError{Field: "target", Value: target, Message: "must not be empty"}
	}
	if s.hub == nil {
		return s.store.AddSubscriber(ctx, target)
	}
	return s.hub.Subscribe(ctx, target)
}

// Unsubscribe removes a broadcast target.
func (s *MarketService) Unsubscribe(ctx context.Context, target string) error {
	if s.hub == nil {
		return s.store.RemoveSubscriber(ctx, target)
	}
	return s.hub.Unsubscribe(ctx, target)
}

func (s *MarketService) broadcast(stockID, text string) {
	if s.hub != nil {
		s.hub.Broadcast(models.Notice{StockID: stockID, Text: text})
	}
}
