package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"virtual-exchange/internal/market"
	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
	"virtual-exchange/internal/stream"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the market daemon",
		Long: `Starts the price tick engine and runs until interrupted.

The daemon loads the persisted market, seeds the default securities on
first launch, advances prices every five minutes while the session is
open and broadcasts market bulletins to subscribers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(app)
		},
	}
}

func runDaemon(app *App) error {
	log := app.Logger
	cfg := app.Config

	st, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Trading.SellLock)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	stocks, err := st.LoadStocks(ctx)
	if err != nil {
		return fmt.Errorf("loading stocks: %w", err)
	}
	registry := market.NewRegistry(stocks)

	// bulletins land in the daemon log; chat/webhook delivery plugs in here
	hub := stream.NewHub(func(target string, n models.Notice) error {
		log.Info().Str("target", target).Str("stock", n.StockID).Msg(n.Text)
		return nil
	}, st, log)
	if err := hub.Load(ctx); err != nil {
		return fmt.Errorf("loading subscribers: %w", err)
	}

	clock := market.NewSessionClock(cfg.Session)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	macro := market.NewMacroSimulator(cfg.Macro, rng, log)

	service := market.NewMarketService(registry, st, hub, clock, market.ServiceConfig{
		ListedVolatility:    cfg.Trading.ListedVolatility,
		EarningsSensitivity: cfg.Trading.EarningsSensitivity,
		IntrinsicPressure:   cfg.Trading.IntrinsicPressure,
		DailyLimitPercent:   cfg.Limits.DailyPercent,
	}, log)
	if err := service.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seeding market: %w", err)
	}

	engine := market.NewPriceTickEngine(cfg, registry, st, clock, macro, hub, rng, log)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting tick engine: %w", err)
	}

	log.Info().Int("stocks", registry.Len()).Msg("exchange daemon running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	if err := engine.Stop(); err != nil {
		log.Warn().Err(err).Msg("stopping tick engine")
	}
	return nil
}
