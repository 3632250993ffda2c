package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/errors"
	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
)

// Broadcaster delivers market bulletins to subscribers. Delivery is
// best-effort; the engine never waits on it.
type Broadcaster interface {
	Broadcast(models.Notice)
}

// PriceTickEngine drives the market: a background goroutine that wakes on
// every 5-minute wall-clock boundary while the session is open, rolls the
// trading day when the calendar changes, advances every stock's price and
// persists the batch in one write.
type PriceTickEngine struct {
	cfg      *config.Config
	registry *Registry
	store    store.Store
	clock    *SessionClock
	macro    *MacroSimulator
	hub      Broadcaster
	log      zerolog.Logger

	scripts scriptGenerator
	waves   waveEngine
	events  eventEngine

	rng *rand.Rand
	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastDay time.Time
}

// NewPriceTickEngine wires the engine from its collaborators. The rng is
// shared across the sub-engines so a seeded source makes a run reproducible.
func NewPriceTickEngine(
	cfg *config.Config,
	registry *Registry,
	st store.Store,
	clock *SessionClock,
	macro *MacroSimulator,
	hub Broadcaster,
	rng *rand.Rand,
	log zerolog.Logger,
) *PriceTickEngine {
	return &PriceTickEngine{
		cfg:      cfg,
		registry: registry,
		store:    st,
		clock:    clock,
		macro:    macro,
		hub:      hub,
		log:      log.With().Str("component", "tick_engine").Logger(),
		scripts:  scriptGenerator{cfg: cfg.Sim, rng: rng},
		waves:    waveEngine{cfg: cfg.Waves, rng: rng},
		events:   eventEngine{cfg: cfg.Events, catalog: DefaultEvents, rng: rng},
		rng:      rng,
		now:      time.Now,
	}
}

// Start launches the tick loop. It fails if the loop is already running.
func (e *PriceTickEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.ErrEngineRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	go e.run(ctx, done)
	e.log.Info().Msg("price tick engine started")
	return nil
}

// Stop cancels the loop and waits for the current iteration to finish.
func (e *PriceTickEngine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return errors.ErrEngineStopped
	}
	cancel()
	<-done
	e.log.Info().Msg("price tick engine stopped")
	return nil
}

// run owns its done channel; Stop nils the struct fields, so the goroutine
// must never read them.
func (e *PriceTickEngine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		status, wait := e.clock.StatusAt(e.now())
		if status != models.MarketOpen {
			if !e.sleep(ctx, wait) {
				return
			}
			continue
		}

		e.Tick(e.now())

		if !e.sleep(ctx, e.untilNextBoundary(e.now())) {
			return
		}
	}
}

// sleep waits d or until cancellation; false means the loop should exit.
func (e *PriceTickEngine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// untilNextBoundary returns the wait to the next 5-minute wall boundary,
// at least one second so a slow tick cannot busy-loop.
func (e *PriceTickEngine) untilNextBoundary(now time.Time) time.Duration {
	interval := e.cfg.Sim.TickInterval
	next := now.Truncate(interval).Add(interval)
	wait := next.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Tick performs one full market update at the given instant. Exposed so
// tests can drive the engine without the scheduler.
func (e *PriceTickEngine) Tick(now time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !today.Equal(e.lastDay) {
		e.rollDay(today)
	}

	bucket := now.Truncate(e.cfg.Sim.TickInterval)
	updates := make([]models.StockTickUpdate, 0, e.registry.Len())
	var notices []models.Notice

	e.registry.Each(func(st *models.Stock) {
		update, notice, err := e.tickStock(st, bucket)
		if err != nil {
			e.log.Error().Err(err).Str("stock", st.ID).Msg("tick failed for stock")
			return
		}
		updates = append(updates, update)
		if notice != "" {
			notices = append(notices, models.Notice{StockID: st.ID, Text: notice})
		}
	})

	if len(updates) > 0 {
		if err := e.store.BatchUpdateStockData(context.Background(), updates); err != nil {
			e.log.Error().Err(err).Int("stocks", len(updates)).Msg("batch tick persist failed")
		}
	}
	for _, n := range notices {
		e.log.Info().Str("stock", n.StockID).Msg("market bulletin: " + n.Text)
		if e.hub != nil {
			e.hub.Broadcast(n)
		}
	}
}

// rollDay runs the once-per-trading-day transition: macro state, previous
// close, fundamental drift and a fresh daily script for every stock. On the
// very first day there is no close to record yet.
func (e *PriceTickEngine) rollDay(today time.Time) {
	firstDay := e.lastDay.IsZero()
	e.lastDay = today
	e.macro.AdvanceDay()
	macro := e.macro.State()
	e.log.Info().
		Str("cycle", string(macro.Cycle)).
		Str("regime", string(macro.Regime)).
		Time("day", today).
		Msg("trading day opened")

	e.registry.Each(func(st *models.Stock) {
		if !firstDay {
			st.PreviousClose = st.CurrentPrice
			st.PushDailyClose(st.CurrentPrice)
		} else if st.PreviousClose == 0 {
			st.PreviousClose = st.CurrentPrice
		}
		st.FundamentalValue *= e.uniform(e.cfg.Sim.FundamentalDriftLo, e.cfg.Sim.FundamentalDriftHi)
		st.Script = e.scripts.Generate(st, macro, today)
	})
}

// tickStock advances one stock by one tick and returns its batched update
// plus an optional bulletin. A panic in the model math is contained here so
// one corrupt stock cannot take the tick down.
func (e *PriceTickEngine) tickStock(st *models.Stock, bucket time.Time) (update models.StockTickUpdate, notice string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	script := st.Script
	if script == nil {
		return update, "", fmt.Errorf("stock %s has no daily script", st.ID)
	}

	open := st.CurrentPrice
	var candle models.Candle

	if !st.IsListedCompany {
		notice = e.events.Roll(st)
	}
	if notice != "" {
		// event ticks skip the model terms; the shock already moved the price
		close := st.CurrentPrice
		candle = models.Candle{
			Timestamp: bucket,
			Open:      open,
			High:      math.Max(open, close),
			Low:       math.Min(open, close),
			Close:     close,
		}
	} else {
		candle = e.computeTick(st, script, open, bucket)
	}

	st.PushPrice(st.CurrentPrice)
	st.PushCandle(candle)

	return models.StockTickUpdate{
		StockID:        st.ID,
		CurrentPrice:   st.CurrentPrice,
		MarketPressure: st.MarketPressure,
		Candle:         candle,
	}, notice, nil
}

// computeTick runs the full multi-factor price model for one stock.
func (e *PriceTickEngine) computeTick(st *models.Stock, script *models.DailyScript, open float64, bucket time.Time) models.Candle {
	cfg := e.cfg.Sim
	ticksPerDay := float64(cfg.TicksPerDay)

	momentum := e.waves.Advance(st, script.Bias)

	effectiveVol := script.ExpectedRangeFactor / math.Sqrt(ticksPerDay) * cfg.VolatilityScale
	trend := momentum * open * effectiveVol * e.uniform(0.8, 1.2)
	walk := open * effectiveVol * e.rng.NormFloat64() * cfg.RandomWalkStdDev

	var reversion float64
	if sma5 := st.SMA(5); sma5 > 0 {
		reversion = -(open - sma5) * cfg.ReversionStrength
	}
	anchor := (script.TargetClose - open) / ticksPerDay * cfg.AnchorStrength

	pressure := st.MarketPressure * cfg.PressureStrength
	st.MarketPressure *= cfg.PressureDecay

	calculated := open + trend + walk + reversion + anchor + pressure
	close := e.applyPriceLimits(st, open, calculated)
	st.CurrentPrice = close

	jitterBase := open * script.ExpectedRangeFactor / math.Sqrt(ticksPerDay)
	high := models.Round2(math.Max(open, close) + e.uniform(0, jitterBase*0.8))
	low := models.Round2(math.Min(open, close) - e.uniform(0, jitterBase*0.8))
	if low < 0.01 {
		low = 0.01
	}

	return models.Candle{Timestamp: bucket, Open: open, High: high, Low: low, Close: close}
}

// applyPriceLimits clamps a proposed price against the sliding-window band
// and then the whole-day band, taking the intersection, then floors and
// rounds to cents.
func (e *PriceTickEngine) applyPriceLimits(st *models.Stock, open, price float64) float64 {
	limitTicks := int(e.cfg.Limits.WindowHours * float64(time.Hour) / float64(e.cfg.Sim.TickInterval))

	windowRef := open
	switch {
	case len(st.PriceHistory) >= limitTicks && limitTicks > 0:
		windowRef = st.PriceHistory[len(st.PriceHistory)-limitTicks]
	case len(st.PriceHistory) > 0:
		windowRef = st.PriceHistory[0]
	case st.PreviousClose > 0:
		windowRef = st.PreviousClose
	}
	if windowRef > 0 {
		price = clamp(price,
			windowRef*(1-e.cfg.Limits.WindowPercent),
			windowRef*(1+e.cfg.Limits.WindowPercent))
	}

	dailyRef := st.PreviousClose
	if dailyRef <= 0 {
		dailyRef = open
	}
	if dailyRef > 0 {
		price = clamp(price,
			dailyRef*(1-e.cfg.Limits.DailyPercent),
			dailyRef*(1+e.cfg.Limits.DailyPercent))
	}

	return models.Round2(math.Max(0.01, price))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *PriceTickEngine) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}
