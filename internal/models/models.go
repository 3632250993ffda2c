// Package models provides domain models for the virtual exchange.
package models

import (
	"math"
	"time"
)

// MarketStatus represents the current market session state.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "OPEN"
	MarketClosed MarketStatus = "CLOSED"
)

// MarketCycle represents the process-wide macro market cycle.
type MarketCycle string

const (
	CycleBull    MarketCycle = "BULL"
	CycleBear    MarketCycle = "BEAR"
	CycleNeutral MarketCycle = "NEUTRAL"
)

// VolatilityRegime represents the macro volatility regime.
type VolatilityRegime string

const (
	VolatilityLow  VolatilityRegime = "LOW"
	VolatilityHigh VolatilityRegime = "HIGH"
)

// DailyBias represents the directional bias of a stock's daily script.
type DailyBias string

const (
	BiasUp       DailyBias = "UP"
	BiasSideways DailyBias = "SIDEWAYS"
	BiasDown     DailyBias = "DOWN"
)

// Candle represents OHLC data for one tick or an aggregated period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// DailyScript is a stock's plan for one trading day. It is generated once at
// the first tick of each calendar day and read-only afterwards.
type DailyScript struct {
	Date                time.Time
	Bias                DailyBias
	ExpectedRangeFactor float64
	TargetClose         float64
}

// MacroState holds the process-wide daily market state machine.
type MacroState struct {
	Cycle            MarketCycle
	Regime           VolatilityRegime
	DaysInCycle      int
	DaysInRegime     int
	MinCycleDays     int
	MinRegimeDays    int
}

// MomentumWave is a time-bounded, bell-shaped intraday directional push.
// TargetPeak carries the direction sign; the instantaneous contribution is
// TargetPeak * sin(pi * CurrentTick / DurationTicks).
type MomentumWave struct {
	TargetPeak    float64
	DurationTicks int
	CurrentTick   int
}

// Active reports whether a wave is in progress.
func (w *MomentumWave) Active() bool {
	return w.DurationTicks > 0
}

// Contribution returns the wave's value at its current tick, zero when idle.
func (w *MomentumWave) Contribution() float64 {
	if w.DurationTicks == 0 {
		return 0
	}
	progress := float64(w.CurrentTick) / float64(w.DurationTicks)
	return w.TargetPeak * math.Sin(progress*math.Pi)
}

// Clear resets the wave to idle.
func (w *MomentumWave) Clear() {
	w.TargetPeak = 0
	w.DurationTicks = 0
	w.CurrentTick = 0
}

// History buffer capacities. Price history covers the sliding price-limit
// window; candle history covers roughly a month of 5-minute ticks.
const (
	PriceHistoryCap  = 60
	DailyCloseCap    = 20
	CandleHistoryCap = 9000
)

// Stock is the in-memory state of one listed security. The tick engine owns
// price mutation; trading operations only adjust MarketPressure. Access is
// serialized by the registry that holds the stock.
type Stock struct {
	ID       string
	Name     string
	Industry string

	CurrentPrice     float64
	PreviousClose    float64
	FundamentalValue float64
	Volatility       float64

	IsListedCompany bool
	OwnerID         string
	TotalShares     int64

	// MarketPressure is a decaying scalar fed by executed trade flow.
	MarketPressure float64

	Script *DailyScript
	Wave   MomentumWave

	PriceHistory      []float64
	DailyCloseHistory []float64
	Candles           []Candle
}

// PushPrice appends a close to the bounded price history.
func (s *Stock) PushPrice(p float64) {
	s.PriceHistory = pushBounded(s.PriceHistory, p, PriceHistoryCap)
}

// PushDailyClose appends a daily close to the bounded close history.
func (s *Stock) PushDailyClose(p float64) {
	s.DailyCloseHistory = pushBounded(s.DailyCloseHistory, p, DailyCloseCap)
}

// PushCandle appends a candle to the bounded candle history.
func (s *Stock) PushCandle(c Candle) {
	if len(s.Candles) >= CandleHistoryCap {
		s.Candles = s.Candles[1:]
	}
	s.Candles = append(s.Candles, c)
}

func pushBounded(buf []float64, v float64, cap int) []float64 {
	if len(buf) >= cap {
		buf = buf[1:]
	}
	return append(buf, v)
}

// LastDayClose returns the start-of-day anchor price.
func (s *Stock) LastDayClose() float64 {
	if s.PreviousClose > 0 {
		return s.PreviousClose
	}
	return s.CurrentPrice
}

// DailyMomentum is a recency-weighted sum of day-over-day up/down flags over
// the daily close history, in [-1, 1]. Returns 0 with fewer than 5 closes.
func (s *Stock) DailyMomentum() float64 {
	n := len(s.DailyCloseHistory)
	if n < 5 {
		return 0
	}
	var weighted, total float64
	for i := 1; i < n; i++ {
		sign := -1.0
		if s.DailyCloseHistory[i] > s.DailyCloseHistory[i-1] {
			sign = 1.0
		}
		w := float64(i)
		weighted += sign * w
		total += w
	}
	return weighted / total
}

// SMA returns the simple moving average of the last n price-history points,
// or 0 if the history is shorter than n.
func (s *Stock) SMA(n int) float64 {
	if len(s.PriceHistory) < n || n <= 0 {
		return 0
	}
	var sum float64
	for _, p := range s.PriceHistory[len(s.PriceHistory)-n:] {
		sum += p
	}
	return sum / float64(n)
}

// HoldingLot is one purchase record used for FIFO cost-basis accounting.
type HoldingLot struct {
	ID          int64
	UserID      string
	StockID     string
	Quantity    int64
	Price       float64
	PurchasedAt time.Time
}

// StockTickUpdate is the per-stock payload of one batched tick write.
type StockTickUpdate struct {
	StockID        string
	CurrentPrice   float64
	MarketPressure float64
	Candle         Candle
}

// HoldingSummary aggregates a user's lots for one stock.
type HoldingSummary struct {
	StockID   string
	Quantity  int64
	CostBasis float64
}

// Round2 rounds to cents; all persisted prices and cash amounts use it.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
