package market

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// Property: for any seed, starting price and base volatility, a full day of
// ticks keeps every close positive, rounded to cents, and inside the daily
// limit band around the previous close.
func TestProperty_TickPricesStayInBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(1)

	properties := gopter.NewProperties(parameters)

	properties.Property("closes positive and inside the daily band", prop.ForAll(
		func(seed int64, price float64, vol float64) bool {
			f := newEngineFixture(t, seed, func(cfg *config.Config) {
				cfg.Events.Probability = 0
			})
			f.addStock(t, testStock(price, vol))
			st, _ := f.registry.Get("TS")

			for tick := 0; tick < 288; tick++ {
				f.engine.Tick(tickTime(0, tick))
				close := st.CurrentPrice
				if close < 0.01 {
					return false
				}
				if close != models.Round2(close) {
					return false
				}
				lo := st.PreviousClose * (1 - f.cfg.Limits.DailyPercent)
				hi := st.PreviousClose * (1 + f.cfg.Limits.DailyPercent)
				if lo < 0.01 {
					lo = 0.01
				}
				// cent rounding may land just past the clamp edge
				if close < lo-0.006 || close > hi+0.006 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<30),
		gen.Float64Range(0.5, 500),
		gen.Float64Range(0.005, 0.08),
	))

	properties.TestingRun(t)
}

// Property: the sliding-window clamp holds tick over tick against the price
// recorded one window back.
func TestProperty_WindowClampHolds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(2)

	properties := gopter.NewProperties(parameters)

	properties.Property("price never strays beyond the window band", prop.ForAll(
		func(seed int64, price float64) bool {
			f := newEngineFixture(t, seed, func(cfg *config.Config) {
				cfg.Events.Probability = 0
			})
			f.addStock(t, testStock(price, 0.05))
			st, _ := f.registry.Get("TS")

			limitTicks := int(f.cfg.Limits.WindowHours * 12)
			for tick := 0; tick < 288; tick++ {
				var ref float64
				history := append([]float64(nil), st.PriceHistory...)
				if len(history) >= limitTicks {
					ref = history[len(history)-limitTicks]
				}
				f.engine.Tick(tickTime(0, tick))
				if ref > 0 {
					hi := ref * (1 + f.cfg.Limits.WindowPercent)
					lo := ref * (1 - f.cfg.Limits.WindowPercent)
					if lo < 0.01 {
						lo = 0.01
					}
					if st.CurrentPrice > hi+0.006 || st.CurrentPrice < lo-0.006 {
						return false
					}
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<30),
		gen.Float64Range(1, 200),
	))

	properties.TestingRun(t)
}
