package market

import (
	"fmt"
	"math/rand"
	"strings"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// DefaultEvents is the built-in bulletin catalogue for native stocks.
// Weights skew toward mild moves; the tail entries are rare shocks.
var DefaultEvents = []models.RandomEvent{
	{
		Sentiment: models.SentimentPositive,
		ValueMin:  0.05, ValueMax: 0.12,
		Message:  "📈 [Sector Tailwind] {name} ({id}) rides a wave of new industry subsidies, shares climb {value}!",
		Weight:   20,
		Industry: "Technology",
	},
	{
		Sentiment: models.SentimentPositive,
		ValueMin:  0.03, ValueMax: 0.08,
		Message: "📈 [Strategic Deal] {name} ({id}) announces a partnership with a market giant, shares gain {value}!",
		Weight:  15,
	},
	{
		Sentiment: models.SentimentPositive,
		ValueMin:  0.10, ValueMax: 0.20,
		Message: "📈 [Breakthrough] {name} ({id}) unveils a revolutionary new technology, shares surge {value}!",
		Weight:  5,
	},
	{
		Sentiment: models.SentimentNegative,
		ValueMin:  -0.10, ValueMax: -0.04,
		Message: "📉 [Regulatory Probe] Regulators open a sweeping review of {name} ({id})'s sector, shares slide {value}!",
		Weight:  20,
	},
	{
		Sentiment: models.SentimentNegative,
		ValueMin:  -0.15, ValueMax: -0.08,
		Message: "📉 [Data Scandal] {name} ({id}) is hit by a data-leak scandal and investors rush for the exit, shares drop {value}!",
		Weight:  10,
	},
	{
		Sentiment: models.SentimentNegative,
		ValueMin:  -0.25, ValueMax: -0.18,
		Message: "📉 [Product Recall] A critical flaw in {name} ({id})'s flagship product forces a mass recall, shares plunge {value}!",
		Weight:  3,
	},
}

// eventEngine rolls per-tick random events for native stocks and applies
// their effects in place.
type eventEngine struct {
	cfg     config.EventConfig
	catalog []models.RandomEvent
	rng     *rand.Rand
}

// Roll fires at most one event for the stock this tick. It returns the
// rendered bulletin text, or "" when nothing fired. The price mutation
// happens here so the caller can treat an event tick as a plain open/close
// candle.
func (e *eventEngine) Roll(st *models.Stock) string {
	if e.rng.Float64() >= e.cfg.Probability {
		return ""
	}

	eligible := make([]models.RandomEvent, 0, len(e.catalog))
	for _, ev := range e.catalog {
		if ev.Industry == "" || ev.Industry == st.Industry {
			eligible = append(eligible, ev)
		}
	}
	if len(eligible) == 0 {
		return ""
	}

	ev := e.pick(eligible)
	value := ev.ValueMin + e.rng.Float64()*(ev.ValueMax-ev.ValueMin)
	applyEffect(st, models.PriceChangePercent{Percent: value})
	return renderEvent(ev.Message, st, value)
}

func (e *eventEngine) pick(events []models.RandomEvent) models.RandomEvent {
	var total float64
	for _, ev := range events {
		total += ev.Weight
	}
	r := e.rng.Float64() * total
	for _, ev := range events {
		r -= ev.Weight
		if r < 0 {
			return ev
		}
	}
	return events[len(events)-1]
}

// applyEffect mutates the stock for one event effect. The closed type switch
// is the single dispatch point for every effect kind.
func applyEffect(st *models.Stock, effect models.EventEffect) {
	switch eff := effect.(type) {
	case models.PriceChangePercent:
		st.CurrentPrice = floorPrice(models.Round2(st.CurrentPrice * (1 + eff.Percent)))
	case models.ScaledFixed:
		st.CurrentPrice = floorPrice(models.Round2(st.CurrentPrice + eff.Amount))
	case models.EarningsModifier:
		st.FundamentalValue *= eff.Modifier
	case models.LevelChange:
		st.FundamentalValue += eff.Delta
	}
}

func floorPrice(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	return p
}

func renderEvent(template string, st *models.Stock, value float64) string {
	r := strings.NewReplacer(
		"{name}", st.Name,
		"{id}", st.ID,
		"{value}", fmt.Sprintf("%.2f%%", value*100),
	)
	return r.Replace(template)
}
