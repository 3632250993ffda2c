package market

import (
	"math/rand"
	"time"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// weight factors are floored here so a strong negative momentum can never
// push a sampling weight to zero or below.
const minBiasWeight = 0.01

// scriptGenerator computes each stock's daily narrative: a sampled
// directional bias, the day's volatility budget and a target close.
type scriptGenerator struct {
	cfg config.SimConfig
	rng *rand.Rand
}

// Generate produces the daily script for one stock under the given macro
// state. The valuation term is disabled when the fundamental value is not
// positive.
func (g *scriptGenerator) Generate(st *models.Stock, macro models.MacroState, day time.Time) *models.DailyScript {
	lastClose := st.LastDayClose()
	momentum := st.DailyMomentum()

	valuationRatio := 1.0
	if st.FundamentalValue > 0 {
		valuationRatio = lastClose / st.FundamentalValue
	}
	reversionPressure := 1.0
	switch {
	case valuationRatio < 0.7:
		r := valuationRatio
		if r < 0.1 {
			r = 0.1
		}
		reversionPressure = 1 / r
	case valuationRatio > 1.5:
		reversionPressure = valuationRatio
	}

	up, side, down := 1.0, 1.0, 1.0
	switch macro.Cycle {
	case models.CycleBull:
		up *= 2
	case models.CycleBear:
		down *= 2
	}
	if momentum > 0 {
		up *= 1 + momentum*1.5
	} else if momentum < 0 {
		// can go non-positive for strong downtrends; clamped below
		down *= 1 - (-momentum)*1.5
	}
	if valuationRatio < 0.7 {
		up *= reversionPressure
	} else if valuationRatio > 1.5 {
		down *= reversionPressure
	}
	bias := g.sampleBias(max(up, minBiasWeight), max(side, minBiasWeight), max(down, minBiasWeight))

	rangeFactor := st.Volatility * g.uniform(0.7, 1.5)
	if macro.Regime == models.VolatilityHigh {
		rangeFactor *= 1.7
	}
	if bias != models.BiasSideways {
		rangeFactor *= 1.3
	}

	move := lastClose * rangeFactor * g.uniform(0.4, 1.0)
	var target float64
	switch bias {
	case models.BiasUp:
		target = lastClose + move
	case models.BiasDown:
		target = lastClose - move
	default:
		half := move / 2
		if g.rng.Intn(2) == 0 {
			half = -half
		}
		target = lastClose + half
	}
	if target < 0.01 {
		target = 0.01
	}

	return &models.DailyScript{
		Date:                day,
		Bias:                bias,
		ExpectedRangeFactor: rangeFactor,
		TargetClose:         target,
	}
}

func (g *scriptGenerator) sampleBias(up, side, down float64) models.DailyBias {
	total := up + side + down
	r := g.rng.Float64() * total
	switch {
	case r < up:
		return models.BiasUp
	case r < up+side:
		return models.BiasSideways
	default:
		return models.BiasDown
	}
}

func (g *scriptGenerator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
