package market

import (
	"math/rand"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// waveEngine drives the bell-shaped intraday momentum waves. A stock has at
// most one active wave; when idle a new one spawns probabilistically, biased
// toward the daily script's direction.
type waveEngine struct {
	cfg config.WaveConfig
	rng *rand.Rand
}

// Advance steps the stock's wave by one tick and returns the momentum value
// for this tick. Expired waves are cleared before the spawn roll so a new
// wave can start on the same tick the old one ends.
func (e *waveEngine) Advance(st *models.Stock, bias models.DailyBias) float64 {
	if st.Wave.Active() && st.Wave.CurrentTick >= st.Wave.DurationTicks {
		st.Wave.Clear()
	}

	if !st.Wave.Active() && e.rng.Float64() < e.cfg.SpawnProbability {
		e.spawn(&st.Wave, bias)
	}

	if !st.Wave.Active() {
		return 0
	}
	st.Wave.CurrentTick++
	return st.Wave.Contribution()
}

func (e *waveEngine) spawn(w *models.MomentumWave, bias models.DailyBias) {
	upWeight := 0.5
	switch bias {
	case models.BiasUp:
		upWeight = 0.6
	case models.BiasDown:
		upWeight = 0.4
	}
	direction := -1.0
	if e.rng.Float64() < upWeight {
		direction = 1.0
	}

	var peak float64
	var ticks int
	if e.rng.Float64() < e.cfg.BigProbability {
		peak = e.uniform(e.cfg.BigPeakMin, e.cfg.BigPeakMax)
		ticks = e.intBetween(e.cfg.BigTicksMin, e.cfg.BigTicksMax)
	} else {
		peak = e.uniform(e.cfg.SmallPeakMin, e.cfg.SmallPeakMax)
		ticks = e.intBetween(e.cfg.SmallTicksMin, e.cfg.SmallTicksMax)
	}

	w.TargetPeak = direction * peak
	w.DurationTicks = ticks
	w.CurrentTick = 0
}

func (e *waveEngine) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}

func (e *waveEngine) intBetween(lo, hi int) int {
	return lo + e.rng.Intn(hi-lo+1)
}
