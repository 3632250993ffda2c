package market

import (
	"math/rand"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// MacroSimulator is the process-wide daily state machine: a bull/bear/neutral
// cycle and a low/high volatility regime, each with its own dwell time and
// switch probability. It advances once per trading day and is read-only
// context for the script generator and the tick engine.
type MacroSimulator struct {
	cfg   config.MacroConfig
	state models.MacroState
	rng   *rand.Rand
	log   zerolog.Logger
}

// NewMacroSimulator creates a macro simulator starting in a neutral,
// low-volatility market.
func NewMacroSimulator(cfg config.MacroConfig, rng *rand.Rand, log zerolog.Logger) *MacroSimulator {
	return &MacroSimulator{
		cfg: cfg,
		state: models.MacroState{
			Cycle:         models.CycleNeutral,
			Regime:        models.VolatilityLow,
			MinCycleDays:  cfg.MinCycleDays,
			MinRegimeDays: cfg.MinRegimeDays,
		},
		rng: rng,
		log: log,
	}
}

// State returns a copy of the current macro state.
func (m *MacroSimulator) State() models.MacroState {
	return m.state
}

// AdvanceDay performs the once-per-trading-day state transition. After the
// minimum dwell time the cycle switches to a different member with the
// configured probability; the volatility regime toggles independently.
func (m *MacroSimulator) AdvanceDay() {
	m.state.DaysInCycle++
	if m.state.DaysInCycle > m.cfg.MinCycleDays && m.rng.Float64() < m.cfg.CycleSwitchChance {
		old := m.state.Cycle
		m.state.Cycle = m.pickOtherCycle(old)
		m.state.DaysInCycle = 0
		m.log.Info().
			Str("from", string(old)).
			Str("to", string(m.state.Cycle)).
			Msg("macro cycle switched")
	}

	m.state.DaysInRegime++
	if m.state.DaysInRegime > m.cfg.MinRegimeDays && m.rng.Float64() < m.cfg.RegimeFlipChance {
		if m.state.Regime == models.VolatilityLow {
			m.state.Regime = models.VolatilityHigh
		} else {
			m.state.Regime = models.VolatilityLow
		}
		m.state.DaysInRegime = 0
		m.log.Info().
			Str("regime", string(m.state.Regime)).
			Msg("volatility regime flipped")
	}
}

func (m *MacroSimulator) pickOtherCycle(current models.MarketCycle) models.MarketCycle {
	others := make([]models.MarketCycle, 0, 2)
	for _, c := range []models.MarketCycle{models.CycleBull, models.CycleBear, models.CycleNeutral} {
		if c != current {
			others = append(others, c)
		}
	}
	return others[m.rng.Intn(len(others))]
}
