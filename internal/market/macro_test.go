package market

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

func macroCfg() config.MacroConfig {
	return config.MacroConfig{
		MinCycleDays:      7,
		MinRegimeDays:     7,
		CycleSwitchChance: 1.0 / 7.0,
		RegimeFlipChance:  1.0 / 5.0,
	}
}

func TestMacroStartsNeutralLow(t *testing.T) {
	m := NewMacroSimulator(macroCfg(), rand.New(rand.NewSource(1)), zerolog.Nop())
	st := m.State()
	if st.Cycle != models.CycleNeutral {
		t.Errorf("cycle = %v, want NEUTRAL", st.Cycle)
	}
	if st.Regime != models.VolatilityLow {
		t.Errorf("regime = %v, want LOW", st.Regime)
	}
}

func TestMacroRespectsDwellTime(t *testing.T) {
	cfg := macroCfg()
	cfg.CycleSwitchChance = 1.0
	cfg.RegimeFlipChance = 1.0
	m := NewMacroSimulator(cfg, rand.New(rand.NewSource(1)), zerolog.Nop())

	for day := 0; day < cfg.MinCycleDays; day++ {
		m.AdvanceDay()
		if got := m.State().Cycle; got != models.CycleNeutral {
			t.Fatalf("cycle switched on day %d, inside the %d-day dwell", day+1, cfg.MinCycleDays)
		}
		if got := m.State().Regime; got != models.VolatilityLow {
			t.Fatalf("regime flipped on day %d, inside the dwell", day+1)
		}
	}

	// first day past the dwell, certain switch
	m.AdvanceDay()
	if got := m.State().Cycle; got == models.CycleNeutral {
		t.Error("cycle did not switch after dwell with certain probability")
	}
	if got := m.State().Regime; got != models.VolatilityHigh {
		t.Errorf("regime = %v, want HIGH after dwell with certain probability", got)
	}
}

func TestMacroSwitchResetsDwellCounter(t *testing.T) {
	cfg := macroCfg()
	cfg.CycleSwitchChance = 1.0
	m := NewMacroSimulator(cfg, rand.New(rand.NewSource(7)), zerolog.Nop())

	for day := 0; day <= cfg.MinCycleDays; day++ {
		m.AdvanceDay()
	}
	if m.State().DaysInCycle != 0 {
		t.Errorf("DaysInCycle = %d after switch, want 0", m.State().DaysInCycle)
	}
}

func TestMacroNeverSwitchesWithZeroChance(t *testing.T) {
	cfg := macroCfg()
	cfg.CycleSwitchChance = 0
	cfg.RegimeFlipChance = 0
	m := NewMacroSimulator(cfg, rand.New(rand.NewSource(3)), zerolog.Nop())
	for day := 0; day < 100; day++ {
		m.AdvanceDay()
	}
	st := m.State()
	if st.Cycle != models.CycleNeutral || st.Regime != models.VolatilityLow {
		t.Errorf("state changed with zero switch chance: %+v", st)
	}
}

func TestMacroSwitchPicksDifferentCycle(t *testing.T) {
	cfg := macroCfg()
	cfg.MinCycleDays = 0
	cfg.CycleSwitchChance = 1.0
	m := NewMacroSimulator(cfg, rand.New(rand.NewSource(11)), zerolog.Nop())
	prev := m.State().Cycle
	for day := 0; day < 50; day++ {
		m.AdvanceDay()
		cur := m.State().Cycle
		if cur == prev {
			t.Fatalf("day %d: cycle stayed %v across a certain switch", day, cur)
		}
		prev = cur
	}
}
