// Package config provides configuration management for the virtual exchange.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Session SessionConfig `mapstructure:"session"`
	Sim     SimConfig     `mapstructure:"simulation"`
	Limits  LimitConfig   `mapstructure:"limits"`
	Waves   WaveConfig    `mapstructure:"waves"`
	Trading TradingConfig `mapstructure:"trading"`
	Events  EventConfig   `mapstructure:"events"`
	Macro   MacroConfig   `mapstructure:"macro"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LogConfig     `mapstructure:"logging"`
}

// SessionConfig holds trading-hours configuration. Times are "HH:MM" or
// "HH:MM:SS" on the local wall clock.
type SessionConfig struct {
	OpenTime  string `mapstructure:"open_time"`
	CloseTime string `mapstructure:"close_time"`
}

// SimConfig holds the tick-engine cadence and model constants.
type SimConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	TicksPerDay        int           `mapstructure:"ticks_per_day"`
	VolatilityScale    float64       `mapstructure:"volatility_scale"`     // effective-vol multiplier
	ReversionStrength  float64       `mapstructure:"reversion_strength"`   // pull toward SMA5
	AnchorStrength     float64       `mapstructure:"anchor_strength"`      // pull toward target close
	PressureStrength   float64       `mapstructure:"pressure_strength"`    // pressure -> price
	PressureDecay      float64       `mapstructure:"pressure_decay"`       // per-tick pressure retention
	RandomWalkStdDev   float64       `mapstructure:"random_walk_stddev"`
	FundamentalDriftLo float64       `mapstructure:"fundamental_drift_lo"` // daily fair-value drift bounds
	FundamentalDriftHi float64       `mapstructure:"fundamental_drift_hi"`
}

// LimitConfig holds the two circuit-breaker price limits.
type LimitConfig struct {
	WindowHours   float64 `mapstructure:"window_hours"`   // sliding-window lookback
	WindowPercent float64 `mapstructure:"window_percent"` // max move vs window reference
	DailyPercent  float64 `mapstructure:"daily_percent"`  // max move vs previous close
}

// WaveConfig holds momentum-wave spawn parameters.
type WaveConfig struct {
	SpawnProbability float64 `mapstructure:"spawn_probability"`
	BigProbability   float64 `mapstructure:"big_probability"`
	SmallPeakMin     float64 `mapstructure:"small_peak_min"`
	SmallPeakMax     float64 `mapstructure:"small_peak_max"`
	SmallTicksMin    int     `mapstructure:"small_ticks_min"`
	SmallTicksMax    int     `mapstructure:"small_ticks_max"`
	BigPeakMin       float64 `mapstructure:"big_peak_min"`
	BigPeakMax       float64 `mapstructure:"big_peak_max"`
	BigTicksMin      int     `mapstructure:"big_ticks_min"`
	BigTicksMax      int     `mapstructure:"big_ticks_max"`
}

// TradingConfig holds ledger rules: lock window, fees, slippage and the
// trade-flow pressure feedback.
type TradingConfig struct {
	SellLock            time.Duration `mapstructure:"sell_lock"`
	FeeRate             float64       `mapstructure:"fee_rate"`
	SlippageFactor      float64       `mapstructure:"slippage_factor"`
	MaxSlippage         float64       `mapstructure:"max_slippage"`
	PressureFactor      float64       `mapstructure:"pressure_factor"`
	BuyPressureExp      float64       `mapstructure:"buy_pressure_exp"`
	SellPressureExp     float64       `mapstructure:"sell_pressure_exp"`
	IntrinsicPressure   float64       `mapstructure:"intrinsic_pressure"`
	EarningsSensitivity float64       `mapstructure:"earnings_sensitivity"`
	ListedVolatility    float64       `mapstructure:"listed_volatility"`
}

// EventConfig holds the native-stock random event settings.
type EventConfig struct {
	Probability float64 `mapstructure:"probability"` // per stock per tick
}

// MacroConfig holds the macro state-machine dwell times and switch odds.
type MacroConfig struct {
	MinCycleDays      int     `mapstructure:"min_cycle_days"`
	MinRegimeDays     int     `mapstructure:"min_regime_days"`
	CycleSwitchChance float64 `mapstructure:"cycle_switch_chance"`
	RegimeFlipChance  float64 `mapstructure:"regime_flip_chance"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/virtual-exchange"
	}
	return filepath.Join(home, ".config", "virtual-exchange")
}

// Default returns the built-in configuration. The simulation constants are
// the tuned values the market was balanced around; all of them can be
// overridden from config.toml.
func Default() *Config {
	home := DefaultConfigDir()
	return &Config{
		Session: SessionConfig{
			OpenTime:  "08:00",
			CloseTime: "23:59:59",
		},
		Sim: SimConfig{
			TickInterval:       5 * time.Minute,
			TicksPerDay:        288,
			VolatilityScale:    2.2,
			ReversionStrength:  0.15,
			AnchorStrength:     0.05,
			PressureStrength:   0.01,
			PressureDecay:      0.8,
			RandomWalkStdDev:   0.8,
			FundamentalDriftLo: 0.999,
			FundamentalDriftHi: 1.001,
		},
		Limits: LimitConfig{
			WindowHours:   1,
			WindowPercent: 0.50,
			DailyPercent:  1.00,
		},
		Waves: WaveConfig{
			SpawnProbability: 0.3,
			BigProbability:   0.03,
			SmallPeakMin:     0.4,
			SmallPeakMax:     0.8,
			SmallTicksMin:    5,
			SmallTicksMax:    12,
			BigPeakMin:       1.0,
			BigPeakMax:       1.6,
			BigTicksMin:      12,
			BigTicksMax:      24,
		},
		Trading: TradingConfig{
			SellLock:            60 * time.Minute,
			FeeRate:             0.01,
			SlippageFactor:      0.0000005,
			MaxSlippage:         0.30,
			PressureFactor:      0.0000005,
			BuyPressureExp:      0.98,
			SellPressureExp:     0.95,
			IntrinsicPressure:   5,
			EarningsSensitivity: 0.5,
			ListedVolatility:    0.025,
		},
		Events: EventConfig{
			Probability: 0.001,
		},
		Macro: MacroConfig{
			MinCycleDays:      7,
			MinRegimeDays:     7,
			CycleSwitchChance: 1.0 / 7.0,
			RegimeFlipChance:  1.0 / 5.0,
		},
		Store: StoreConfig{
			Path: filepath.Join(home, "exchange.db"),
		},
		Logging: LogConfig{
			Level:      "info",
			Console:    true,
			File:       true,
			FilePath:   filepath.Join(home, "logs", "exchange.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
	}
}

// Load loads configuration from the specified directory, falling back to
// defaults for anything unset. If configDir is empty the default config
// directory is used. A missing config file is not an error.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if _, err := ParseClock(c.Session.OpenTime); err != nil {
		return fmt.Errorf("session.open_time: %w", err)
	}
	if _, err := ParseClock(c.Session.CloseTime); err != nil {
		return fmt.Errorf("session.close_time: %w", err)
	}
	if c.Sim.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive")
	}
	if c.Sim.TicksPerDay <= 0 {
		return fmt.Errorf("simulation.ticks_per_day must be positive")
	}
	if c.Limits.WindowPercent <= 0 || c.Limits.DailyPercent <= 0 {
		return fmt.Errorf("limits percentages must be positive")
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("trading.fee_rate must be in [0, 1)")
	}
	if c.Trading.MaxSlippage < 0 || c.Trading.MaxSlippage >= 1 {
		return fmt.Errorf("trading.max_slippage must be in [0, 1)")
	}
	if c.Waves.SmallTicksMin <= 0 || c.Waves.SmallTicksMax < c.Waves.SmallTicksMin {
		return fmt.Errorf("waves small tick range invalid")
	}
	if c.Waves.BigTicksMin <= 0 || c.Waves.BigTicksMax < c.Waves.BigTicksMin {
		return fmt.Errorf("waves big tick range invalid")
	}
	return nil
}

// Clock is a time-of-day in seconds since midnight.
type Clock int

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return Clock(h*3600 + m*60 + sec), nil
}

// At anchors the clock time onto the given date.
func (c Clock) At(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, int(c), 0, day.Location())
}
