// Package market implements the price simulation core: the macro regime
// state machine, daily scripts, momentum waves, the tick engine and the
// public market service.
package market

import (
	"time"

	"virtual-exchange/internal/config"
	"virtual-exchange/internal/models"
)

// SessionClock derives the market session state from the wall clock and the
// configured trading hours. It holds no mutable state; the status is
// recomputed on demand.
type SessionClock struct {
	open  config.Clock
	close config.Clock
	now   func() time.Time
}

// NewSessionClock creates a session clock from the session configuration.
// The config is validated upstream; invalid times fall back to always-open.
func NewSessionClock(cfg config.SessionConfig) *SessionClock {
	open, err1 := config.ParseClock(cfg.OpenTime)
	closeAt, err2 := config.ParseClock(cfg.CloseTime)
	if err1 != nil || err2 != nil {
		open, closeAt = 0, config.Clock(24*3600-1)
	}
	return &SessionClock{open: open, close: closeAt, now: time.Now}
}

// SetNow overrides the clock's time source. Tests use it to pin the wall
// clock.
func (c *SessionClock) SetNow(now func() time.Time) {
	c.now = now
}

// Status returns the current session state and how long it lasts. The
// duration lets the tick scheduler sleep to the next boundary instead of
// polling.
func (c *SessionClock) Status() (models.MarketStatus, time.Duration) {
	return c.StatusAt(c.now())
}

// StatusAt returns the session state at an arbitrary instant.
func (c *SessionClock) StatusAt(t time.Time) (models.MarketStatus, time.Duration) {
	openAt := c.open.At(t)
	closeAt := c.close.At(t)

	if !t.Before(openAt) && !t.After(closeAt) {
		wait := closeAt.Sub(t)
		if wait < time.Second {
			wait = time.Second
		}
		return models.MarketOpen, wait
	}

	nextOpen := openAt
	if t.After(closeAt) {
		nextOpen = nextOpen.AddDate(0, 0, 1)
	}
	wait := nextOpen.Sub(t)
	if wait < time.Second {
		wait = time.Second
	}
	return models.MarketClosed, wait
}

// IsOpen reports whether the market is currently open.
func (c *SessionClock) IsOpen() bool {
	status, _ := c.Status()
	return status == models.MarketOpen
}
