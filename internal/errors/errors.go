// Package errors provides domain-specific error types for the exchange.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrMarketClosed   = errors.New("market is closed")
	ErrStockNotFound  = errors.New("stock not found")
	ErrTickerTaken    = errors.New("ticker already listed")
	ErrNothingToSell  = errors.New("no sellable holdings")
	ErrStoreFailure   = errors.New("store operation failed")
	ErrEngineStopped  = errors.New("tick engine is not running")
	ErrEngineRunning  = errors.New("tick engine is already running")
	ErrInvalidPrice   = errors.New("price must be positive")
)

// ValidationError represents an input validation failure. Validation errors
// are rejected before any state change.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// InsufficientFundsError reports a buy the user cannot afford.
type InsufficientFundsError struct {
	Need float64
	Have float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %.2f, have %.2f", e.Need, e.Have)
}

// InsufficientSharesError reports a sell exceeding the unlocked quantity.
// NextUnlock is the zero time when no further lot is pending.
type InsufficientSharesError struct {
	Requested  int64
	Sellable   int64
	NextUnlock time.Time
}

func (e *InsufficientSharesError) Error() string {
	if e.NextUnlock.IsZero() {
		return fmt.Sprintf("insufficient sellable shares: requested %d, sellable %d", e.Requested, e.Sellable)
	}
	return fmt.Sprintf("insufficient sellable shares: requested %d, sellable %d, next lot unlocks at %s",
		e.Requested, e.Sellable, e.NextUnlock.Format(time.RFC3339))
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
