// Package wallet provides cash-ledger implementations for the exchange.
package wallet

import (
	"context"
	"sync"
	"time"

	"virtual-exchange/internal/errors"
	"virtual-exchange/internal/models"
)

// Entry is one cash movement recorded against an account.
type Entry struct {
	Amount float64
	Memo   string
	At     time.Time
}

// MemoryWallet is an in-process cash ledger. Balances are created on first
// use with the configured starting amount, the way a chat economy grants
// every new player a stake.
type MemoryWallet struct {
	mu              sync.Mutex
	balances        map[string]float64
	history         map[string][]Entry
	startingBalance float64
}

// NewMemoryWallet creates a wallet granting startingBalance to new accounts.
func NewMemoryWallet(startingBalance float64) *MemoryWallet {
	return &MemoryWallet{
		balances:        make(map[string]float64),
		history:         make(map[string][]Entry),
		startingBalance: startingBalance,
	}
}

func (w *MemoryWallet) balance(userID string) float64 {
	if _, ok := w.balances[userID]; !ok {
		w.balances[userID] = w.startingBalance
	}
	return w.balances[userID]
}

// Balance returns the account's current cash.
func (w *MemoryWallet) Balance(_ context.Context, userID string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance(userID), nil
}

// Debit removes cash, failing with InsufficientFundsError when short.
func (w *MemoryWallet) Debit(_ context.Context, userID string, amount float64, memo string) error {
	if amount < 0 {
		return &errors.ValidationError{Field: "amount", Value: amount, Message: "must not be negative"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	have := w.balance(userID)
	if have < amount {
		return &errors.InsufficientFundsError{Need: amount, Have: have}
	}
	w.balances[userID] = models.Round2(have - amount)
	w.history[userID] = append(w.history[userID], Entry{Amount: -amount, Memo: memo, At: time.Now()})
	return nil
}

// Credit adds cash to the account.
func (w *MemoryWallet) Credit(_ context.Context, userID string, amount float64, memo string) error {
	if amount < 0 {
		return &errors.ValidationError{Field: "amount", Value: amount, Message: "must not be negative"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] = models.Round2(w.balance(userID) + amount)
	w.history[userID] = append(w.history[userID], Entry{Amount: amount, Memo: memo, At: time.Now()})
	return nil
}

// History returns the recorded cash movements for an account.
func (w *MemoryWallet) History(userID string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.history[userID]))
	copy(out, w.history[userID])
	return out
}
