package wallet

import (
	"context"
	"sync"
	"testing"

	"virtual-exchange/internal/errors"
)

func TestStartingBalanceOnFirstUse(t *testing.T) {
	w := NewMemoryWallet(1000)
	got, err := w.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("balance = %v, want starting 1000", got)
	}
}

func TestDebitAndCredit(t *testing.T) {
	w := NewMemoryWallet(1000)
	ctx := context.Background()

	if err := w.Debit(ctx, "alice", 250.50, "buy ZY"); err != nil {
		t.Fatal(err)
	}
	if err := w.Credit(ctx, "alice", 100.25, "sell ZY"); err != nil {
		t.Fatal(err)
	}

	got, _ := w.Balance(ctx, "alice")
	if got != 849.75 {
		t.Errorf("balance = %v, want 849.75", got)
	}

	history := w.History("alice")
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].Amount != -250.50 || history[0].Memo != "buy ZY" {
		t.Errorf("debit entry = %+v", history[0])
	}
	if history[1].Amount != 100.25 || history[1].Memo != "sell ZY" {
		t.Errorf("credit entry = %+v", history[1])
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	w := NewMemoryWallet(100)
	ctx := context.Background()

	err := w.Debit(ctx, "alice", 100.01, "buy ZY")
	var fundsErr *errors.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("error = %v, want InsufficientFundsError", err)
	}
	if fundsErr.Need != 100.01 || fundsErr.Have != 100 {
		t.Errorf("shortfall = %+v", fundsErr)
	}

	got, _ := w.Balance(ctx, "alice")
	if got != 100 {
		t.Errorf("balance = %v, want untouched 100", got)
	}
	if len(w.History("alice")) != 0 {
		t.Error("failed debit recorded in history")
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	w := NewMemoryWallet(100)
	ctx := context.Background()

	if err := w.Debit(ctx, "alice", -5, "bad"); err == nil {
		t.Error("negative debit accepted")
	}
	if err := w.Credit(ctx, "alice", -5, "bad"); err == nil {
		t.Error("negative credit accepted")
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	w := NewMemoryWallet(500)
	ctx := context.Background()

	if err := w.Debit(ctx, "alice", 200, "buy"); err != nil {
		t.Fatal(err)
	}
	aliceBalance, _ := w.Balance(ctx, "alice")
	bobBalance, _ := w.Balance(ctx, "bob")
	if aliceBalance != 300 || bobBalance != 500 {
		t.Errorf("balances = %v/%v, want 300/500", aliceBalance, bobBalance)
	}
}

func TestConcurrentMovements(t *testing.T) {
	w := NewMemoryWallet(10_000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.Debit(ctx, "alice", 10, "buy")
		}()
		go func() {
			defer wg.Done()
			w.Credit(ctx, "alice", 10, "sell")
		}()
	}
	wg.Wait()

	got, _ := w.Balance(ctx, "alice")
	if got != 10_000 {
		t.Errorf("balance = %v, want 10000 after offsetting movements", got)
	}
	if len(w.History("alice")) != 100 {
		t.Errorf("history = %d entries, want 100", len(w.History("alice")))
	}
}
