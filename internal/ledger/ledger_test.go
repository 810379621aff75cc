package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RutamBhagat/project-1-probo-v0/internal/ledger"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
)

func newStore(t *testing.T, users ...string) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	err := st.Atomic(context.Background(), store.GlobalScope, func(tx store.Tx) error {
		for _, id := range users {
			if err := tx.CreateUser(context.Background(), &model.User{ID: id, CreatedAt: time.Now()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return st
}

// run executes fn against a ledger in one unit of work.
func run(t *testing.T, st store.Store, fn func(l *ledger.Ledger) error) error {
	t.Helper()
	ctx := context.Background()
	return st.Atomic(ctx, store.GlobalScope, func(tx store.Tx) error {
		return fn(ledger.New(ctx, tx))
	})
}

func cash(t *testing.T, st store.Store, userID string) model.CashAccount {
	t.Helper()
	accts, err := st.CashAccounts(context.Background())
	if err != nil {
		t.Fatalf("cash accounts: %v", err)
	}
	for _, a := range accts {
		if a.UserID == userID {
			return a
		}
	}
	t.Fatalf("no cash account for %s", userID)
	return model.CashAccount{}
}

func tokens(t *testing.T, st store.Store, key model.TokenKey) model.TokenAccount {
	t.Helper()
	accts, err := st.TokenAccounts(context.Background())
	if err != nil {
		t.Fatalf("token accounts: %v", err)
	}
	for _, a := range accts {
		if a.TokenKey == key {
			return a
		}
	}
	return model.TokenAccount{TokenKey: key}
}

func TestDeposit(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		acct, err := l.Deposit("alice", 500)
		if err != nil {
			return err
		}
		if acct.Available != 500 {
			t.Errorf("expected available=500, got %d", acct.Available)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cash(t, st, "alice"); got.Available != 500 || got.Locked != 0 {
		t.Errorf("expected 500/0, got %d/%d", got.Available, got.Locked)
	}
}

func TestDeposit_InvalidAmount(t *testing.T) {
	st := newStore(t, "alice")

	for _, amt := range []int64{0, -1} {
		err := run(t, st, func(l *ledger.Ledger) error {
			_, err := l.Deposit("alice", amt)
			return err
		})
		if !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestDeposit_UnknownUser(t *testing.T) {
	st := newStore(t)

	err := run(t, st, func(l *ledger.Ledger) error {
		_, err := l.Deposit("ghost", 10)
		return err
	})
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReserveAndReleaseCash(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		if _, err := l.Deposit("alice", 1000); err != nil {
			return err
		}
		if err := l.ReserveCash("alice", 600); err != nil {
			return err
		}
		return l.ReleaseCash("alice", 200)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := cash(t, st, "alice")
	if got.Available != 600 || got.Locked != 400 {
		t.Errorf("expected 600/400, got %d/%d", got.Available, got.Locked)
	}
}

func TestReserveCash_Insufficient(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		if _, err := l.Deposit("alice", 100); err != nil {
			return err
		}
		return l.ReserveCash("alice", 101)
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The failed unit of work rolled back the deposit too.
	if got := cash(t, st, "alice"); got.Available != 0 {
		t.Errorf("expected rollback to 0, got %d", got.Available)
	}
}

func TestReleaseCash_MoreThanLocked(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		return l.ReleaseCash("alice", 1)
	})
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestSettleCash(t *testing.T) {
	st := newStore(t, "alice", "bob")

	err := run(t, st, func(l *ledger.Ledger) error {
		if _, err := l.Deposit("bob", 1000); err != nil {
			return err
		}
		if err := l.ReserveCash("bob", 1000); err != nil {
			return err
		}
		if err := l.SettleCash("bob", "alice", 0); err != nil {
			return err
		}
		return l.SettleCash("bob", "alice", 700)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cash(t, st, "bob"); got.Available != 0 || got.Locked != 300 {
		t.Errorf("bob: expected 0/300, got %d/%d", got.Available, got.Locked)
	}
	if got := cash(t, st, "alice"); got.Available != 700 || got.Locked != 0 {
		t.Errorf("alice: expected 700/0, got %d/%d", got.Available, got.Locked)
	}
}

func TestSettleCash_SelfTrade(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		if _, err := l.Deposit("alice", 100); err != nil {
			return err
		}
		if err := l.ReserveCash("alice", 100); err != nil {
			return err
		}
		return l.SettleCash("alice", "alice", 100)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cash(t, st, "alice"); got.Available != 100 || got.Locked != 0 {
		t.Errorf("expected 100/0, got %d/%d", got.Available, got.Locked)
	}
}

func TestSettleCash_MoreThanLocked(t *testing.T) {
	st := newStore(t, "alice", "bob")

	err := run(t, st, func(l *ledger.Ledger) error {
		return l.SettleCash("bob", "alice", 1)
	})
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestMintAndTokenFlow(t *testing.T) {
	st := newStore(t, "alice", "bob")
	aliceYes := model.TokenKey{UserID: "alice", SymbolID: "S", Side: model.SideYes}
	bobYes := model.TokenKey{UserID: "bob", SymbolID: "S", Side: model.SideYes}

	err := run(t, st, func(l *ledger.Ledger) error {
		if _, err := l.Deposit("alice", 500000); err != nil {
			return err
		}
		acct, err := l.MintDebit("alice", "S", 200, 300000)
		if err != nil {
			return err
		}
		if acct.Available != 200000 {
			t.Errorf("expected 200000 after mint, got %d", acct.Available)
		}
		if err := l.ReserveTokens(aliceYes, 150); err != nil {
			return err
		}
		if err := l.TransferTokens(aliceYes, "bob", 100); err != nil {
			return err
		}
		return l.ReleaseTokens(aliceYes, 50)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := tokens(t, st, aliceYes); got.Available != 100 || got.Locked != 0 {
		t.Errorf("alice yes: expected 100/0, got %d/%d", got.Available, got.Locked)
	}
	if got := tokens(t, st, bobYes); got.Available != 100 {
		t.Errorf("bob yes: expected 100, got %d", got.Available)
	}
	aliceNo := model.TokenKey{UserID: "alice", SymbolID: "S", Side: model.SideNo}
	if got := tokens(t, st, aliceNo); got.Available != 200 {
		t.Errorf("alice no: expected 200, got %d", got.Available)
	}
}

func TestMintDebit_Insufficient(t *testing.T) {
	st := newStore(t, "alice")

	err := run(t, st, func(l *ledger.Ledger) error {
		_, err := l.MintDebit("alice", "S", 1, 1)
		return err
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	key := model.TokenKey{UserID: "alice", SymbolID: "S", Side: model.SideYes}
	if got := tokens(t, st, key); got.Available != 0 {
		t.Errorf("no tokens should be credited, got %d", got.Available)
	}
}

func TestReserveTokens_Insufficient(t *testing.T) {
	st := newStore(t, "alice")
	key := model.TokenKey{UserID: "alice", SymbolID: "S", Side: model.SideNo}

	err := run(t, st, func(l *ledger.Ledger) error {
		return l.ReserveTokens(key, 1)
	})
	if !errors.Is(err, ledger.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestTransferTokens_MoreThanLocked(t *testing.T) {
	st := newStore(t, "alice", "bob")
	key := model.TokenKey{UserID: "alice", SymbolID: "S", Side: model.SideYes}

	err := run(t, st, func(l *ledger.Ledger) error {
		return l.TransferTokens(key, "bob", 1)
	})
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation, got %v", err)
	}
}
