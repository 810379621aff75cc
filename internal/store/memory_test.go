package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

func TestMemoryStore_AtomicRollback(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	boom := errors.New("boom")
	err := st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		if err := tx.CreateUser(ctx, &model.User{ID: "alice"}); err != nil {
			return err
		}
		if err := tx.PutCashAccount(ctx, model.CashAccount{UserID: "alice", Available: 100}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	users, _ := st.Users(ctx)
	if len(users) != 0 {
		t.Errorf("rolled back user should not be visible, got %v", users)
	}
	accts, _ := st.CashAccounts(ctx)
	if len(accts) != 0 {
		t.Errorf("rolled back account should not be visible, got %v", accts)
	}
}

func TestMemoryStore_CreateUserDuplicate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	create := func() error {
		return st.Atomic(ctx, UserScope("alice"), func(tx Tx) error {
			return tx.CreateUser(ctx, &model.User{ID: "alice"})
		})
	}
	if err := create(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := create(); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	accts, _ := st.CashAccounts(ctx)
	if len(accts) != 1 || accts[0].Available != 0 || accts[0].Locked != 0 {
		t.Errorf("expected one zero cash account, got %v", accts)
	}
}

func TestMemoryStore_CounterOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now()

	sells := []model.Order{
		{ID: "late-1500", Price: 1500, CreatedAt: now.Add(2 * time.Second)},
		{ID: "early-1500", Price: 1500, CreatedAt: now},
		{ID: "cheap-1400", Price: 1400, CreatedAt: now.Add(3 * time.Second)},
		{ID: "pricey-1600", Price: 1600, CreatedAt: now},
	}
	err := st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		for i := range sells {
			o := sells[i]
			o.SymbolID, o.Side, o.Direction = "S", model.SideYes, model.Sell
			o.Quantity, o.Remaining, o.Status = 10, 10, model.StatusOpen
			if err := tx.InsertOrder(ctx, &o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got []string
	err = st.Atomic(ctx, BookScope("S", model.SideYes), func(tx Tx) error {
		orders, err := tx.FindCounterOrders(ctx, model.CounterQuery{
			SymbolID: "S", Side: model.SideYes, Direction: model.Buy, LimitPrice: 1500,
		})
		for _, o := range orders {
			got = append(got, o.ID)
		}
		return err
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	want := []string{"cheap-1400", "early-1500", "late-1500"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMemoryStore_StagedOrdersVisibleInTx(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		o := &model.Order{ID: "o1", SymbolID: "S", Side: model.SideNo, Direction: model.Buy,
			Quantity: 5, Remaining: 5, Price: 10, Status: model.StatusOpen}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if o.Seq != 1 {
			t.Errorf("expected seq=1, got %d", o.Seq)
		}

		found, err := tx.FindRestingOrder(ctx, model.OrderMatch{
			SymbolID: "S", Side: model.SideNo, Direction: model.Buy, Price: 10, Remaining: 5,
		})
		if err != nil {
			return err
		}
		found.Status = model.StatusCancelled
		return tx.UpdateOrder(ctx, found)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	open, _ := st.OpenOrders(ctx)
	if len(open) != 0 {
		t.Errorf("cancelled order should not be open, got %v", open)
	}
}

func TestMemoryStore_FindRestingOrderOldest(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		for _, id := range []string{"first", "second"} {
			o := &model.Order{ID: id, UserID: "u", SymbolID: "S", Side: model.SideYes, Direction: model.Sell,
				Quantity: 5, Remaining: 5, Price: 10, Status: model.StatusOpen}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := model.OrderMatch{UserID: "u", SymbolID: "S", Side: model.SideYes, Direction: model.Sell, Price: 10, Remaining: 5}
	err = st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		o, err := tx.FindRestingOrder(ctx, m)
		if err != nil {
			return err
		}
		if o.ID != "first" {
			t.Errorf("expected oldest order, got %s", o.ID)
		}

		m.Remaining = 4
		if _, err := tx.FindRestingOrder(ctx, m); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryStore_DuplicateDeposit(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	deposit := func(ref string) error {
		return st.Atomic(ctx, UserScope("alice"), func(tx Tx) error {
			return tx.InsertDeposit(ctx, &model.Deposit{ID: ref + "-id", UserID: "alice", Amount: 1, Reference: ref})
		})
	}
	if err := deposit("wire-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := deposit("wire-1"); !errors.Is(err, ErrDuplicateDeposit) {
		t.Errorf("expected ErrDuplicateDeposit, got %v", err)
	}
	if err := deposit(""); err != nil {
		t.Errorf("deposits without reference are never duplicates, got %v", err)
	}
	if err := deposit(""); err != nil {
		t.Errorf("deposits without reference are never duplicates, got %v", err)
	}
}

func TestMemoryStore_DepositReferencePerUser(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	deposit := func(id, userID string) error {
		return st.Atomic(ctx, UserScope(userID), func(tx Tx) error {
			return tx.InsertDeposit(ctx, &model.Deposit{ID: id, UserID: userID, Amount: 1, Reference: "wire-1"})
		})
	}
	if err := deposit("d1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := deposit("d2", "bob"); err != nil {
		t.Errorf("another user's reference must not conflict, got %v", err)
	}
	if err := deposit("d3", "bob"); !errors.Is(err, ErrDuplicateDeposit) {
		t.Errorf("expected ErrDuplicateDeposit, got %v", err)
	}

	// Same rule for deposits staged in one unit of work.
	err := st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		if err := tx.InsertDeposit(ctx, &model.Deposit{ID: "d4", UserID: "carol", Reference: "wire-2"}); err != nil {
			return err
		}
		return tx.InsertDeposit(ctx, &model.Deposit{ID: "d5", UserID: "dave", Reference: "wire-2"})
	})
	if err != nil {
		t.Errorf("staged deposits of different users must not conflict, got %v", err)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_ = st.Atomic(ctx, GlobalScope, func(tx Tx) error {
		return tx.CreateSymbol(ctx, &model.Symbol{ID: "S"})
	})
	if err := st.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	symbols, _ := st.Symbols(ctx)
	if len(symbols) != 0 {
		t.Errorf("expected no symbols after reset, got %v", symbols)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemoryStore().Atomic(ctx, GlobalScope, func(tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}

func TestScope_SortedKeys(t *testing.T) {
	s := BookScope("S", model.SideYes).With(UserScope("bob")).With(BookScope("S", model.SideYes))
	keys := s.sortedKeys()

	want := []string{"book:S:yes", "user:bob"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("expected %v, got %v", want, keys)
	}
}
