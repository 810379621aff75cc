package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/RutamBhagat/project-1-probo-v0/internal/ledger"
	"github.com/RutamBhagat/project-1-probo-v0/internal/metrics"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
	"github.com/RutamBhagat/project-1-probo-v0/internal/symbol"
)

// CreateUser registers a user with an empty cash account.
func (e *Engine) CreateUser(ctx context.Context, userID string) (*model.User, error) {
	if err := checkID("user", userID); err != nil {
		return nil, e.reject("create_user", err, "user_id", userID)
	}

	u := &model.User{ID: userID, CreatedAt: e.now()}
	err := e.store.Atomic(ctx, store.UserScope(userID), func(tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, e.reject("create_user", err, "user_id", userID)
	}

	slog.Info("user created", "user_id", userID)
	return u, nil
}

// CreateSymbol parses id and registers it as an active symbol.
func (e *Engine) CreateSymbol(ctx context.Context, id string) (*model.Symbol, error) {
	parsed, err := symbol.Parse(id)
	if err != nil {
		return nil, e.reject("create_symbol", err, "symbol_id", id)
	}

	sym := &model.Symbol{
		ID:         parsed.ID,
		BaseAsset:  parsed.BaseAsset,
		QuoteAsset: parsed.QuoteAsset,
		ExpiresAt:  parsed.ExpiresAt,
		Status:     model.SymbolActive,
		CreatedAt:  e.now(),
	}
	err = e.store.Atomic(ctx, store.GlobalScope, func(tx store.Tx) error {
		return tx.CreateSymbol(ctx, sym)
	})
	if err != nil {
		return nil, e.reject("create_symbol", err, "symbol_id", id)
	}

	slog.Info("symbol created", "symbol_id", id, "expires_at", sym.ExpiresAt)
	return sym, nil
}

// DepositResult is the cash account after a deposit. Duplicate is set when
// the reference had already been applied and nothing changed.
type DepositResult struct {
	Account   model.CashAccount `json:"account"`
	Duplicate bool              `json:"duplicate"`
}

// Deposit credits amount to the user's available cash. A non-empty
// reference makes the call idempotent for that user; other users may reuse
// the same reference.
func (e *Engine) Deposit(ctx context.Context, userID string, amount int64, reference string) (*DepositResult, error) {
	args := []any{"user_id", userID, "amount", amount, "reference", reference}

	if err := checkID("user", userID); err != nil {
		return nil, e.reject("deposit", err, args...)
	}
	if amount <= 0 {
		return nil, e.reject("deposit", fmt.Errorf("%w: %d", ErrInvalidAmount, amount), args...)
	}

	dep := model.Deposit{
		ID:        e.newID(),
		UserID:    userID,
		Amount:    amount,
		Reference: reference,
		CreatedAt: e.now(),
	}
	var acct model.CashAccount
	scope := store.UserScope(userID)
	err := e.store.Atomic(ctx, scope, func(tx store.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.InsertDeposit(ctx, &dep); err != nil {
			return err
		}
		a, err := ledger.New(ctx, tx).Deposit(userID, amount)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})

	if errors.Is(err, store.ErrDuplicateDeposit) {
		err = e.store.Atomic(ctx, scope, func(tx store.Tx) error {
			a, err := tx.GetCashAccount(ctx, userID)
			acct = a
			return err
		})
		if err != nil {
			return nil, e.reject("deposit", err, args...)
		}
		slog.Info("duplicate deposit ignored", args...)
		return &DepositResult{Account: acct, Duplicate: true}, nil
	}
	if err != nil {
		return nil, e.reject("deposit", err, args...)
	}

	e.record("deposit", func(r Recorder) error { return r.RecordDeposit(dep) })
	slog.Info("deposit applied", append(args, "available", acct.Available)...)
	return &DepositResult{Account: acct}, nil
}

// MintRequest asks to convert cash into quantity yes/no pairs.
type MintRequest struct {
	UserID   string
	SymbolID string
	Quantity int64
	Price    int64
}

// MintResult carries the mint record and the cash left available.
type MintResult struct {
	Mint      model.Mint `json:"mint"`
	Remaining int64      `json:"remaining_balance"`
}

// Mint charges quantity × price × MintCostSides and credits quantity yes
// and quantity no tokens.
func (e *Engine) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	args := []any{"user_id", req.UserID, "symbol_id", req.SymbolID, "quantity", req.Quantity, "price", req.Price}

	notional, err := checkTuple(req.UserID, req.SymbolID, model.SideYes, req.Quantity, req.Price)
	if err == nil {
		err = e.limiter.CheckOrder(req.Quantity, req.Price)
	}
	if err == nil && notional > math.MaxInt64/e.cfg.MintCostSides {
		err = fmt.Errorf("%w: mint cost overflows", ErrInvalidOrder)
	}
	if err != nil {
		return nil, e.reject("mint", err, args...)
	}

	m := model.Mint{
		ID:        e.newID(),
		UserID:    req.UserID,
		SymbolID:  req.SymbolID,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Cost:      notional * e.cfg.MintCostSides,
		CreatedAt: e.now(),
	}
	var remaining int64
	err = e.store.Atomic(ctx, store.UserScope(req.UserID), func(tx store.Tx) error {
		if err := requireUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := requireSymbol(ctx, tx, req.SymbolID); err != nil {
			return err
		}
		acct, err := ledger.New(ctx, tx).MintDebit(req.UserID, req.SymbolID, req.Quantity, m.Cost)
		if err != nil {
			return err
		}
		remaining = acct.Available
		return tx.InsertMint(ctx, &m)
	})
	if err != nil {
		return nil, e.reject("mint", err, args...)
	}

	metrics.MintedVolume.WithLabelValues(req.SymbolID).Add(float64(req.Quantity))
	e.record("mint", func(r Recorder) error { return r.RecordMint(m) })
	slog.Info("tokens minted", append(args, "cost", m.Cost, "remaining", remaining)...)
	return &MintResult{Mint: m, Remaining: remaining}, nil
}
