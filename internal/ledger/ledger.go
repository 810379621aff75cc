// Package ledger owns every cash and token balance mutation.
//
// A Ledger is bound to one store unit of work. Each method reads the
// affected accounts, applies the change, re-checks that no field went
// negative and writes the accounts back. Nothing else writes accounts.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")

	// ErrInvariantViolation is returned instead of persisting a negative
	// balance or releasing more than is locked. It indicates a bug.
	ErrInvariantViolation = errors.New("ledger: invariant violation")
)

// Ledger applies balance changes inside one unit of work.
type Ledger struct {
	ctx context.Context
	tx  store.Tx
}

// New binds a ledger to tx.
func New(ctx context.Context, tx store.Tx) *Ledger {
	return &Ledger{ctx: ctx, tx: tx}
}

// Deposit credits available cash.
func (l *Ledger) Deposit(userID string, amount int64) (model.CashAccount, error) {
	if amount <= 0 {
		return model.CashAccount{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	acct, err := l.tx.GetCashAccount(l.ctx, userID)
	if err != nil {
		return model.CashAccount{}, err
	}
	acct.Available += amount
	if err := l.putCash(acct); err != nil {
		return model.CashAccount{}, err
	}
	return acct, nil
}

// ReserveCash moves amount from available to locked.
func (l *Ledger) ReserveCash(userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	acct, err := l.tx.GetCashAccount(l.ctx, userID)
	if err != nil {
		return err
	}
	if acct.Available < amount {
		return fmt.Errorf("%w: user %s has %d, needs %d", ErrInsufficientFunds, userID, acct.Available, amount)
	}
	acct.Available -= amount
	acct.Locked += amount
	return l.putCash(acct)
}

// ReleaseCash moves amount from locked back to available.
func (l *Ledger) ReleaseCash(userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	acct, err := l.tx.GetCashAccount(l.ctx, userID)
	if err != nil {
		return err
	}
	if acct.Locked < amount {
		return fmt.Errorf("%w: release %d from user %s with %d locked", ErrInvariantViolation, amount, userID, acct.Locked)
	}
	acct.Locked -= amount
	acct.Available += amount
	return l.putCash(acct)
}

// SettleCash pays amount out of the payer's locked cash into the payee's
// available cash. Zero is a no-op.
func (l *Ledger) SettleCash(payerID, payeeID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount == 0 {
		return nil
	}

	payer, err := l.tx.GetCashAccount(l.ctx, payerID)
	if err != nil {
		return err
	}
	if payer.Locked < amount {
		return fmt.Errorf("%w: settle %d from user %s with %d locked", ErrInvariantViolation, amount, payerID, payer.Locked)
	}
	payer.Locked -= amount
	if err := l.putCash(payer); err != nil {
		return err
	}

	// Read the payee after writing the payer so a self-trade sees its own
	// debit.
	payee, err := l.tx.GetCashAccount(l.ctx, payeeID)
	if err != nil {
		return err
	}
	payee.Available += amount
	return l.putCash(payee)
}

// ReserveTokens moves qty tokens from available to locked.
func (l *Ledger) ReserveTokens(key model.TokenKey, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, qty)
	}
	acct, err := l.tx.GetTokenAccount(l.ctx, key)
	if err != nil {
		return err
	}
	if acct.Available < qty {
		return fmt.Errorf("%w: user %s has %d %s %s, needs %d",
			ErrInsufficientStock, key.UserID, acct.Available, key.SymbolID, key.Side, qty)
	}
	acct.Available -= qty
	acct.Locked += qty
	return l.putTokens(acct)
}

// ReleaseTokens moves qty tokens from locked back to available.
func (l *Ledger) ReleaseTokens(key model.TokenKey, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, qty)
	}
	acct, err := l.tx.GetTokenAccount(l.ctx, key)
	if err != nil {
		return err
	}
	if acct.Locked < qty {
		return fmt.Errorf("%w: release %d tokens from %v with %d locked", ErrInvariantViolation, qty, key, acct.Locked)
	}
	acct.Locked -= qty
	acct.Available += qty
	return l.putTokens(acct)
}

// TransferTokens moves qty locked tokens of from into toUser's available
// balance of the same symbol and side.
func (l *Ledger) TransferTokens(from model.TokenKey, toUserID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, qty)
	}
	src, err := l.tx.GetTokenAccount(l.ctx, from)
	if err != nil {
		return err
	}
	if src.Locked < qty {
		return fmt.Errorf("%w: transfer %d tokens from %v with %d locked", ErrInvariantViolation, qty, from, src.Locked)
	}
	src.Locked -= qty
	if err := l.putTokens(src); err != nil {
		return err
	}

	to := model.TokenKey{UserID: toUserID, SymbolID: from.SymbolID, Side: from.Side}
	dst, err := l.tx.GetTokenAccount(l.ctx, to)
	if err != nil {
		return err
	}
	dst.Available += qty
	return l.putTokens(dst)
}

// MintDebit charges cost from available cash and credits qty tokens of
// both sides of symbolID.
func (l *Ledger) MintDebit(userID, symbolID string, qty, cost int64) (model.CashAccount, error) {
	if qty <= 0 || cost <= 0 {
		return model.CashAccount{}, fmt.Errorf("%w: qty=%d cost=%d", ErrInvalidAmount, qty, cost)
	}
	acct, err := l.tx.GetCashAccount(l.ctx, userID)
	if err != nil {
		return model.CashAccount{}, err
	}
	if acct.Available < cost {
		return model.CashAccount{}, fmt.Errorf("%w: user %s has %d, mint costs %d", ErrInsufficientFunds, userID, acct.Available, cost)
	}
	acct.Available -= cost
	if err := l.putCash(acct); err != nil {
		return model.CashAccount{}, err
	}

	for _, side := range model.Sides {
		tok, err := l.tx.GetTokenAccount(l.ctx, model.TokenKey{UserID: userID, SymbolID: symbolID, Side: side})
		if err != nil {
			return model.CashAccount{}, err
		}
		tok.Available += qty
		if err := l.putTokens(tok); err != nil {
			return model.CashAccount{}, err
		}
	}
	return acct, nil
}

func (l *Ledger) putCash(acct model.CashAccount) error {
	if acct.Available < 0 || acct.Locked < 0 {
		return fmt.Errorf("%w: negative cash for user %s (available=%d locked=%d)",
			ErrInvariantViolation, acct.UserID, acct.Available, acct.Locked)
	}
	return l.tx.PutCashAccount(l.ctx, acct)
}

func (l *Ledger) putTokens(acct model.TokenAccount) error {
	if acct.Available < 0 || acct.Locked < 0 {
		return fmt.Errorf("%w: negative tokens for %v (available=%d locked=%d)",
			ErrInvariantViolation, acct.TokenKey, acct.Available, acct.Locked)
	}
	return l.tx.PutTokenAccount(l.ctx, acct)
}
