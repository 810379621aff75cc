// Package store defines the persistence interface for the settlement engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node development).
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

var (
	ErrUserNotFound   = errors.New("store: user not found")
	ErrUserExists     = errors.New("store: user already exists")
	ErrSymbolNotFound = errors.New("store: symbol not found")
	ErrSymbolExists   = errors.New("store: symbol already exists")
	ErrOrderNotFound  = errors.New("store: order not found")

	// ErrDuplicateDeposit is returned by InsertDeposit when the user has
	// already recorded a deposit with the same reference.
	ErrDuplicateDeposit = errors.New("store: deposit reference already recorded")

	// ErrConflict is returned when a unit of work could not be serialized
	// against concurrent units after all retries.
	ErrConflict = errors.New("store: transaction conflict")
)

// Scope names the lock keys a unit of work touches. Backends that support
// fine-grained locking serialize units whose scopes overlap.
type Scope struct {
	Keys []string
}

// BookScope scopes a unit of work to one symbol/side order book.
func BookScope(symbolID string, side model.Side) Scope {
	return Scope{Keys: []string{"book:" + symbolID + ":" + string(side)}}
}

// UserScope scopes a unit of work to one user's balances.
func UserScope(userID string) Scope {
	return Scope{Keys: []string{"user:" + userID}}
}

// GlobalScope conflicts with every other scope.
var GlobalScope = Scope{Keys: []string{"global"}}

// With returns a scope covering both s and other.
func (s Scope) With(other Scope) Scope {
	keys := make([]string, 0, len(s.Keys)+len(other.Keys))
	keys = append(keys, s.Keys...)
	keys = append(keys, other.Keys...)
	return Scope{Keys: keys}
}

// sortedKeys returns the deduplicated keys in a stable lock order.
func (s Scope) sortedKeys() []string {
	seen := make(map[string]bool, len(s.Keys))
	out := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Store is the persistence interface. Every mutation happens inside Atomic;
// the remaining methods are read-side queries.
type Store interface {
	// Atomic runs fn as one serializable unit of work. If fn returns an
	// error, none of its writes become visible. fn must not call back into
	// the Store.
	Atomic(ctx context.Context, scope Scope, fn func(tx Tx) error) error

	// --- Read side ---

	Users(ctx context.Context) ([]model.User, error)
	Symbols(ctx context.Context) ([]model.Symbol, error)

	// OpenOrders returns every OPEN or PARTIALLY_FILLED order.
	OpenOrders(ctx context.Context) ([]model.Order, error)

	CashAccounts(ctx context.Context) ([]model.CashAccount, error)
	TokenAccounts(ctx context.Context) ([]model.TokenAccount, error)

	// Trades returns the trades of one symbol in execution order.
	Trades(ctx context.Context, symbolID string) ([]model.Trade, error)

	// Reset wipes every entity. Test and environment reset only.
	Reset(ctx context.Context) error
}

// Tx is a unit of work. It is only valid inside the Atomic callback that
// produced it.
type Tx interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	CreateSymbol(ctx context.Context, s *model.Symbol) error
	GetSymbol(ctx context.Context, id string) (*model.Symbol, error)

	// GetCashAccount returns ErrUserNotFound when the user has no account.
	GetCashAccount(ctx context.Context, userID string) (model.CashAccount, error)
	PutCashAccount(ctx context.Context, acct model.CashAccount) error

	// GetTokenAccount returns a zero-valued account when none exists yet.
	GetTokenAccount(ctx context.Context, key model.TokenKey) (model.TokenAccount, error)
	PutTokenAccount(ctx context.Context, acct model.TokenAccount) error

	// InsertOrder stores o and assigns o.Seq.
	InsertOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error

	// FindCounterOrders returns the eligible counter orders best first:
	// price priority, then creation time, then insert sequence.
	FindCounterOrders(ctx context.Context, q model.CounterQuery) ([]model.Order, error)

	// FindRestingOrder returns the oldest resting order matching m, or
	// ErrOrderNotFound.
	FindRestingOrder(ctx context.Context, m model.OrderMatch) (*model.Order, error)

	InsertTrade(ctx context.Context, t *model.Trade) error
	InsertMint(ctx context.Context, m *model.Mint) error
	InsertDeposit(ctx context.Context, d *model.Deposit) error
}
