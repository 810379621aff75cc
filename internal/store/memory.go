package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Atomic is a single-writer critical section: the write lock is held for
// the whole unit of work and writes are staged until fn succeeds.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]model.User
	symbols     map[string]model.Symbol
	cash        map[string]model.CashAccount
	tokens      map[model.TokenKey]model.TokenAccount
	orders      map[string]model.Order
	trades      []model.Trade
	mints       []model.Mint
	deposits    []model.Deposit
	depositRefs map[depositRef]bool
	seq         int64
}

// depositRef scopes a deposit reference to its user.
type depositRef struct {
	userID    string
	reference string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.clear()
	return s
}

func (s *MemoryStore) clear() {
	s.users = make(map[string]model.User)
	s.symbols = make(map[string]model.Symbol)
	s.cash = make(map[string]model.CashAccount)
	s.tokens = make(map[model.TokenKey]model.TokenAccount)
	s.orders = make(map[string]model.Order)
	s.trades = nil
	s.mints = nil
	s.deposits = nil
	s.depositRefs = make(map[depositRef]bool)
	s.seq = 0
}

func (s *MemoryStore) Atomic(ctx context.Context, _ Scope, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newMemTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) Users(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) Symbols(_ context.Context) ([]model.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]model.Symbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].ID < symbols[j].ID })
	return symbols, nil
}

func (s *MemoryStore) OpenOrders(_ context.Context) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []model.Order
	for _, o := range s.orders {
		if o.Status.Resting() {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders, nil
}

func (s *MemoryStore) CashAccounts(_ context.Context) ([]model.CashAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accts := make([]model.CashAccount, 0, len(s.cash))
	for _, a := range s.cash {
		accts = append(accts, a)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].UserID < accts[j].UserID })
	return accts, nil
}

func (s *MemoryStore) TokenAccounts(_ context.Context) ([]model.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accts := make([]model.TokenAccount, 0, len(s.tokens))
	for _, a := range s.tokens {
		accts = append(accts, a)
	}
	sort.Slice(accts, func(i, j int) bool {
		a, b := accts[i].TokenKey, accts[j].TokenKey
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.SymbolID != b.SymbolID {
			return a.SymbolID < b.SymbolID
		}
		return a.Side < b.Side
	})
	return accts, nil
}

func (s *MemoryStore) Trades(_ context.Context, symbolID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.SymbolID == symbolID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	return nil
}

// memTx stages writes over the committed maps. Reads see staged values
// first. It is only used while the store's write lock is held.
type memTx struct {
	s        *MemoryStore
	users    map[string]model.User
	symbols  map[string]model.Symbol
	cash     map[string]model.CashAccount
	tokens   map[model.TokenKey]model.TokenAccount
	orders   map[string]model.Order
	trades   []model.Trade
	mints    []model.Mint
	deposits []model.Deposit
	seq      int64
}

func newMemTx(s *MemoryStore) *memTx {
	return &memTx{
		s:       s,
		users:   make(map[string]model.User),
		symbols: make(map[string]model.Symbol),
		cash:    make(map[string]model.CashAccount),
		tokens:  make(map[model.TokenKey]model.TokenAccount),
		orders:  make(map[string]model.Order),
		seq:     s.seq,
	}
}

func (tx *memTx) commit() {
	s := tx.s
	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, sym := range tx.symbols {
		s.symbols[id] = sym
	}
	for id, a := range tx.cash {
		s.cash[id] = a
	}
	for k, a := range tx.tokens {
		s.tokens[k] = a
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	s.trades = append(s.trades, tx.trades...)
	s.mints = append(s.mints, tx.mints...)
	for _, d := range tx.deposits {
		s.deposits = append(s.deposits, d)
		if d.Reference != "" {
			s.depositRefs[depositRef{d.UserID, d.Reference}] = true
		}
	}
	s.seq = tx.seq
}

func (tx *memTx) CreateUser(ctx context.Context, u *model.User) error {
	if _, err := tx.GetUser(ctx, u.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	tx.users[u.ID] = *u
	tx.cash[u.ID] = model.CashAccount{UserID: u.ID}
	return nil
}

func (tx *memTx) GetUser(_ context.Context, id string) (*model.User, error) {
	if u, ok := tx.users[id]; ok {
		return &u, nil
	}
	if u, ok := tx.s.users[id]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
}

func (tx *memTx) CreateSymbol(ctx context.Context, sym *model.Symbol) error {
	if _, err := tx.GetSymbol(ctx, sym.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrSymbolExists, sym.ID)
	}
	tx.symbols[sym.ID] = *sym
	return nil
}

func (tx *memTx) GetSymbol(_ context.Context, id string) (*model.Symbol, error) {
	if sym, ok := tx.symbols[id]; ok {
		return &sym, nil
	}
	if sym, ok := tx.s.symbols[id]; ok {
		return &sym, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
}

func (tx *memTx) GetCashAccount(_ context.Context, userID string) (model.CashAccount, error) {
	if a, ok := tx.cash[userID]; ok {
		return a, nil
	}
	if a, ok := tx.s.cash[userID]; ok {
		return a, nil
	}
	return model.CashAccount{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
}

func (tx *memTx) PutCashAccount(_ context.Context, acct model.CashAccount) error {
	tx.cash[acct.UserID] = acct
	return nil
}

func (tx *memTx) GetTokenAccount(_ context.Context, key model.TokenKey) (model.TokenAccount, error) {
	if a, ok := tx.tokens[key]; ok {
		return a, nil
	}
	if a, ok := tx.s.tokens[key]; ok {
		return a, nil
	}
	return model.TokenAccount{TokenKey: key}, nil
}

func (tx *memTx) PutTokenAccount(_ context.Context, acct model.TokenAccount) error {
	tx.tokens[acct.TokenKey] = acct
	return nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *model.Order) error {
	if _, ok := tx.lookupOrder(o.ID); ok {
		return fmt.Errorf("store: order %s already exists", o.ID)
	}
	tx.seq++
	o.Seq = tx.seq
	tx.orders[o.ID] = *o
	return nil
}

func (tx *memTx) UpdateOrder(_ context.Context, o *model.Order) error {
	if _, ok := tx.lookupOrder(o.ID); !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	tx.orders[o.ID] = *o
	return nil
}

func (tx *memTx) lookupOrder(id string) (model.Order, bool) {
	if o, ok := tx.orders[id]; ok {
		return o, true
	}
	o, ok := tx.s.orders[id]
	return o, ok
}

// eachOrder visits every order once, staged version first.
func (tx *memTx) eachOrder(fn func(o model.Order)) {
	for _, o := range tx.orders {
		fn(o)
	}
	for id, o := range tx.s.orders {
		if _, staged := tx.orders[id]; !staged {
			fn(o)
		}
	}
}

func (tx *memTx) FindCounterOrders(_ context.Context, q model.CounterQuery) ([]model.Order, error) {
	var result []model.Order
	tx.eachOrder(func(o model.Order) {
		if q.Accepts(&o) {
			result = append(result, o)
		}
	})
	sort.Slice(result, func(i, j int) bool { return q.Better(&result[i], &result[j]) })
	return result, nil
}

func (tx *memTx) FindRestingOrder(_ context.Context, m model.OrderMatch) (*model.Order, error) {
	var found *model.Order
	tx.eachOrder(func(o model.Order) {
		if !m.Matches(&o) {
			return
		}
		if found == nil || o.Seq < found.Seq {
			o := o
			found = &o
		}
	})
	if found == nil {
		return nil, ErrOrderNotFound
	}
	return found, nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *model.Trade) error {
	tx.trades = append(tx.trades, *t)
	return nil
}

func (tx *memTx) InsertMint(_ context.Context, m *model.Mint) error {
	tx.mints = append(tx.mints, *m)
	return nil
}

func (tx *memTx) InsertDeposit(_ context.Context, d *model.Deposit) error {
	if d.Reference != "" {
		if tx.s.depositRefs[depositRef{d.UserID, d.Reference}] {
			return fmt.Errorf("%w: %s", ErrDuplicateDeposit, d.Reference)
		}
		for _, staged := range tx.deposits {
			if staged.UserID == d.UserID && staged.Reference == d.Reference {
				return fmt.Errorf("%w: %s", ErrDuplicateDeposit, d.Reference)
			}
		}
	}
	tx.deposits = append(tx.deposits, *d)
	return nil
}
