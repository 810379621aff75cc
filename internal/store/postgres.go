package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// maxTxAttempts bounds how often a unit of work is retried after a
// serialization failure before ErrConflict is returned.
const maxTxAttempts = 5

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Each unit of work is a SERIALIZABLE transaction that also takes
// transaction-scoped advisory locks on its scope keys.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Atomic(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	keys := scope.sortedKeys()

	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, keys, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == maxTxAttempts {
			return fmt.Errorf("%w: %d attempts: %v", ErrConflict, attempt, err)
		}
		slog.Warn("retrying serializable transaction", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
}

func (s *PostgresStore) runTx(ctx context.Context, keys []string, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return err
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (s *PostgresStore) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) Symbols(ctx context.Context) ([]model.Symbol, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, base_asset, quote_asset, expires_at, status, created_at
		 FROM symbols ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		if err := rows.Scan(&sym.ID, &sym.BaseAsset, &sym.QuoteAsset,
			&sym.ExpiresAt, &sym.Status, &sym.CreatedAt); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

const orderColumns = `id, seq, user_id, symbol_id, side, direction, quantity,
	remaining, price, status, created_at, updated_at`

func (s *PostgresStore) OpenOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status IN ('OPEN', 'PARTIALLY_FILLED') ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (s *PostgresStore) CashAccounts(ctx context.Context) ([]model.CashAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, available, locked FROM cash_accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []model.CashAccount
	for rows.Next() {
		var a model.CashAccount
		if err := rows.Scan(&a.UserID, &a.Available, &a.Locked); err != nil {
			return nil, err
		}
		accts = append(accts, a)
	}
	return accts, rows.Err()
}

func (s *PostgresStore) TokenAccounts(ctx context.Context) ([]model.TokenAccount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol_id, side, available, locked
		 FROM token_accounts ORDER BY user_id, symbol_id, side`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []model.TokenAccount
	for rows.Next() {
		var a model.TokenAccount
		var side string
		if err := rows.Scan(&a.UserID, &a.SymbolID, &side, &a.Available, &a.Locked); err != nil {
			return nil, err
		}
		a.Side = model.Side(side)
		accts = append(accts, a)
	}
	return accts, rows.Err()
}

func (s *PostgresStore) Trades(ctx context.Context, symbolID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol_id, side, buyer_id, seller_id, buyer_order_id,
		        seller_order_id, quantity, price, created_at
		 FROM trades WHERE symbol_id = $1 ORDER BY seq`, symbolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.SymbolID, &side, &t.BuyerID, &t.SellerID,
			&t.BuyerOrderID, &t.SellerOrderID, &t.Quantity, &t.Price, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`TRUNCATE trades, orders, token_accounts, deposits, cash_accounts,
		          mints, symbols, users RESTART IDENTITY CASCADE`)
	return err
}

// pgTx implements Tx on top of one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO users (id, created_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		u.ID, u.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO cash_accounts (user_id) VALUES ($1)`, u.ID)
	return err
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := t.tx.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (t *pgTx) CreateSymbol(ctx context.Context, sym *model.Symbol) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO symbols (id, base_asset, quote_asset, expires_at, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		sym.ID, sym.BaseAsset, sym.QuoteAsset, sym.ExpiresAt, sym.Status, sym.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSymbolExists, sym.ID)
	}
	return nil
}

func (t *pgTx) GetSymbol(ctx context.Context, id string) (*model.Symbol, error) {
	var sym model.Symbol
	err := t.tx.QueryRow(ctx,
		`SELECT id, base_asset, quote_asset, expires_at, status, created_at
		 FROM symbols WHERE id = $1`, id).
		Scan(&sym.ID, &sym.BaseAsset, &sym.QuoteAsset, &sym.ExpiresAt, &sym.Status, &sym.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get symbol %s: %w", id, err)
	}
	return &sym, nil
}

func (t *pgTx) GetCashAccount(ctx context.Context, userID string) (model.CashAccount, error) {
	a := model.CashAccount{UserID: userID}
	err := t.tx.QueryRow(ctx,
		`SELECT available, locked FROM cash_accounts WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&a.Available, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CashAccount{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return model.CashAccount{}, fmt.Errorf("get cash account %s: %w", userID, err)
	}
	return a, nil
}

func (t *pgTx) PutCashAccount(ctx context.Context, a model.CashAccount) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE cash_accounts SET available = $2, locked = $3 WHERE user_id = $1`,
		a.UserID, a.Available, a.Locked)
	return err
}

func (t *pgTx) GetTokenAccount(ctx context.Context, key model.TokenKey) (model.TokenAccount, error) {
	a := model.TokenAccount{TokenKey: key}
	err := t.tx.QueryRow(ctx,
		`SELECT available, locked FROM token_accounts
		 WHERE user_id = $1 AND symbol_id = $2 AND side = $3 FOR UPDATE`,
		key.UserID, key.SymbolID, string(key.Side)).
		Scan(&a.Available, &a.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, nil
	}
	if err != nil {
		return model.TokenAccount{}, fmt.Errorf("get token account %v: %w", key, err)
	}
	return a, nil
}

func (t *pgTx) PutTokenAccount(ctx context.Context, a model.TokenAccount) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO token_accounts (user_id, symbol_id, side, available, locked)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, symbol_id, side)
		 DO UPDATE SET available = EXCLUDED.available, locked = EXCLUDED.locked`,
		a.UserID, a.SymbolID, string(a.Side), a.Available, a.Locked)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO orders (id, user_id, symbol_id, side, direction, quantity,
		                     remaining, price, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING seq`,
		o.ID, o.UserID, o.SymbolID, string(o.Side), string(o.Direction), o.Quantity,
		o.Remaining, o.Price, string(o.Status), o.CreatedAt, o.UpdatedAt).
		Scan(&o.Seq)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET remaining = $2, status = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.Remaining, string(o.Status), o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	return nil
}

func (t *pgTx) FindCounterOrders(ctx context.Context, q model.CounterQuery) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		 WHERE symbol_id = $1 AND side = $2 AND direction = $3
		   AND status IN ('OPEN', 'PARTIALLY_FILLED')`
	if q.Direction == model.Buy {
		query += ` AND price <= $4 ORDER BY price ASC, created_at ASC, seq ASC FOR UPDATE`
	} else {
		query += ` AND price >= $4 ORDER BY price DESC, created_at ASC, seq ASC FOR UPDATE`
	}

	rows, err := t.tx.Query(ctx, query,
		q.SymbolID, string(q.Side), string(q.Direction.Opposite()), q.LimitPrice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (t *pgTx) FindRestingOrder(ctx context.Context, m model.OrderMatch) (*model.Order, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 AND symbol_id = $2 AND side = $3 AND direction = $4
		   AND price = $5 AND remaining = $6
		   AND status IN ('OPEN', 'PARTIALLY_FILLED')
		 ORDER BY seq LIMIT 1 FOR UPDATE`,
		m.UserID, m.SymbolID, string(m.Side), string(m.Direction), m.Price, m.Remaining)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, symbol_id, side, buyer_id, seller_id, buyer_order_id,
		                     seller_order_id, quantity, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.SymbolID, string(tr.Side), tr.BuyerID, tr.SellerID, tr.BuyerOrderID,
		tr.SellerOrderID, tr.Quantity, tr.Price, tr.CreatedAt)
	return err
}

func (t *pgTx) InsertMint(ctx context.Context, m *model.Mint) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO mints (id, user_id, symbol_id, quantity, price, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.UserID, m.SymbolID, m.Quantity, m.Price, m.Cost, m.CreatedAt)
	return err
}

func (t *pgTx) InsertDeposit(ctx context.Context, d *model.Deposit) error {
	var ref *string
	if d.Reference != "" {
		ref = &d.Reference
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO deposits (id, user_id, amount, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id, reference) DO NOTHING`,
		d.ID, d.UserID, d.Amount, ref, d.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateDeposit, d.Reference)
	}
	return nil
}

func scanOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var side, direction, status string
		if err := rows.Scan(&o.ID, &o.Seq, &o.UserID, &o.SymbolID, &side, &direction,
			&o.Quantity, &o.Remaining, &o.Price, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Side = model.Side(side)
		o.Direction = model.Direction(direction)
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
