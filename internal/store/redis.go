package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

const cachePrefix = "probo:"

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Units of work go to the primary store and invalidate the cached
// views they may have changed; reads check Redis first then fall back to the
// primary.
//
// Every invalidation bumps a generation counter. A reader only writes its
// snapshot back if the generation it saw before loading is still current,
// so a snapshot taken before a commit never outlives that commit's
// invalidation.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write path (primary, then invalidate) ---

func (s *CachedStore) Atomic(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	if err := s.primary.Atomic(ctx, scope, fn); err != nil {
		return err
	}
	s.invalidate(ctx, scope)
	return nil
}

func (s *CachedStore) Reset(ctx context.Context) error {
	if err := s.primary.Reset(ctx); err != nil {
		return err
	}
	if err := s.rdb.Incr(ctx, generationKey).Err(); err != nil {
		slog.Warn("cache generation bump failed", "err", err)
	}
	iter := s.rdb.Scan(ctx, 0, cachePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if iter.Val() == generationKey {
			continue
		}
		s.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache flush failed", "err", err)
	}
	return nil
}

// invalidate drops every view a unit of work in scope may have touched.
// Account and order views are global; trade lists are per symbol.
func (s *CachedStore) invalidate(ctx context.Context, scope Scope) {
	keys := []string{usersKey, symbolsKey, openOrdersKey, cashKey, tokensKey}
	for _, k := range scope.Keys {
		if rest, ok := strings.CutPrefix(k, "book:"); ok {
			if i := strings.LastIndex(rest, ":"); i > 0 {
				keys = append(keys, tradesKey(rest[:i]))
			}
		}
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "err", err)
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Users(ctx context.Context) ([]model.User, error) {
	return readThrough(ctx, s, usersKey, s.primary.Users)
}

func (s *CachedStore) Symbols(ctx context.Context) ([]model.Symbol, error) {
	return readThrough(ctx, s, symbolsKey, s.primary.Symbols)
}

func (s *CachedStore) OpenOrders(ctx context.Context) ([]model.Order, error) {
	return readThrough(ctx, s, openOrdersKey, s.primary.OpenOrders)
}

func (s *CachedStore) CashAccounts(ctx context.Context) ([]model.CashAccount, error) {
	return readThrough(ctx, s, cashKey, s.primary.CashAccounts)
}

func (s *CachedStore) TokenAccounts(ctx context.Context) ([]model.TokenAccount, error) {
	return readThrough(ctx, s, tokensKey, s.primary.TokenAccounts)
}

func (s *CachedStore) Trades(ctx context.Context, symbolID string) ([]model.Trade, error) {
	return readThrough(ctx, s, tradesKey(symbolID), func(ctx context.Context) ([]model.Trade, error) {
		return s.primary.Trades(ctx, symbolID)
	})
}

// --- Cache helpers ---

func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v []T
		if json.Unmarshal(data, &v) == nil {
			return v, nil
		}
	}

	// Cache miss: read from primary.
	gen, err := generation(ctx, s.rdb)
	if err != nil {
		return load(ctx)
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(v)
	if err != nil {
		return v, nil
	}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := generation(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, generationKey)
	if err != nil && !errors.Is(err, errStaleSnapshot) && !errors.Is(err, redis.TxFailedErr) {
		slog.Warn("cache fill failed", "key", key, "err", err)
	}
	return v, nil
}

// errStaleSnapshot marks a load that raced with an invalidation.
var errStaleSnapshot = errors.New("store: cache generation moved")

// generation returns the current invalidation generation; 0 when unset.
// c is the client or a watching transaction.
func generation(ctx context.Context, c interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}) (int64, error) {
	gen, err := c.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

const (
	usersKey      = cachePrefix + "users"
	symbolsKey    = cachePrefix + "symbols"
	openOrdersKey = cachePrefix + "orders:open"
	cashKey       = cachePrefix + "accounts:cash"
	tokensKey     = cachePrefix + "accounts:tokens"
	generationKey = cachePrefix + "generation"
)

func tradesKey(symbolID string) string { return fmt.Sprintf("%strades:%s", cachePrefix, symbolID) }
