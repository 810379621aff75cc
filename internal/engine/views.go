package engine

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/view"
)

func (e *Engine) Users(ctx context.Context) ([]model.User, error) {
	return e.store.Users(ctx)
}

func (e *Engine) Symbols(ctx context.Context) ([]model.Symbol, error) {
	return e.store.Symbols(ctx)
}

// OrderBook aggregates every resting order of every symbol.
func (e *Engine) OrderBook(ctx context.Context) (view.OrderBook, error) {
	symbols, err := e.store.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	return view.BuildOrderBook(symbols, orders), nil
}

// Depth returns the bid and ask ladders of one symbol/side book.
func (e *Engine) Depth(ctx context.Context, symbolID string, side model.Side) (*view.Depth, error) {
	if err := e.knownSymbol(ctx, symbolID); err != nil {
		return nil, err
	}
	orders, err := e.store.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	d := view.BuildDepth(orders, symbolID, side)
	return &d, nil
}

func (e *Engine) Balances(ctx context.Context) (*view.Balances, error) {
	cash, err := e.store.CashAccounts(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := e.store.TokenAccounts(ctx)
	if err != nil {
		return nil, err
	}
	b := view.BuildBalances(cash, tokens)
	return &b, nil
}

// Trades returns a symbol's trades in execution order.
func (e *Engine) Trades(ctx context.Context, symbolID string) ([]model.Trade, error) {
	if err := e.knownSymbol(ctx, symbolID); err != nil {
		return nil, err
	}
	trades, err := e.store.Trades(ctx, symbolID)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return trades, nil
}

func (e *Engine) knownSymbol(ctx context.Context, symbolID string) error {
	symbols, err := e.store.Symbols(ctx)
	if err != nil {
		return err
	}
	if !lo.ContainsBy(symbols, func(s model.Symbol) bool { return s.ID == symbolID }) {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, symbolID)
	}
	return nil
}
