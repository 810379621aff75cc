package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RutamBhagat/project-1-probo-v0/internal/ledger"
	"github.com/RutamBhagat/project-1-probo-v0/internal/metrics"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
)

// OrderRequest is a limit order for one side of one symbol.
type OrderRequest struct {
	UserID   string
	SymbolID string
	Side     model.Side
	Quantity int64
	Price    int64
}

// BuyResult describes the outcome of a buy placement.
type BuyResult struct {
	OrderID string `json:"order_id"`

	// MatchedPrice is the price of the last trade, nil when nothing matched.
	MatchedPrice      *int64            `json:"matched_price"`
	RemainingQuantity int64             `json:"remaining_quantity"`
	Status            model.OrderStatus `json:"status"`
	Trades            []model.Trade     `json:"trades"`
}

// CancelRequest identifies a resting order by its full tuple. Quantity must
// equal the order's remaining quantity.
type CancelRequest struct {
	UserID    string
	SymbolID  string
	Side      model.Side
	Direction model.Direction
	Quantity  int64
	Price     int64
}

// checkTuple validates the fields shared by placement and cancellation and
// returns the notional.
func checkTuple(userID, symbolID string, side model.Side, qty, price int64) (int64, error) {
	if err := checkID("user", userID); err != nil {
		return 0, err
	}
	if err := checkID("symbol", symbolID); err != nil {
		return 0, err
	}
	if side != model.SideYes && side != model.SideNo {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidSide, side)
	}
	return checkOrder(qty, price)
}

func (e *Engine) checkRequest(req OrderRequest) (int64, error) {
	notional, err := checkTuple(req.UserID, req.SymbolID, req.Side, req.Quantity, req.Price)
	if err != nil {
		return 0, err
	}
	if err := e.limiter.CheckOrder(req.Quantity, req.Price); err != nil {
		return 0, err
	}
	return notional, nil
}

// PlaceBuyOrder reserves quantity × price, rests the order and matches it
// against resting sells in strict price-time priority. Every trade executes
// at the resting sell's price; the price improvement is released back to
// the buyer. The whole placement is one unit of work.
func (e *Engine) PlaceBuyOrder(ctx context.Context, req OrderRequest) (*BuyResult, error) {
	start := time.Now()
	args := []any{"user_id", req.UserID, "symbol_id", req.SymbolID, "side", req.Side,
		"quantity", req.Quantity, "price", req.Price}

	notional, err := e.checkRequest(req)
	if err != nil {
		return nil, e.reject("buy", err, args...)
	}

	var result *BuyResult
	scope := store.BookScope(req.SymbolID, req.Side).With(store.UserScope(req.UserID))
	err = e.store.Atomic(ctx, scope, func(tx store.Tx) error {
		if err := requireUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := requireSymbol(ctx, tx, req.SymbolID); err != nil {
			return err
		}

		l := ledger.New(ctx, tx)
		if err := l.ReserveCash(req.UserID, notional); err != nil {
			return err
		}

		now := e.now()
		order := &model.Order{
			ID:        e.newID(),
			UserID:    req.UserID,
			SymbolID:  req.SymbolID,
			Side:      req.Side,
			Direction: model.Buy,
			Quantity:  req.Quantity,
			Remaining: req.Quantity,
			Price:     req.Price,
			Status:    model.StatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		res, err := e.matchBuy(ctx, tx, l, order, notional)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, e.reject("buy", err, args...)
	}

	metrics.MatchLatency.Observe(time.Since(start).Seconds())
	metrics.OrdersTotal.WithLabelValues(string(model.Buy), string(result.Status)).Inc()
	var matched int64
	for _, t := range result.Trades {
		matched += t.Quantity
	}
	if matched > 0 {
		metrics.TradesTotal.WithLabelValues(string(req.Side)).Add(float64(len(result.Trades)))
		metrics.MatchedVolume.WithLabelValues(req.SymbolID, string(req.Side)).Add(float64(matched))
		e.record("trade", func(r Recorder) error { return r.RecordTrades(result.Trades) })
	}

	slog.Info("buy order placed", append(args,
		"order_id", result.OrderID, "status", result.Status,
		"trades", len(result.Trades), "remaining", result.RemainingQuantity)...)
	return result, nil
}

// PlaceSellOrder locks quantity tokens and rests the order. Sells never
// match on arrival; they execute only when a later buy crosses them.
func (e *Engine) PlaceSellOrder(ctx context.Context, req OrderRequest) (*model.Order, error) {
	args := []any{"user_id", req.UserID, "symbol_id", req.SymbolID, "side", req.Side,
		"quantity", req.Quantity, "price", req.Price}

	if _, err := e.checkRequest(req); err != nil {
		return nil, e.reject("sell", err, args...)
	}

	var order *model.Order
	scope := store.BookScope(req.SymbolID, req.Side).With(store.UserScope(req.UserID))
	err := e.store.Atomic(ctx, scope, func(tx store.Tx) error {
		if err := requireUser(ctx, tx, req.UserID); err != nil {
			return err
		}
		if err := requireSymbol(ctx, tx, req.SymbolID); err != nil {
			return err
		}

		key := model.TokenKey{UserID: req.UserID, SymbolID: req.SymbolID, Side: req.Side}
		if err := ledger.New(ctx, tx).ReserveTokens(key, req.Quantity); err != nil {
			return err
		}

		now := e.now()
		o := &model.Order{
			ID:        e.newID(),
			UserID:    req.UserID,
			SymbolID:  req.SymbolID,
			Side:      req.Side,
			Direction: model.Sell,
			Quantity:  req.Quantity,
			Remaining: req.Quantity,
			Price:     req.Price,
			Status:    model.StatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, e.reject("sell", err, args...)
	}

	metrics.OrdersTotal.WithLabelValues(string(model.Sell), string(order.Status)).Inc()
	slog.Info("sell order placed", append(args, "order_id", order.ID)...)
	return order, nil
}

// CancelOrder cancels the oldest resting order matching req and releases
// what it had locked: tokens for a sell, quantity × price cash for a buy.
func (e *Engine) CancelOrder(ctx context.Context, req CancelRequest) (*model.Order, error) {
	args := []any{"user_id", req.UserID, "symbol_id", req.SymbolID, "side", req.Side,
		"direction", req.Direction, "quantity", req.Quantity, "price", req.Price}

	notional, err := checkTuple(req.UserID, req.SymbolID, req.Side, req.Quantity, req.Price)
	if err == nil && req.Direction != model.Buy && req.Direction != model.Sell {
		err = fmt.Errorf("%w: %q", model.ErrInvalidDirection, req.Direction)
	}
	if err != nil {
		return nil, e.reject("cancel", err, args...)
	}

	var cancelled *model.Order
	scope := store.BookScope(req.SymbolID, req.Side).With(store.UserScope(req.UserID))
	err = e.store.Atomic(ctx, scope, func(tx store.Tx) error {
		o, err := tx.FindRestingOrder(ctx, model.OrderMatch{
			UserID:    req.UserID,
			SymbolID:  req.SymbolID,
			Side:      req.Side,
			Direction: req.Direction,
			Price:     req.Price,
			Remaining: req.Quantity,
		})
		if err != nil {
			return err
		}

		o.Status = model.StatusCancelled
		o.UpdatedAt = e.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		l := ledger.New(ctx, tx)
		if req.Direction == model.Sell {
			key := model.TokenKey{UserID: req.UserID, SymbolID: req.SymbolID, Side: req.Side}
			err = l.ReleaseTokens(key, req.Quantity)
		} else {
			err = l.ReleaseCash(req.UserID, notional)
		}
		if err != nil {
			return fmt.Errorf("release order %s: %w", o.ID, err)
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, e.reject("cancel", err, args...)
	}

	slog.Info("order cancelled", append(args, "order_id", cancelled.ID)...)
	return cancelled, nil
}
