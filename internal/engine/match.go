package engine

import (
	"context"
	"fmt"

	"github.com/RutamBhagat/project-1-probo-v0/internal/ledger"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
)

// matchBuy walks the eligible resting sells best first and fills order
// against them. reserved is the cash locked for the order on placement.
//
// For each fill the buyer's locked cash pays the seller at the resting
// price and the seller's locked tokens move to the buyer. Afterwards the
// buyer keeps remaining × limit price locked and gets the rest back.
func (e *Engine) matchBuy(ctx context.Context, tx store.Tx, l *ledger.Ledger, order *model.Order, reserved int64) (*BuyResult, error) {
	counters, err := tx.FindCounterOrders(ctx, model.CounterQuery{
		SymbolID:   order.SymbolID,
		Side:       order.Side,
		Direction:  model.Buy,
		LimitPrice: order.Price,
	})
	if err != nil {
		return nil, err
	}

	result := &BuyResult{OrderID: order.ID, Trades: []model.Trade{}}
	var spent int64

	for i := range counters {
		if order.Remaining == 0 {
			break
		}
		sell := &counters[i]
		qty := min(order.Remaining, sell.Remaining)
		price := sell.Price
		cost := qty * price // ≤ qty × limit price, cannot overflow

		if err := l.SettleCash(order.UserID, sell.UserID, cost); err != nil {
			return nil, err
		}
		sellerKey := model.TokenKey{UserID: sell.UserID, SymbolID: sell.SymbolID, Side: sell.Side}
		if err := l.TransferTokens(sellerKey, order.UserID, qty); err != nil {
			return nil, err
		}

		now := e.now()
		if err := sell.Fill(qty); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		sell.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, sell); err != nil {
			return nil, err
		}
		if err := order.Fill(qty); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		order.UpdatedAt = now

		trade := model.Trade{
			ID:            e.newID(),
			SymbolID:      order.SymbolID,
			Side:          order.Side,
			BuyerID:       order.UserID,
			SellerID:      sell.UserID,
			BuyerOrderID:  order.ID,
			SellerOrderID: sell.ID,
			Quantity:      qty,
			Price:         price,
			CreatedAt:     now,
		}
		if err := tx.InsertTrade(ctx, &trade); err != nil {
			return nil, err
		}
		result.Trades = append(result.Trades, trade)
		result.MatchedPrice = &trade.Price
		spent += cost
	}

	if len(result.Trades) > 0 {
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	if refund := reserved - spent - order.Remaining*order.Price; refund > 0 {
		if err := l.ReleaseCash(order.UserID, refund); err != nil {
			return nil, err
		}
	} else if refund < 0 {
		return nil, fmt.Errorf("%w: order %s spent %d of %d reserved", ErrInvariantViolation, order.ID, spent, reserved)
	}

	result.RemainingQuantity = order.Remaining
	result.Status = order.Status
	return result, nil
}
