// Package view builds the read-side projections served by the API: the
// aggregated order book, price ladders and balance sheets. Every function
// here is pure over a snapshot read from the store.
package view

import (
	"strconv"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Total  int64            `json:"total"`
	Orders map[string]int64 `json:"orders"` // user → remaining quantity
}

// SideBook maps a price, rendered as a decimal string, to its level.
type SideBook map[string]*PriceLevel

// OrderBook is symbol → side → price → level.
type OrderBook map[string]map[model.Side]SideBook

// BuildOrderBook aggregates resting orders per symbol, side and price.
// Every symbol gets both a yes and a no entry, empty when nothing rests
// there. Orders of unknown symbols are still included.
func BuildOrderBook(symbols []model.Symbol, orders []model.Order) OrderBook {
	book := make(OrderBook, len(symbols))
	for _, s := range symbols {
		book.ensure(s.ID)
	}

	for _, o := range orders {
		if !o.Status.Resting() || o.Remaining <= 0 {
			continue
		}
		sides := book.ensure(o.SymbolID)
		side, ok := sides[o.Side]
		if !ok {
			continue
		}

		key := strconv.FormatInt(o.Price, 10)
		lvl, ok := side[key]
		if !ok {
			lvl = &PriceLevel{Orders: make(map[string]int64)}
			side[key] = lvl
		}
		lvl.Total += o.Remaining
		lvl.Orders[o.UserID] += o.Remaining
	}
	return book
}

func (b OrderBook) ensure(symbolID string) map[model.Side]SideBook {
	sides, ok := b[symbolID]
	if !ok {
		sides = make(map[model.Side]SideBook, len(model.Sides))
		for _, side := range model.Sides {
			sides[side] = make(SideBook)
		}
		b[symbolID] = sides
	}
	return sides
}
