package view

import (
	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

// Level is one rung of a price ladder.
type Level struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// Depth is the price ladder of one symbol/side book. Bids are sorted best
// (highest) first, asks best (lowest) first.
type Depth struct {
	SymbolID string     `json:"symbol_id"`
	Side     model.Side `json:"side"`
	Bids     []Level    `json:"bids"`
	Asks     []Level    `json:"asks"`
	BestBid  *int64     `json:"best_bid"`
	BestAsk  *int64     `json:"best_ask"`
}

// BidComparator orders prices descending.
func BidComparator(a, b interface{}) int {
	return -utils.Int64Comparator(a, b)
}

// AskComparator orders prices ascending.
func AskComparator(a, b interface{}) int {
	return utils.Int64Comparator(a, b)
}

// BuildDepth builds the ladder of symbolID/side from resting orders.
func BuildDepth(orders []model.Order, symbolID string, side model.Side) Depth {
	bids := rbt.NewWith(BidComparator)
	asks := rbt.NewWith(AskComparator)

	for _, o := range orders {
		if o.SymbolID != symbolID || o.Side != side || !o.Status.Resting() || o.Remaining <= 0 {
			continue
		}
		tree := asks
		if o.Direction == model.Buy {
			tree = bids
		}

		lvl := &Level{Price: o.Price}
		if v, found := tree.Get(o.Price); found {
			lvl = v.(*Level)
		} else {
			tree.Put(o.Price, lvl)
		}
		lvl.Quantity += o.Remaining
		lvl.Orders++
	}

	d := Depth{
		SymbolID: symbolID,
		Side:     side,
		Bids:     ladder(bids),
		Asks:     ladder(asks),
	}
	if len(d.Bids) > 0 {
		d.BestBid = &d.Bids[0].Price
	}
	if len(d.Asks) > 0 {
		d.BestAsk = &d.Asks[0].Price
	}
	return d
}

func ladder(tree *rbt.Tree) []Level {
	levels := make([]Level, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		levels = append(levels, *it.Value().(*Level))
	}
	return levels
}
