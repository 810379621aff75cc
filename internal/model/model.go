// Package model defines the core domain types shared across the settlement
// engine. All quantities, prices and balances are int64, never float64 for
// money.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Side is the binary outcome token a balance or order refers to.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Sides lists both outcome tokens in a fixed order.
var Sides = []Side{SideYes, SideNo}

// Direction is the BUY or SELL intent of an order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the counter direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// Resting reports whether an order with this status is still on the book.
func (s OrderStatus) Resting() bool {
	return s == StatusOpen || s == StatusPartiallyFilled
}

// SymbolActive is the only symbol status the engine creates.
const SymbolActive = "active"

var (
	ErrInvalidSide      = errors.New("model: side must be yes or no")
	ErrInvalidDirection = errors.New("model: direction must be BUY or SELL")

	// ErrIllegalFill is returned when a fill would overfill an order or
	// touch one that is no longer resting.
	ErrIllegalFill = errors.New("model: illegal order fill")
)

// ParseSide parses a token side case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// ParseDirection parses an order direction case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// User is a trading participant. Immutable once created.
type User struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Symbol is a tradable binary instrument. Immutable once created.
type Symbol struct {
	ID         string    `json:"id" db:"id"`
	BaseAsset  string    `json:"base_asset" db:"base_asset"`
	QuoteAsset string    `json:"quote_asset" db:"quote_asset"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// CashAccount holds a user's cash. Both fields are never negative.
type CashAccount struct {
	UserID    string `json:"user_id" db:"user_id"`
	Available int64  `json:"available" db:"available"`
	Locked    int64  `json:"locked" db:"locked"`
}

// TokenKey identifies one token balance.
type TokenKey struct {
	UserID   string `json:"user_id" db:"user_id"`
	SymbolID string `json:"symbol_id" db:"symbol_id"`
	Side     Side   `json:"side" db:"side"`
}

// TokenAccount holds a user's yes or no tokens for one symbol.
type TokenAccount struct {
	TokenKey
	Available int64 `json:"available" db:"available"`
	Locked    int64 `json:"locked" db:"locked"`
}

// Order is a limit order and its lifecycle state.
type Order struct {
	ID        string      `json:"id" db:"id"`
	Seq       int64       `json:"seq" db:"seq"` // store-assigned insert sequence
	UserID    string      `json:"user_id" db:"user_id"`
	SymbolID  string      `json:"symbol_id" db:"symbol_id"`
	Side      Side        `json:"side" db:"side"`
	Direction Direction   `json:"direction" db:"direction"`
	Quantity  int64       `json:"quantity" db:"quantity"`
	Remaining int64       `json:"remaining" db:"remaining"`
	Price     int64       `json:"price" db:"price"`
	Status    OrderStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Fill decrements the remaining quantity and derives the new status.
func (o *Order) Fill(qty int64) error {
	if !o.Status.Resting() || qty <= 0 || qty > o.Remaining {
		return fmt.Errorf("%w: order %s status=%s remaining=%d fill=%d",
			ErrIllegalFill, o.ID, o.Status, o.Remaining, qty)
	}
	o.Remaining -= qty
	if o.Remaining == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// Trade is an immutable settlement record. Price is always the resting
// (maker) order's price.
type Trade struct {
	ID            string    `json:"id" db:"id"`
	SymbolID      string    `json:"symbol_id" db:"symbol_id"`
	Side          Side      `json:"side" db:"side"`
	BuyerID       string    `json:"buyer_id" db:"buyer_id"`
	SellerID      string    `json:"seller_id" db:"seller_id"`
	BuyerOrderID  string    `json:"buyer_order_id" db:"buyer_order_id"`
	SellerOrderID string    `json:"seller_order_id" db:"seller_order_id"`
	Quantity      int64     `json:"quantity" db:"quantity"`
	Price         int64     `json:"price" db:"price"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Mint records cash collateral converted into a yes/no token pair.
type Mint struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	SymbolID  string    `json:"symbol_id" db:"symbol_id"`
	Quantity  int64     `json:"quantity" db:"quantity"`
	Price     int64     `json:"price" db:"price"`
	Cost      int64     `json:"cost" db:"cost"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Deposit records a funding event. Reference is optional; when set it is
// unique per user and makes the deposit idempotent.
type Deposit struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Reference string    `json:"reference,omitempty" db:"reference"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CounterQuery selects resting orders that an incoming order may trade with.
type CounterQuery struct {
	SymbolID   string
	Side       Side
	Direction  Direction // direction of the incoming order
	LimitPrice int64
}

// Accepts reports whether a resting order is an eligible counter order.
func (q CounterQuery) Accepts(o *Order) bool {
	if o.SymbolID != q.SymbolID || o.Side != q.Side || !o.Status.Resting() {
		return false
	}
	if o.Direction != q.Direction.Opposite() {
		return false
	}
	if q.Direction == Buy {
		return o.Price <= q.LimitPrice
	}
	return o.Price >= q.LimitPrice
}

// Better reports whether a ranks ahead of b for this query: best price
// first, then earliest creation, then insert sequence.
func (q CounterQuery) Better(a, b *Order) bool {
	if a.Price != b.Price {
		if q.Direction == Buy {
			return a.Price < b.Price
		}
		return a.Price > b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// OrderMatch identifies a resting order by its full tuple, as used by
// cancellation.
type OrderMatch struct {
	UserID    string
	SymbolID  string
	Side      Side
	Direction Direction
	Price     int64
	Remaining int64
}

// Matches reports whether o is resting and matches every field.
func (m OrderMatch) Matches(o *Order) bool {
	return o.Status.Resting() &&
		o.UserID == m.UserID &&
		o.SymbolID == m.SymbolID &&
		o.Side == m.Side &&
		o.Direction == m.Direction &&
		o.Price == m.Price &&
		o.Remaining == m.Remaining
}
