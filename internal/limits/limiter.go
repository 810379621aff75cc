// Package limits implements pre-trade order limits.
//
// Limits are checked before a unit of work starts, so a rejected order never
// reserves funds or touches the book.
package limits

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrQuantityLimitExceeded is returned when a single order asks for more
	// tokens than the per-order maximum.
	ErrQuantityLimitExceeded = errors.New("limits: order quantity limit exceeded")

	// ErrNotionalLimitExceeded is returned when quantity × price of a single
	// order exceeds the per-order notional maximum.
	ErrNotionalLimitExceeded = errors.New("limits: order notional limit exceeded")
)

// OrderLimiter enforces per-order size limits. A zero limit is disabled.
type OrderLimiter struct {
	// MaxQuantity is the largest token quantity a single order may carry.
	MaxQuantity int64

	// MaxNotional is the largest quantity × price a single order may carry,
	// in the smallest cash unit.
	MaxNotional int64
}

// NewOrderLimiter creates a limiter. Negative limits are treated as disabled.
func NewOrderLimiter(maxQuantity, maxNotional int64) *OrderLimiter {
	return &OrderLimiter{
		MaxQuantity: max(maxQuantity, 0),
		MaxNotional: max(maxNotional, 0),
	}
}

// CheckOrder validates an order of qty tokens at price. A nil limiter
// accepts everything.
//
// The notional is computed in arbitrary precision so that an order whose
// quantity × price overflows int64 is still reported as over the limit.
func (l *OrderLimiter) CheckOrder(qty, price int64) error {
	if l == nil {
		return nil
	}

	if l.MaxQuantity > 0 && qty > l.MaxQuantity {
		return fmt.Errorf("%w: quantity %d > %d", ErrQuantityLimitExceeded, qty, l.MaxQuantity)
	}

	if l.MaxNotional > 0 {
		notional := decimal.NewFromInt(qty).Mul(decimal.NewFromInt(price))
		if notional.GreaterThan(decimal.NewFromInt(l.MaxNotional)) {
			return fmt.Errorf("%w: notional %s > %d", ErrNotionalLimitExceeded, notional, l.MaxNotional)
		}
	}

	return nil
}
