package engine

import (
	"fmt"
	"math"
	"strings"
)

// checkOrder validates quantity and price and returns the notional
// quantity × price.
func checkOrder(qty, price int64) (int64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, qty)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive, got %d", ErrInvalidOrder, price)
	}
	if qty > math.MaxInt64/price {
		return 0, fmt.Errorf("%w: notional %d × %d overflows", ErrInvalidOrder, qty, price)
	}
	return qty * price, nil
}

func checkID(kind, id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, " \t\r\n/") {
		return fmt.Errorf("%w: %s id %q", ErrInvalidInput, kind, id)
	}
	return nil
}
