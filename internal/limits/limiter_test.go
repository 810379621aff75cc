package limits

import (
	"errors"
	"math"
	"testing"
)

func TestCheckOrder_WithinLimits(t *testing.T) {
	limiter := NewOrderLimiter(1000, 5_000_000)

	if err := limiter.CheckOrder(100, 1500); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckOrder_QuantityExceeded(t *testing.T) {
	limiter := NewOrderLimiter(1000, 0)

	err := limiter.CheckOrder(1001, 1)
	if !errors.Is(err, ErrQuantityLimitExceeded) {
		t.Errorf("expected ErrQuantityLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_QuantityAtLimit(t *testing.T) {
	limiter := NewOrderLimiter(1000, 0)

	if err := limiter.CheckOrder(1000, 1); err != nil {
		t.Errorf("quantity equal to the limit should pass, got %v", err)
	}
}

func TestCheckOrder_NotionalExceeded(t *testing.T) {
	limiter := NewOrderLimiter(0, 100_000)

	// 100 × 1001 = 100100 > 100000.
	err := limiter.CheckOrder(100, 1001)
	if !errors.Is(err, ErrNotionalLimitExceeded) {
		t.Errorf("expected ErrNotionalLimitExceeded, got %v", err)
	}
}

func TestCheckOrder_NotionalOverflow(t *testing.T) {
	limiter := NewOrderLimiter(0, math.MaxInt64)

	err := limiter.CheckOrder(math.MaxInt64, 2)
	if !errors.Is(err, ErrNotionalLimitExceeded) {
		t.Errorf("overflowing notional should exceed the limit, got %v", err)
	}
}

func TestCheckOrder_ZeroDisables(t *testing.T) {
	limiter := NewOrderLimiter(0, 0)

	if err := limiter.CheckOrder(math.MaxInt64, math.MaxInt64); err != nil {
		t.Errorf("disabled limiter should accept everything, got %v", err)
	}
}

func TestCheckOrder_NilLimiter(t *testing.T) {
	var limiter *OrderLimiter

	if err := limiter.CheckOrder(1, 1); err != nil {
		t.Errorf("nil limiter should accept everything, got %v", err)
	}
}

func TestNewOrderLimiter_NegativeDisabled(t *testing.T) {
	limiter := NewOrderLimiter(-1, -5)

	if limiter.MaxQuantity != 0 || limiter.MaxNotional != 0 {
		t.Errorf("negative limits should be disabled, got %+v", limiter)
	}
}
