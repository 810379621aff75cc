package engine

import (
	"errors"

	"github.com/RutamBhagat/project-1-probo-v0/internal/ledger"
	"github.com/RutamBhagat/project-1-probo-v0/internal/limits"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
	"github.com/RutamBhagat/project-1-probo-v0/internal/symbol"
)

var (
	// ErrInvalidOrder is returned for non-positive quantities or prices and
	// for orders whose notional does not fit in int64.
	ErrInvalidOrder = errors.New("engine: invalid order")

	// ErrInvalidInput is returned for malformed identifiers.
	ErrInvalidInput = errors.New("engine: invalid input")
)

// Errors surfaced from the layers below, re-exported so callers only need
// this package to classify a failure.
var (
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrInsufficientStock  = ledger.ErrInsufficientStock
	ErrInvalidAmount      = ledger.ErrInvalidAmount
	ErrInvariantViolation = ledger.ErrInvariantViolation

	ErrUserNotFound   = store.ErrUserNotFound
	ErrUserExists     = store.ErrUserExists
	ErrSymbolNotFound = store.ErrSymbolNotFound
	ErrSymbolExists   = store.ErrSymbolExists
	ErrOrderNotFound  = store.ErrOrderNotFound
	ErrConflict       = store.ErrConflict
)

// reason classifies err for the rejection metric.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidSide), errors.Is(err, model.ErrInvalidDirection),
		errors.Is(err, symbol.ErrInvalidSymbol), errors.Is(err, symbol.ErrInvalidExpiry):
		return "invalid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, limits.ErrQuantityLimitExceeded), errors.Is(err, limits.ErrNotionalLimitExceeded):
		return "limit"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSymbolNotFound), errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrUserExists), errors.Is(err, ErrSymbolExists):
		return "duplicate"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	}
	return "internal"
}
