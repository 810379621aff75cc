// Package engine is the settlement core: it validates requests, runs each
// operation as one store unit of work, drives the ledger and the matching
// loop, and records committed settlements.
//
// The engine holds no market state of its own. Everything lives in the
// store, so any number of engines may share one store.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RutamBhagat/project-1-probo-v0/internal/limits"
	"github.com/RutamBhagat/project-1-probo-v0/internal/metrics"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/store"
)

// Recorder receives committed settlement records. The Pebble journal
// implements it.
type Recorder interface {
	RecordTrades(trades []model.Trade) error
	RecordMint(m model.Mint) error
	RecordDeposit(d model.Deposit) error
}

type Config struct {
	// MintCostSides multiplies quantity × price when minting. 1 charges the
	// price once per pair.
	MintCostSides int64
}

// Engine executes settlement operations against a Store.
type Engine struct {
	store    store.Store
	limiter  *limits.OrderLimiter
	recorder Recorder
	cfg      Config

	now   func() time.Time
	newID func() string
}

// New creates an engine. limiter and rec may be nil.
func New(st store.Store, limiter *limits.OrderLimiter, rec Recorder, cfg Config) *Engine {
	if cfg.MintCostSides <= 0 {
		cfg.MintCostSides = 1
	}
	return &Engine{
		store:    st,
		limiter:  limiter,
		recorder: rec,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// reject records a failed operation and returns err unchanged.
func (e *Engine) reject(op string, err error, args ...any) error {
	r := reason(err)
	metrics.Rejections.WithLabelValues(op, r).Inc()

	args = append(args, "op", op, "err", err)
	switch r {
	case "invariant":
		metrics.InvariantViolations.Inc()
		slog.Error("invariant violation, unit of work aborted", args...)
	case "internal", "conflict":
		slog.Error("operation failed", args...)
	default:
		slog.Info("operation rejected", args...)
	}
	return err
}

// record hands committed settlements to the recorder. Failures are logged
// and counted; the committed unit of work stands.
func (e *Engine) record(kind string, fn func(Recorder) error) {
	if e.recorder == nil {
		return
	}
	if err := fn(e.recorder); err != nil {
		metrics.JournalFailures.WithLabelValues(kind).Inc()
		slog.Error("journal append failed", "kind", kind, "err", err)
	}
}

// requireUser and requireSymbol load reference data inside a unit of work.
func requireUser(ctx context.Context, tx store.Tx, userID string) error {
	_, err := tx.GetUser(ctx, userID)
	return err
}

func requireSymbol(ctx context.Context, tx store.Tx, symbolID string) error {
	_, err := tx.GetSymbol(ctx, symbolID)
	return err
}

// Reset wipes every entity.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return err
	}
	slog.Warn("engine state reset")
	return nil
}
