// Package store persists pending orders, positions, and trade history, and
// provides the atomic reconcile commit that ties an order's terminal
// transition to its position and trade effects.
package store

import (
	"context"
	"time"

	"quantdinger/internal/domain"
)

// OrderStore is the single source of truth for pending-order lifecycle
// state. All status transitions are guarded by the domain state machine;
// a transition attempted from a terminal status fails with
// domain.ErrInvalidTransition.
type OrderStore interface {
	// Enqueue validates and inserts a new order in queued status. It fails
	// with domain.ErrConflict if another in-flight order exists for the
	// same (strategy, symbol), and with domain.ErrValidation if a
	// reduce/close order exceeds the current position quantity.
	Enqueue(ctx context.Context, order *domain.PendingOrder) error

	// GetOrder returns the order with the given id, or
	// domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*domain.PendingOrder, error)

	// ListOrders returns orders in the given status, oldest first. An
	// empty status lists all orders.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.PendingOrder, error)

	// NextRunnable returns the oldest queued order whose retry backoff has
	// elapsed at now, or nil if none is runnable. It does not mutate
	// status; the caller transitions the order atomically via
	// MarkSubmitting.
	NextRunnable(ctx context.Context, now time.Time) (*domain.PendingOrder, error)

	// MarkSubmitting transitions queued -> submitting.
	MarkSubmitting(ctx context.Context, id string) error

	// MarkSubmitted transitions submitting -> submitted, records the
	// broker order id, and resets the attempt count.
	MarkSubmitted(ctx context.Context, id, brokerOrderID string) error

	// Requeue returns a submitting order to queued after a transient
	// submit failure, recording the attempt count, last error, and the
	// earliest time the next attempt may run.
	Requeue(ctx context.Context, id string, attempts int, lastErr string, nextAttempt time.Time) error

	// MarkTerminal transitions the order to the given terminal status,
	// recording the reason in last_error when non-empty.
	MarkTerminal(ctx context.Context, id string, status domain.OrderStatus, reason string) error

	// SetCancelRequested flags an in-flight order for cancellation. The
	// terminal transition happens in the worker: before submit for queued
	// orders, on fill-stream confirmation for submitted ones. Fails with
	// domain.ErrInvalidTransition when the order is already terminal.
	SetCancelRequested(ctx context.Context, id string) error

	// GetOrderByBrokerID returns the order holding the given broker order
	// id, or domain.ErrOrderNotFound.
	GetOrderByBrokerID(ctx context.Context, brokerOrderID string) (*domain.PendingOrder, error)
}

// PositionStore reads locally reconciled positions. Writes happen only
// inside the reconcile commit.
type PositionStore interface {
	// GetPosition returns the position for the key, or nil if flat.
	GetPosition(ctx context.Context, account, symbol string, market domain.MarketType) (*domain.Position, error)

	// ListPositions returns all non-flat positions.
	ListPositions(ctx context.Context) ([]domain.Position, error)
}

// TradeStore reads the append-only trade audit trail.
type TradeStore interface {
	// ListTrades returns the most recent trades, newest first, up to limit.
	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)

	// ListTradesForDay returns all trades recorded on the given UTC date.
	ListTradesForDay(ctx context.Context, date string) ([]domain.Trade, error)
}

// ReconcileOutcome describes the effects a fill event should commit:
// the order's next status, the updated position (or its removal), the
// trade record to append, and an optional non-fatal warning.
type ReconcileOutcome struct {
	OrderStatus    domain.OrderStatus
	Reason         string
	Position       *domain.Position
	DeletePosition bool
	Trade          *domain.Trade
	Warning        string
}

// ReconcileFunc computes the outcome of a fill event given the affected
// order and its current position (nil if flat). It runs inside the commit
// transaction and must not perform I/O of its own.
type ReconcileFunc func(order *domain.PendingOrder, pos *domain.Position) (*ReconcileOutcome, error)

// ReconcileStore commits fill events atomically with the order's status
// transition.
type ReconcileStore interface {
	// Reconcile applies ev in one transaction. It returns applied=false
	// without calling fn when (BrokerOrderID, Seq) has been seen before,
	// making replays no-ops.
	Reconcile(ctx context.Context, ev domain.FillEvent, fn ReconcileFunc) (applied bool, outcome *ReconcileOutcome, err error)
}

// ConnParamsStore persists the last successful gateway connection
// parameters to support auto-reconnect on startup. Live socket state is
// never persisted.
type ConnParamsStore interface {
	SaveConnParams(ctx context.Context, params domain.ConnParams) error

	// LoadConnParams returns the saved parameters, or nil if none.
	LoadConnParams(ctx context.Context) (*domain.ConnParams, error)
}
