// Package broker owns the connection to the external broker gateway: the
// Gateway transport interface, its Alpaca and simulator implementations,
// and the singleton Session that guards connection state and serializes
// access to the wire.
package broker

import (
	"context"

	"quantdinger/internal/domain"
)

// Gateway abstracts the broker gateway wire protocol. Implementations
// classify failures through the domain error taxonomy: transient
// transport problems wrap domain.ErrConnection and definitive broker
// rejections wrap domain.ErrBrokerRejected.
//
// A Gateway is not safe for concurrent use; the Session serializes all
// calls on the single wire connection.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "alpaca", "simulator").
	Name() string

	// Connect establishes the gateway session. Idempotent when already
	// connected.
	Connect(ctx context.Context, params domain.ConnParams) error

	// Disconnect tears down the session. Always succeeds.
	Disconnect(ctx context.Context) error

	// SubmitOrder sends the order and returns the broker-assigned order
	// id on acknowledgement.
	SubmitOrder(ctx context.Context, order *domain.PendingOrder) (string, error)

	// CancelOrder requests cancellation, best-effort. If the order has
	// already filled it returns domain.ErrAlreadyFilled; the caller
	// treats that as information, not failure.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// PollFills returns the fill/cancel/reject events observed since the
	// last poll. Each event is delivered at most once, identified by
	// (broker order id, sequence).
	PollFills(ctx context.Context) ([]domain.FillEvent, error)

	// TrackOrder re-registers a broker order id for fill polling, used
	// when resuming after a restart.
	TrackOrder(brokerOrderID string)

	// GetAccount returns a read-only account snapshot.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// GetPositions returns the broker-side position snapshot. Status
	// reporting only; reconciliation truth comes from PollFills.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetOpenOrders returns orders currently resting at the broker.
	GetOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error)

	// GetQuote returns a point-in-time quote for the symbol.
	GetQuote(ctx context.Context, symbol string, market domain.MarketType) (*domain.Quote, error)
}
