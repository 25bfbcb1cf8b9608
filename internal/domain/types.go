// Package domain defines the core types shared across the trading
// subsystem: pending orders, positions, trades, fill events, and the
// connection/order lifecycle enums.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType identifies the market a symbol trades on.
type MarketType string

const (
	MarketUSStock MarketType = "USStock"
	MarketHShare  MarketType = "HShare"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// SignalKind is a strategy signal. Only long-side kinds are supported;
// anything else is rejected at translation time.
type SignalKind string

const (
	SignalOpenLong   SignalKind = "open_long"
	SignalAddLong    SignalKind = "add_long"
	SignalCloseLong  SignalKind = "close_long"
	SignalReduceLong SignalKind = "reduce_long"
)

// Intent is the directional effect of an order on the position it targets.
type Intent string

const (
	IntentOpen   Intent = "open"
	IntentAdd    Intent = "add"
	IntentClose  Intent = "close"
	IntentReduce Intent = "reduce"
)

// Reduces reports whether the intent shrinks an existing position, which
// requires clamping against current holdings at enqueue time.
func (i Intent) Reduces() bool {
	return i == IntentClose || i == IntentReduce
}

// OrderStatus is the lifecycle state of a pending order.
//
// queued -> submitting -> submitted -> {partially_filled -> filled,
// filled, rejected, cancelled, failed}. queued and the terminal states are
// stable rest states; submitting and submitted are owned by the worker
// cycle that set them.
type OrderStatus string

const (
	StatusQueued          OrderStatus = "queued"
	StatusSubmitting      OrderStatus = "submitting"
	StatusSubmitted       OrderStatus = "submitted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusRejected        OrderStatus = "rejected"
	StatusCancelled       OrderStatus = "cancelled"
	StatusFailed          OrderStatus = "failed"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// InFlight reports whether an order in this status holds the exclusive
// (strategy, symbol) exposure slot.
func (s OrderStatus) InFlight() bool {
	switch s {
	case StatusQueued, StatusSubmitting, StatusSubmitted, StatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// validTransitions is the order status state machine.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusQueued:          {StatusSubmitting, StatusCancelled, StatusFailed},
	StatusSubmitting:      {StatusSubmitted, StatusQueued, StatusRejected, StatusFailed},
	StatusSubmitted:       {StatusPartiallyFilled, StatusFilled, StatusRejected, StatusCancelled, StatusFailed},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
// All transitions out of a terminal status are illegal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PendingOrder is a durable record of a queued, in-flight, or finished
// trading intent. Owned by the order store; mutated only through its
// guarded transition methods.
type PendingOrder struct {
	ID            string
	StrategyID    string
	Symbol        string
	Market        MarketType
	Side          OrderSide
	Intent        Intent
	Qty           int64
	Type          OrderType
	LimitPrice    decimal.NullDecimal // set iff Type is limit
	Status        OrderStatus
	BrokerOrderID string
	Attempts      int
	LastError     string
	CancelRequest bool
	Account       string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Position is the locally reconciled holding for one symbol, keyed by
// (account, symbol, market). Long-only: Qty never goes negative.
type Position struct {
	Account   string
	Symbol    string
	Market    MarketType
	Qty       int64
	AvgEntry  decimal.Decimal
	LastPrice decimal.Decimal
	UpdatedAt time.Time
}

// Trade is an append-only audit record of a broker-confirmed fill.
// Profit is set only on close/reduce fills, computed best-effort from the
// local average entry price.
type Trade struct {
	ID         int64
	OrderID    string
	StrategyID string
	Symbol     string
	Side       OrderSide
	Qty        int64
	Price      decimal.Decimal
	Value      decimal.Decimal
	Profit     decimal.NullDecimal
	CreatedAt  time.Time
}

// FillKind classifies events on the gateway's fill stream.
type FillKind string

const (
	FillKindFill      FillKind = "fill"
	FillKindPartial   FillKind = "partial_fill"
	FillKindCancelled FillKind = "cancelled"
	FillKindRejected  FillKind = "rejected"
)

// FillEvent is one execution report observed on the gateway's fill stream.
// (BrokerOrderID, Seq) is the idempotency key: replays of the same pair
// must be no-ops when reconciled.
type FillEvent struct {
	BrokerOrderID string
	Seq           int64
	Kind          FillKind
	Qty           int64
	Price         decimal.Decimal
	Reason        string
	At            time.Time
}

// ConnState is the broker connection lifecycle state.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDegraded     ConnState = "degraded"
)

// ConnParams are the parameters of a gateway session. Two live sessions
// with the same ClientID are not permitted by the gateway.
type ConnParams struct {
	Host     string
	Port     int
	ClientID int
	Account  string
}

// ConnStatus is a snapshot of the broker connection for status queries.
type ConnStatus struct {
	State         ConnState
	Params        ConnParams
	LastError     string
	LastHeartbeat time.Time
}

// AccountInfo is a read-only snapshot of account financials reported by
// the gateway. Not used for reconciliation.
type AccountInfo struct {
	Account     string
	Currency    string
	Equity      decimal.Decimal
	Cash        decimal.Decimal
	BuyingPower decimal.Decimal
}

// BrokerOrder is a gateway-side view of a resting order, used by the
// status endpoints and by startup reconciliation.
type BrokerOrder struct {
	BrokerOrderID string
	// ClientOrderID echoes the local order id supplied at submit time,
	// used to re-match orders after a restart.
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Qty           int64
	Filled        int64
	Remaining     int64
	LimitPrice    decimal.NullDecimal
	Status        string
}

// Quote is a point-in-time market quote for a symbol.
type Quote struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Notification is the payload emitted on every terminal order transition
// for webhook and websocket delivery.
type Notification struct {
	OrderID    string      `json:"orderId"`
	StrategyID string      `json:"strategyId"`
	Symbol     string      `json:"symbol"`
	Status     OrderStatus `json:"status"`
	Reason     string      `json:"reason,omitempty"`
}
