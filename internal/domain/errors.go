package domain

import "errors"

// Error taxonomy for the execution subsystem. Callers classify failures
// with errors.Is; wrapped messages carry the detail.
var (
	// ErrValidation marks bad input rejected before any broker contact.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedSignal marks a signal kind outside the supported
	// long-only set (short-selling signals land here).
	ErrUnsupportedSignal = errors.New("unsupported signal kind")

	// ErrConflict marks a duplicate in-flight order for the same
	// (strategy, symbol) pair.
	ErrConflict = errors.New("conflicting in-flight order")

	// ErrConnection marks a transient gateway transport failure;
	// retried with backoff.
	ErrConnection = errors.New("broker gateway unreachable")

	// ErrConnectionConflict marks a connect attempt with a client id that
	// differs from the one already holding the live session.
	ErrConnectionConflict = errors.New("client id already in use")

	// ErrBrokerRejected marks a definitive broker rejection (insufficient
	// funds, invalid contract, market closed); never retried.
	ErrBrokerRejected = errors.New("order rejected by broker")

	// ErrInvalidTransition guards the order status state machine; it
	// indicates an ordering bug in the caller, not a broker condition.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrAlreadyFilled is reported when a cancel reaches the gateway after
	// the order filled. It is not a failure.
	ErrAlreadyFilled = errors.New("order already filled")

	// ErrOrderNotFound marks a lookup for an unknown order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNotConnected marks an operation that requires a live gateway
	// session while the connection is down.
	ErrNotConnected = errors.New("not connected to broker gateway")
)
