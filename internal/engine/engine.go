// Package engine coordinates the order lifecycle: translating strategy
// signals into pending orders, driving them through the broker session on
// a single worker goroutine, and reconciling fill events into positions
// and trade history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quantdinger/internal/broker"
	"quantdinger/internal/domain"
	"quantdinger/internal/signal"
)

// SignalRequest is a strategy's ask to trade, as received from the
// control surface.
type SignalRequest struct {
	StrategyID string              `json:"strategyId"`
	Symbol     string              `json:"symbol"`
	Market     domain.MarketType   `json:"market"`
	Kind       domain.SignalKind   `json:"kind"`
	Qty        int64               `json:"qty"`
	Type       domain.OrderType    `json:"orderType"`
	LimitPrice decimal.NullDecimal `json:"limitPrice"`
	Account    string              `json:"account,omitempty"`
}

// Engine is the facade the control surface talks to. Reads go straight
// to the store or session; anything touching the wire or the order queue
// goes through the worker.
type Engine struct {
	st      Store
	session *broker.Session
	worker  *ExecutionWorker
	risk    *RiskManager
	log     *slog.Logger
}

// NewEngine creates an Engine wired with the given dependencies.
func NewEngine(st Store, session *broker.Session, worker *ExecutionWorker, risk *RiskManager, log *slog.Logger) *Engine {
	return &Engine{
		st:      st,
		session: session,
		worker:  worker,
		risk:    risk,
		log:     log,
	}
}

// PlaceSignal translates a strategy signal into a pending order and
// enqueues it. The order is durable once this returns; submission happens
// asynchronously on the worker.
func (e *Engine) PlaceSignal(ctx context.Context, req SignalRequest) (*domain.PendingOrder, error) {
	side, intent, err := signal.Translate(req.Kind)
	if err != nil {
		return nil, err
	}
	// Symbols are stored upper-cased so "aapl" and "AAPL" share one
	// position key regardless of the caller.
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := domain.ValidateSymbol(req.Symbol, req.Market); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = domain.OrderTypeMarket
	}

	now := time.Now().UTC()
	order := &domain.PendingOrder{
		ID:            uuid.NewString(),
		StrategyID:    req.StrategyID,
		Symbol:        req.Symbol,
		Market:        req.Market,
		Side:          side,
		Intent:        intent,
		Qty:           req.Qty,
		Type:          req.Type,
		LimitPrice:    req.LimitPrice,
		Status:        domain.StatusQueued,
		Account:       req.Account,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.risk.CheckOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := e.st.Enqueue(ctx, order); err != nil {
		return nil, err
	}
	e.log.Info("order enqueued",
		"orderId", order.ID, "strategyId", order.StrategyID,
		"symbol", order.Symbol, "side", order.Side, "intent", order.Intent,
		"qty", order.Qty, "type", order.Type)
	e.worker.Kick()
	return order, nil
}

// CancelOrder flags an in-flight order for cancellation. Queued orders
// cancel before they ever reach the broker; submitted orders cancel only
// when the broker confirms on the fill stream.
func (e *Engine) CancelOrder(ctx context.Context, id string) error {
	if err := e.st.SetCancelRequested(ctx, id); err != nil {
		return err
	}
	e.log.Info("cancel requested", "orderId", id)
	e.worker.Kick()
	return nil
}

// GetOrder returns one order by id.
func (e *Engine) GetOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	return e.st.GetOrder(ctx, id)
}

// ListOrders returns orders filtered by status, oldest first.
func (e *Engine) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.PendingOrder, error) {
	return e.st.ListOrders(ctx, status)
}

// ListPositions returns the locally reconciled positions.
func (e *Engine) ListPositions(ctx context.Context) ([]domain.Position, error) {
	return e.st.ListPositions(ctx)
}

// ListTrades returns recent trade history, newest first.
func (e *Engine) ListTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return e.st.ListTrades(ctx, limit)
}

// Connect establishes the broker session through the worker.
func (e *Engine) Connect(ctx context.Context, params domain.ConnParams) error {
	return e.worker.Connect(ctx, params)
}

// Disconnect tears down the broker session through the worker.
func (e *Engine) Disconnect(ctx context.Context) error {
	return e.worker.Disconnect(ctx)
}

// ConnStatus returns a snapshot of the broker connection.
func (e *Engine) ConnStatus() domain.ConnStatus {
	return e.session.Status()
}

// ResumeConnection redials the last saved connection parameters, used on
// startup when auto-reconnect is enabled. No saved parameters is not an
// error.
func (e *Engine) ResumeConnection(ctx context.Context) error {
	params, err := e.st.LoadConnParams(ctx)
	if err != nil {
		return fmt.Errorf("loading saved connection params: %w", err)
	}
	if params == nil {
		return nil
	}
	e.log.Info("resuming saved broker connection", "host", params.Host, "clientId", params.ClientID)
	return e.worker.Connect(ctx, *params)
}

// Account returns the broker account snapshot.
func (e *Engine) Account(ctx context.Context) (*domain.AccountInfo, error) {
	return e.session.Account(ctx)
}

// BrokerPositions returns the broker-side position snapshot.
func (e *Engine) BrokerPositions(ctx context.Context) ([]domain.Position, error) {
	return e.session.Positions(ctx)
}

// BrokerOpenOrders returns orders resting at the broker.
func (e *Engine) BrokerOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	return e.session.OpenOrders(ctx)
}

// Quote returns a market quote for the symbol.
func (e *Engine) Quote(ctx context.Context, symbol string, market domain.MarketType) (*domain.Quote, error) {
	if err := domain.ValidateSymbol(symbol, market); err != nil {
		return nil, err
	}
	return e.session.Quote(ctx, symbol, market)
}
