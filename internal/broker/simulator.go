package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
)

// SimulatorGateway is an in-memory Gateway used for local development and
// tests. Market orders fill immediately at a configurable price; limit
// orders rest until Fill or a cancel. Failure knobs let tests exercise
// the transport and rejection branches of the worker.
type SimulatorGateway struct {
	mu sync.Mutex

	connected bool
	params    domain.ConnParams

	nextID  int64
	orders  map[string]*simOrder
	pending []domain.FillEvent

	fillPrice decimal.Decimal

	failConnect     bool
	failNextSubmits int
	rejectReason    string
}

type simOrder struct {
	order   domain.PendingOrder
	seq     int64
	filled  int64
	done    bool
	resting bool
}

// Compile-time interface check.
var _ Gateway = (*SimulatorGateway)(nil)

// NewSimulatorGateway returns a simulator that fills market orders at 100.
func NewSimulatorGateway() *SimulatorGateway {
	return &SimulatorGateway{
		orders:    make(map[string]*simOrder),
		fillPrice: decimal.NewFromInt(100),
	}
}

// SetFillPrice sets the price used for subsequent automatic fills.
func (g *SimulatorGateway) SetFillPrice(p decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillPrice = p
}

// FailConnect makes subsequent Connect calls fail until cleared.
func (g *SimulatorGateway) FailConnect(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failConnect = fail
}

// FailNextSubmits makes the next n SubmitOrder calls fail with a
// transport error.
func (g *SimulatorGateway) FailNextSubmits(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNextSubmits = n
}

// RejectNextSubmit makes the next SubmitOrder fail with a broker
// rejection carrying the given reason.
func (g *SimulatorGateway) RejectNextSubmit(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectReason = reason
}

func (g *SimulatorGateway) Name() string { return "simulator" }

func (g *SimulatorGateway) Connect(ctx context.Context, params domain.ConnParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failConnect {
		return fmt.Errorf("%w: simulator refused connection", domain.ErrConnection)
	}
	g.connected = true
	g.params = params
	return nil
}

func (g *SimulatorGateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

func (g *SimulatorGateway) SubmitOrder(ctx context.Context, order *domain.PendingOrder) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return "", fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	if g.failNextSubmits > 0 {
		g.failNextSubmits--
		return "", fmt.Errorf("%w: simulated transport failure", domain.ErrConnection)
	}
	if g.rejectReason != "" {
		reason := g.rejectReason
		g.rejectReason = ""
		return "", fmt.Errorf("%w: %s", domain.ErrBrokerRejected, reason)
	}

	g.nextID++
	id := fmt.Sprintf("sim-%d", g.nextID)
	so := &simOrder{order: *order, resting: order.Type == domain.OrderTypeLimit}
	g.orders[id] = so

	if !so.resting {
		g.fillLocked(id, so, order.Qty, g.fillPrice)
	}
	return id, nil
}

func (g *SimulatorGateway) CancelOrder(ctx context.Context, brokerOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	so, ok := g.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("%w: unknown broker order %s", domain.ErrBrokerRejected, brokerOrderID)
	}
	if so.done {
		return domain.ErrAlreadyFilled
	}
	so.done = true
	so.seq++
	g.pending = append(g.pending, domain.FillEvent{
		BrokerOrderID: brokerOrderID,
		Seq:           so.seq,
		Kind:          domain.FillKindCancelled,
		At:            time.Now().UTC(),
	})
	return nil
}

// Fill executes qty shares of a resting limit order at the given price.
// Emits a partial fill event unless the order is now complete.
func (g *SimulatorGateway) Fill(brokerOrderID string, qty int64, price decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	so, ok := g.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("unknown broker order %s", brokerOrderID)
	}
	if so.done {
		return domain.ErrAlreadyFilled
	}
	g.fillLocked(brokerOrderID, so, qty, price)
	return nil
}

// Reject marks a resting order rejected by the exchange after
// acknowledgement.
func (g *SimulatorGateway) Reject(brokerOrderID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	so, ok := g.orders[brokerOrderID]
	if !ok || so.done {
		return
	}
	so.done = true
	so.seq++
	g.pending = append(g.pending, domain.FillEvent{
		BrokerOrderID: brokerOrderID,
		Seq:           so.seq,
		Kind:          domain.FillKindRejected,
		Reason:        reason,
		At:            time.Now().UTC(),
	})
}

func (g *SimulatorGateway) fillLocked(id string, so *simOrder, qty int64, price decimal.Decimal) {
	if remaining := so.order.Qty - so.filled; qty > remaining {
		qty = remaining
	}
	so.filled += qty
	kind := domain.FillKindPartial
	if so.filled >= so.order.Qty {
		kind = domain.FillKindFill
		so.done = true
	}
	so.seq++
	g.pending = append(g.pending, domain.FillEvent{
		BrokerOrderID: id,
		Seq:           so.seq,
		Kind:          kind,
		Qty:           qty,
		Price:         price,
		At:            time.Now().UTC(),
	})
}

func (g *SimulatorGateway) PollFills(ctx context.Context) ([]domain.FillEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	events := g.pending
	g.pending = nil
	return events, nil
}

func (g *SimulatorGateway) TrackOrder(brokerOrderID string) {}

func (g *SimulatorGateway) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	return &domain.AccountInfo{
		Account:     g.params.Account,
		Currency:    "USD",
		Equity:      decimal.NewFromInt(1_000_000),
		Cash:        decimal.NewFromInt(1_000_000),
		BuyingPower: decimal.NewFromInt(2_000_000),
	}, nil
}

func (g *SimulatorGateway) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (g *SimulatorGateway) GetOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	var open []domain.BrokerOrder
	for id, so := range g.orders {
		if so.done {
			continue
		}
		open = append(open, domain.BrokerOrder{
			BrokerOrderID: id,
			ClientOrderID: so.order.ID,
			Symbol:        so.order.Symbol,
			Side:          so.order.Side,
			Qty:           so.order.Qty,
			Filled:        so.filled,
			Remaining:     so.order.Qty - so.filled,
			LimitPrice:    so.order.LimitPrice,
			Status:        "open",
		})
	}
	return open, nil
}

func (g *SimulatorGateway) GetQuote(ctx context.Context, symbol string, market domain.MarketType) (*domain.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, fmt.Errorf("%w: simulator not connected", domain.ErrConnection)
	}
	p := g.fillPrice
	return &domain.Quote{
		Symbol: symbol,
		Bid:    p.Sub(decimal.New(1, -2)),
		Ask:    p.Add(decimal.New(1, -2)),
		Last:   p,
		High:   p,
		Low:    p,
		Close:  p,
	}, nil
}
