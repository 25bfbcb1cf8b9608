package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams(clientID int) domain.ConnParams {
	return domain.ConnParams{Host: "127.0.0.1", Port: 4002, ClientID: clientID, Account: "DU000001"}
}

func marketBuy(qty int64) *domain.PendingOrder {
	return &domain.PendingOrder{
		ID:     "ord-1",
		Symbol: "AAPL",
		Market: domain.MarketUSStock,
		Side:   domain.OrderSideBuy,
		Intent: domain.IntentOpen,
		Qty:    qty,
		Type:   domain.OrderTypeMarket,
	}
}

func TestSessionConnectIdempotent(t *testing.T) {
	s := NewSession(NewSimulatorGateway(), testLogger())
	ctx := context.Background()

	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect (same client id): %v", err)
	}
	if got := s.Status().State; got != domain.ConnConnected {
		t.Errorf("state = %s, want %s", got, domain.ConnConnected)
	}
}

func TestSessionClientIDConflict(t *testing.T) {
	s := NewSession(NewSimulatorGateway(), testLogger())
	ctx := context.Background()

	if err := s.Connect(ctx, testParams(2)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := s.Connect(ctx, testParams(1))
	if !errors.Is(err, domain.ErrConnectionConflict) {
		t.Fatalf("Connect with different client id: got %v, want ErrConnectionConflict", err)
	}

	// Disconnect releases the session; the new client id then succeeds.
	s.Disconnect(ctx)
	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect after disconnect: %v", err)
	}
	if got := s.Status().Params.ClientID; got != 1 {
		t.Errorf("client id = %d, want 1", got)
	}
}

func TestSessionConnectFailure(t *testing.T) {
	gw := NewSimulatorGateway()
	gw.FailConnect(true)
	s := NewSession(gw, testLogger())

	err := s.Connect(context.Background(), testParams(1))
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Connect: got %v, want ErrConnection", err)
	}
	st := s.Status()
	if st.State != domain.ConnDisconnected {
		t.Errorf("state = %s, want %s", st.State, domain.ConnDisconnected)
	}
	if st.LastError == "" {
		t.Error("expected LastError to be recorded")
	}
}

func TestSessionDegradesOnTransportError(t *testing.T) {
	gw := NewSimulatorGateway()
	s := NewSession(gw, testLogger())
	ctx := context.Background()

	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	gw.FailNextSubmits(1)
	if _, err := s.Submit(ctx, marketBuy(10)); !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Submit: got %v, want ErrConnection", err)
	}
	if got := s.Status().State; got != domain.ConnDegraded {
		t.Fatalf("state = %s, want %s", got, domain.ConnDegraded)
	}

	// Reconnect with the remembered parameters restores the session.
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got := s.Status().State; got != domain.ConnConnected {
		t.Errorf("state = %s, want %s", got, domain.ConnConnected)
	}
}

func TestSessionConnectRedialsDegraded(t *testing.T) {
	gw := NewSimulatorGateway()
	s := NewSession(gw, testLogger())
	ctx := context.Background()

	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	gw.FailNextSubmits(1)
	if _, err := s.Submit(ctx, marketBuy(10)); !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("Submit: got %v, want ErrConnection", err)
	}
	if got := s.Status().State; got != domain.ConnDegraded {
		t.Fatalf("state = %s, want %s", got, domain.ConnDegraded)
	}

	// Connect with the same client id must dial again, not report the
	// wedged session as success.
	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect on degraded session: %v", err)
	}
	if got := s.Status().State; got != domain.ConnConnected {
		t.Errorf("state = %s, want %s", got, domain.ConnConnected)
	}
}

func TestSessionRejectionKeepsConnection(t *testing.T) {
	gw := NewSimulatorGateway()
	s := NewSession(gw, testLogger())
	ctx := context.Background()

	if err := s.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	gw.RejectNextSubmit("insufficient buying power")
	if _, err := s.Submit(ctx, marketBuy(10)); !errors.Is(err, domain.ErrBrokerRejected) {
		t.Fatalf("Submit: got %v, want ErrBrokerRejected", err)
	}
	if got := s.Status().State; got != domain.ConnConnected {
		t.Errorf("state = %s, want %s", got, domain.ConnConnected)
	}
}

func TestSessionNotConnected(t *testing.T) {
	s := NewSession(NewSimulatorGateway(), testLogger())

	if _, err := s.Submit(context.Background(), marketBuy(1)); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Submit: got %v, want ErrNotConnected", err)
	}
	if err := s.Reconnect(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Reconnect with no prior params: got %v, want ErrNotConnected", err)
	}
}

func TestSimulatorMarketOrderFills(t *testing.T) {
	gw := NewSimulatorGateway()
	ctx := context.Background()
	if err := gw.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	gw.SetFillPrice(decimal.RequireFromString("150.25"))

	id, err := gw.SubmitOrder(ctx, marketBuy(10))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	events, err := gw.PollFills(ctx)
	if err != nil {
		t.Fatalf("PollFills: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.BrokerOrderID != id || ev.Kind != domain.FillKindFill || ev.Qty != 10 {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.Price.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("price = %s, want 150.25", ev.Price)
	}

	// Drained: a second poll returns nothing.
	events, err = gw.PollFills(ctx)
	if err != nil {
		t.Fatalf("PollFills: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after drain, want 0", len(events))
	}
}

func TestSimulatorLimitOrderRestsAndPartials(t *testing.T) {
	gw := NewSimulatorGateway()
	ctx := context.Background()
	if err := gw.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	order := marketBuy(10)
	order.Type = domain.OrderTypeLimit
	order.LimitPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(150), Valid: true}

	id, err := gw.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	open, err := gw.GetOpenOrders(ctx)
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(open) != 1 || open[0].BrokerOrderID != id {
		t.Fatalf("open orders = %+v, want the resting limit order", open)
	}

	if err := gw.Fill(id, 4, decimal.NewFromInt(149)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if err := gw.Fill(id, 6, decimal.NewFromInt(150)); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	events, err := gw.PollFills(ctx)
	if err != nil {
		t.Fatalf("PollFills: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != domain.FillKindPartial || events[0].Qty != 4 {
		t.Errorf("first event = %+v, want partial of 4", events[0])
	}
	if events[1].Kind != domain.FillKindFill || events[1].Qty != 6 {
		t.Errorf("second event = %+v, want final fill of 6", events[1])
	}
	if events[0].Seq >= events[1].Seq {
		t.Errorf("sequence not increasing: %d then %d", events[0].Seq, events[1].Seq)
	}
}

func TestSimulatorCancelAfterFill(t *testing.T) {
	gw := NewSimulatorGateway()
	ctx := context.Background()
	if err := gw.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	id, err := gw.SubmitOrder(ctx, marketBuy(5))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if err := gw.CancelOrder(ctx, id); !errors.Is(err, domain.ErrAlreadyFilled) {
		t.Errorf("CancelOrder after fill: got %v, want ErrAlreadyFilled", err)
	}
}

func TestSimulatorCancelRestingOrder(t *testing.T) {
	gw := NewSimulatorGateway()
	ctx := context.Background()
	if err := gw.Connect(ctx, testParams(1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	order := marketBuy(5)
	order.Type = domain.OrderTypeLimit
	order.LimitPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(1), Valid: true}
	id, err := gw.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	if err := gw.CancelOrder(ctx, id); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	events, err := gw.PollFills(ctx)
	if err != nil {
		t.Fatalf("PollFills: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.FillKindCancelled {
		t.Fatalf("events = %+v, want one cancelled event", events)
	}
}
