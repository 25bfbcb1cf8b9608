package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quantdinger/internal/broker"
	"quantdinger/internal/domain"
	"quantdinger/internal/store"
)

// captureNotifier records every notification it receives.
type captureNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *captureNotifier) all() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Notification(nil), c.notes...)
}

// testEnv wires a real store, the simulator gateway, a session, and the
// engine together. The worker goroutine is not started; tests drive
// cycles synchronously for determinism.
type testEnv struct {
	st      *store.SQLiteStore
	gw      *broker.SimulatorGateway
	session *broker.Session
	worker  *ExecutionWorker
	eng     *Engine
	notes   *captureNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := broker.NewSimulatorGateway()
	session := broker.NewSession(gw, log)
	notes := &captureNotifier{}
	worker := NewExecutionWorker(st, session, notes, WorkerConfig{
		PollInterval: time.Second,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   10 * time.Millisecond,
	}, log)
	risk := NewRiskManager(0, decimal.Zero, st)
	eng := NewEngine(st, session, worker, risk, log)

	return &testEnv{st: st, gw: gw, session: session, worker: worker, eng: eng, notes: notes}
}

func (env *testEnv) connect(t *testing.T) {
	t.Helper()
	if err := env.session.Connect(context.Background(), domain.ConnParams{
		Host: "127.0.0.1", Port: 4002, ClientID: 1, Account: "DU000001",
	}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// cycle runs one worker cycle synchronously.
func (env *testEnv) cycle(t *testing.T) {
	t.Helper()
	env.worker.runCycle(context.Background())
}

func (env *testEnv) order(t *testing.T, id string) *domain.PendingOrder {
	t.Helper()
	o, err := env.st.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	return o
}

func aaplBuy(qty int64) SignalRequest {
	return SignalRequest{
		StrategyID: "momentum-1",
		Symbol:     "AAPL",
		Market:     domain.MarketUSStock,
		Kind:       domain.SignalOpenLong,
		Qty:        qty,
	}
}

func TestMarketBuyFillsAndOpensPosition(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.gw.SetFillPrice(decimal.RequireFromString("150.00"))
	ctx := context.Background()

	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	if o.Status != domain.StatusQueued || o.Side != domain.OrderSideBuy || o.Intent != domain.IntentOpen {
		t.Fatalf("enqueued order = %+v", o)
	}

	// First cycle submits; the simulator fills immediately, so the next
	// cycle drains the fill and commits the position.
	env.cycle(t)
	if got := env.order(t, o.ID).Status; got != domain.StatusSubmitted {
		t.Fatalf("after submit cycle: status = %s, want %s", got, domain.StatusSubmitted)
	}
	env.cycle(t)
	if got := env.order(t, o.ID).Status; got != domain.StatusFilled {
		t.Fatalf("after fill cycle: status = %s, want %s", got, domain.StatusFilled)
	}

	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos == nil || pos.Qty != 10 || !pos.AvgEntry.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("position = %+v, want 10 @ 150.00", pos)
	}

	trades, err := env.st.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].Qty != 10 || !trades[0].Value.Equal(decimal.RequireFromString("1500.00")) {
		t.Fatalf("trades = %+v, want one of 10 @ 150.00", trades)
	}

	notes := env.notes.all()
	if len(notes) != 1 || notes[0].Status != domain.StatusFilled || notes[0].OrderID != o.ID {
		t.Fatalf("notifications = %+v, want one filled for %s", notes, o.ID)
	}
}

func TestWeightedAverageAcrossAdds(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	if _, err := env.eng.PlaceSignal(ctx, aaplBuy(10)); err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)
	env.cycle(t)

	env.gw.SetFillPrice(decimal.NewFromInt(130))
	add := aaplBuy(20)
	add.Kind = domain.SignalAddLong
	if _, err := env.eng.PlaceSignal(ctx, add); err != nil {
		t.Fatalf("PlaceSignal (add): %v", err)
	}
	env.cycle(t)
	env.cycle(t)

	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	// (10*100 + 20*130) / 30 = 120
	if pos == nil || pos.Qty != 30 || !pos.AvgEntry.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("position = %+v, want 30 @ 120", pos)
	}
}

func TestCloseRealizesProfitAndFlattens(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	if _, err := env.eng.PlaceSignal(ctx, aaplBuy(10)); err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)
	env.cycle(t)

	env.gw.SetFillPrice(decimal.NewFromInt(110))
	closeReq := aaplBuy(10)
	closeReq.Kind = domain.SignalCloseLong
	o, err := env.eng.PlaceSignal(ctx, closeReq)
	if err != nil {
		t.Fatalf("PlaceSignal (close): %v", err)
	}
	if o.Side != domain.OrderSideSell || o.Intent != domain.IntentClose {
		t.Fatalf("close order = %+v", o)
	}
	env.cycle(t)
	env.cycle(t)

	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos != nil {
		t.Fatalf("position = %+v, want flat", pos)
	}

	trades, err := env.st.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	sell := trades[0] // newest first
	if !sell.Profit.Valid || !sell.Profit.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sell profit = %+v, want 100", sell.Profit)
	}
}

func TestOverReduceRejectedAtEnqueue(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	if _, err := env.eng.PlaceSignal(ctx, aaplBuy(10)); err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)
	env.cycle(t)

	reduce := aaplBuy(15)
	reduce.Kind = domain.SignalReduceLong
	if _, err := env.eng.PlaceSignal(ctx, reduce); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("over-reduce: got %v, want ErrValidation", err)
	}
}

func TestConflictingOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.eng.PlaceSignal(ctx, aaplBuy(10)); err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	if _, err := env.eng.PlaceSignal(ctx, aaplBuy(5)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second in-flight order: got %v, want ErrConflict", err)
	}

	// A different strategy on the same symbol is fine.
	other := aaplBuy(5)
	other.StrategyID = "meanrev-2"
	if _, err := env.eng.PlaceSignal(ctx, other); err != nil {
		t.Fatalf("PlaceSignal (other strategy): %v", err)
	}
}

func TestPlaceSignalUppercasesSymbol(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	req := aaplBuy(10)
	req.Symbol = " aapl "
	o, err := env.eng.PlaceSignal(ctx, req)
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	if o.Symbol != "AAPL" {
		t.Fatalf("stored symbol = %q, want AAPL", o.Symbol)
	}

	// The lowercase order shares the position key with an uppercase one.
	env.cycle(t)
	env.cycle(t)
	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos == nil || pos.Qty != 10 {
		t.Fatalf("position = %+v, want 10 AAPL", pos)
	}
}

func TestUnsupportedSignalKind(t *testing.T) {
	env := newTestEnv(t)
	req := aaplBuy(10)
	req.Kind = domain.SignalKind("open_short")
	if _, err := env.eng.PlaceSignal(context.Background(), req); !errors.Is(err, domain.ErrUnsupportedSignal) {
		t.Fatalf("got %v, want ErrUnsupportedSignal", err)
	}
}

func TestRejectionIsTerminalWithoutRetry(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.RejectNextSubmit("insufficient buying power")
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)

	got := env.order(t, o.ID)
	if got.Status != domain.StatusRejected {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusRejected)
	}
	if got.LastError == "" {
		t.Error("expected rejection reason in LastError")
	}

	// Further cycles must not resubmit a rejected order.
	env.cycle(t)
	if got := env.order(t, o.ID).Status; got != domain.StatusRejected {
		t.Errorf("status after extra cycle = %s", got)
	}

	notes := env.notes.all()
	if len(notes) != 1 || notes[0].Status != domain.StatusRejected {
		t.Fatalf("notifications = %+v, want one rejected", notes)
	}
}

func TestTransportFailureRetriesThenFails(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.FailNextSubmits(10) // more than MaxAttempts
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}

	env.cycle(t)
	got := env.order(t, o.ID)
	if got.Status != domain.StatusQueued || got.Attempts != 1 {
		t.Fatalf("after first attempt: status=%s attempts=%d, want queued/1", got.Status, got.Attempts)
	}

	// The transport error degrades the session; each cycle reconnects
	// with the remembered parameters and retries until attempts are
	// exhausted. Backoff is milliseconds in tests.
	for i := 0; i < 2; i++ {
		time.Sleep(20 * time.Millisecond)
		env.cycle(t)
	}

	got = env.order(t, o.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusFailed)
	}

	notes := env.notes.all()
	if len(notes) != 1 || notes[0].Status != domain.StatusFailed {
		t.Fatalf("notifications = %+v, want one failed", notes)
	}
}

func TestDegradedSessionRecoversInCycle(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.gw.SetFillPrice(decimal.NewFromInt(100))
	ctx := context.Background()

	env.gw.FailNextSubmits(1)
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}

	env.cycle(t)
	if got := env.session.Status().State; got != domain.ConnDegraded {
		t.Fatalf("state = %s, want %s", got, domain.ConnDegraded)
	}
	if got := env.order(t, o.ID).Status; got != domain.StatusQueued {
		t.Fatalf("status = %s, want %s", got, domain.StatusQueued)
	}

	// No external intervention: the next cycle reconnects on its own and
	// the stranded order proceeds through submit and fill.
	time.Sleep(20 * time.Millisecond)
	env.cycle(t)
	if got := env.session.Status().State; got != domain.ConnConnected {
		t.Fatalf("state = %s, want %s", got, domain.ConnConnected)
	}
	if got := env.order(t, o.ID).Status; got != domain.StatusSubmitted {
		t.Fatalf("status = %s, want %s", got, domain.StatusSubmitted)
	}
	env.cycle(t)
	if got := env.order(t, o.ID).Status; got != domain.StatusFilled {
		t.Fatalf("status = %s, want %s", got, domain.StatusFilled)
	}
}

func TestDuplicateFillEventIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)

	brokerID := env.order(t, o.ID).BrokerOrderID
	events, err := env.gw.PollFills(ctx)
	if err != nil {
		t.Fatalf("PollFills: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.BrokerOrderID != brokerID {
		t.Fatalf("event for %s, want %s", ev.BrokerOrderID, brokerID)
	}

	rec := NewPositionReconciler()
	applied, _, err := env.st.Reconcile(ctx, ev, rec.Outcome(ev))
	if err != nil || !applied {
		t.Fatalf("first Reconcile: applied=%v err=%v", applied, err)
	}
	applied, _, err = env.st.Reconcile(ctx, ev, rec.Outcome(ev))
	if err != nil {
		t.Fatalf("replay Reconcile: %v", err)
	}
	if applied {
		t.Fatal("replayed event was applied twice")
	}

	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos == nil || pos.Qty != 10 {
		t.Fatalf("position = %+v, want qty 10", pos)
	}
}

func TestCancelQueuedOrder(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.FailNextSubmits(1)
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t) // transport failure, order back to queued with backoff

	if err := env.eng.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	env.cycle(t) // reconnects the degraded session, then cancels before submit

	got := env.order(t, o.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusCancelled)
	}
	if got.BrokerOrderID != "" {
		t.Error("queued cancel must not reach the broker")
	}
}

func TestCancelAfterFillEndsFilled(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t) // submitted; simulator fills immediately

	// The cancel races the fill and loses: the fill event is already on
	// the stream when the cancel is forwarded.
	if err := env.eng.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	env.cycle(t)

	got := env.order(t, o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusFilled)
	}
}

func TestCancelRestingLimitOrder(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	req := aaplBuy(10)
	req.Type = domain.OrderTypeLimit
	req.LimitPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(90), Valid: true}
	o, err := env.eng.PlaceSignal(ctx, req)
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t) // submitted, resting

	if err := env.eng.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	env.cycle(t) // forwards the cancel; simulator queues the confirmation
	env.cycle(t) // drains the cancelled event

	got := env.order(t, o.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusCancelled)
	}
	notes := env.notes.all()
	if len(notes) != 1 || notes[0].Status != domain.StatusCancelled {
		t.Fatalf("notifications = %+v, want one cancelled", notes)
	}
}

func TestCancelTerminalOrderFails(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	env.gw.SetFillPrice(decimal.NewFromInt(100))
	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)
	env.cycle(t)

	if err := env.eng.CancelOrder(ctx, o.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("cancel of filled order: got %v, want ErrInvalidTransition", err)
	}
}

func TestPartialFillsAccumulate(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	req := aaplBuy(10)
	req.Type = domain.OrderTypeLimit
	req.LimitPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(150), Valid: true}
	o, err := env.eng.PlaceSignal(ctx, req)
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	env.cycle(t)

	brokerID := env.order(t, o.ID).BrokerOrderID
	if err := env.gw.Fill(brokerID, 4, decimal.NewFromInt(149)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	env.cycle(t)

	got := env.order(t, o.ID)
	if got.Status != domain.StatusPartiallyFilled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusPartiallyFilled)
	}
	if env.notes.all() != nil {
		t.Fatal("partial fill must not notify")
	}

	if err := env.gw.Fill(brokerID, 6, decimal.NewFromInt(150)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	env.cycle(t)

	got = env.order(t, o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusFilled)
	}

	pos, err := env.st.GetPosition(ctx, "", "AAPL", domain.MarketUSStock)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	// (4*149 + 6*150) / 10 = 149.6
	if pos == nil || pos.Qty != 10 || !pos.AvgEntry.Equal(decimal.RequireFromString("149.6")) {
		t.Fatalf("position = %+v, want 10 @ 149.6", pos)
	}
}

func TestResumeFailsInterruptedSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	o, err := env.eng.PlaceSignal(ctx, aaplBuy(10))
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	// Simulate a crash between MarkSubmitting and the broker call.
	if err := env.st.MarkSubmitting(ctx, o.ID); err != nil {
		t.Fatalf("MarkSubmitting: %v", err)
	}

	env.worker.resumeOrders(ctx)

	got := env.order(t, o.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusFailed)
	}
	notes := env.notes.all()
	if len(notes) != 1 || notes[0].Status != domain.StatusFailed {
		t.Fatalf("notifications = %+v, want one failed", notes)
	}
}

func TestResumeRecoversAcknowledgedSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	ctx := context.Background()

	// A resting limit order survives at the broker across the crash.
	req := aaplBuy(10)
	req.Type = domain.OrderTypeLimit
	req.LimitPrice = decimal.NullDecimal{Decimal: decimal.NewFromInt(90), Valid: true}
	o, err := env.eng.PlaceSignal(ctx, req)
	if err != nil {
		t.Fatalf("PlaceSignal: %v", err)
	}
	if err := env.st.MarkSubmitting(ctx, o.ID); err != nil {
		t.Fatalf("MarkSubmitting: %v", err)
	}
	if _, err := env.gw.SubmitOrder(ctx, o); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	env.worker.resumeOrders(ctx)

	got := env.order(t, o.ID)
	if got.Status != domain.StatusSubmitted {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusSubmitted)
	}
	if got.BrokerOrderID == "" {
		t.Error("expected broker order id recovered from open orders")
	}
}

func TestRiskManagerMaxOrderQty(t *testing.T) {
	env := newTestEnv(t)
	env.eng.risk = NewRiskManager(100, decimal.Zero, env.st)

	if _, err := env.eng.PlaceSignal(context.Background(), aaplBuy(101)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if _, err := env.eng.PlaceSignal(context.Background(), aaplBuy(100)); err != nil {
		t.Fatalf("PlaceSignal at the limit: %v", err)
	}
}
