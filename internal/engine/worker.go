package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quantdinger/internal/broker"
	"quantdinger/internal/domain"
	"quantdinger/internal/notify"
	"quantdinger/internal/store"
	"quantdinger/internal/util"
)

// Store is the persistence surface the engine needs: order lifecycle,
// positions, trades, the atomic reconcile commit, and saved connection
// parameters.
type Store interface {
	store.OrderStore
	store.PositionStore
	store.TradeStore
	store.ReconcileStore
	store.ConnParamsStore
}

// WorkerConfig tunes the execution cycle.
type WorkerConfig struct {
	// PollInterval is the cycle cadence when no kick arrives.
	PollInterval time.Duration

	// MaxAttempts caps submit retries before an order fails.
	MaxAttempts int

	// BackoffBase is the delay after the first failed attempt; each
	// further attempt doubles it up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MarketHoursOnly defers submits while the order's market is outside
	// its regular session. Queued orders stay queued until the open.
	MarketHoursOnly bool
}

// ExecutionWorker drives the order lifecycle on a single goroutine. Each
// cycle drains fill events, forwards pending cancels, and submits
// runnable orders. Connect and disconnect requests run on the same
// goroutine through a command channel, so no wire call ever races with
// the cycle.
type ExecutionWorker struct {
	st       Store
	session  *broker.Session
	rec      *PositionReconciler
	notifier notify.Notifier
	log      *slog.Logger
	cfg      WorkerConfig

	cmds      chan workerCmd
	kick      chan struct{}
	calendars map[domain.MarketType]*util.TradingCalendar
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
)

type workerCmd struct {
	kind   cmdKind
	params domain.ConnParams
	reply  chan error
}

// NewExecutionWorker creates an ExecutionWorker. Run must be called for
// it to make progress.
func NewExecutionWorker(st Store, session *broker.Session, notifier notify.Notifier, cfg WorkerConfig, log *slog.Logger) *ExecutionWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Minute
	}
	w := &ExecutionWorker{
		st:       st,
		session:  session,
		rec:      NewPositionReconciler(),
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		cmds:     make(chan workerCmd),
		kick:     make(chan struct{}, 1),
	}
	if cfg.MarketHoursOnly {
		w.calendars = map[domain.MarketType]*util.TradingCalendar{
			domain.MarketUSStock: util.NewTradingCalendar(domain.MarketUSStock),
			domain.MarketHShare:  util.NewTradingCalendar(domain.MarketHShare),
		}
	}
	return w
}

// Run processes commands and cycles until ctx is cancelled.
func (w *ExecutionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info("execution worker started", "pollInterval", w.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("execution worker stopped")
			return
		case cmd := <-w.cmds:
			w.handleCmd(ctx, cmd)
		case <-ticker.C:
			w.runCycle(ctx)
		case <-w.kick:
			w.runCycle(ctx)
		}
	}
}

// Kick schedules a cycle as soon as the worker is idle. Multiple kicks
// coalesce into one.
func (w *ExecutionWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Connect asks the worker to establish the gateway session.
func (w *ExecutionWorker) Connect(ctx context.Context, params domain.ConnParams) error {
	return w.send(ctx, workerCmd{kind: cmdConnect, params: params})
}

// Disconnect asks the worker to tear the session down.
func (w *ExecutionWorker) Disconnect(ctx context.Context) error {
	return w.send(ctx, workerCmd{kind: cmdDisconnect})
}

func (w *ExecutionWorker) send(ctx context.Context, cmd workerCmd) error {
	cmd.reply = make(chan error, 1)
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *ExecutionWorker) handleCmd(ctx context.Context, cmd workerCmd) {
	switch cmd.kind {
	case cmdConnect:
		err := w.session.Connect(ctx, cmd.params)
		if err == nil {
			if saveErr := w.st.SaveConnParams(ctx, cmd.params); saveErr != nil {
				w.log.Warn("saving connection params", "error", saveErr)
			}
			w.resumeOrders(ctx)
			w.Kick()
		}
		cmd.reply <- err
	case cmdDisconnect:
		w.session.Disconnect(ctx)
		cmd.reply <- nil
	}
}

// resumeOrders re-attaches orders that were in flight when the previous
// session (or process) ended. Orders stuck in submitting are matched
// against the broker's open orders by client order id: a match means the
// submit landed before the crash, no match means it never reached the
// broker. Unmatched orders fail rather than resubmit, because the
// broker's answer to the original submit is unknowable.
func (w *ExecutionWorker) resumeOrders(ctx context.Context) {
	for _, status := range []domain.OrderStatus{domain.StatusSubmitted, domain.StatusPartiallyFilled} {
		orders, err := w.st.ListOrders(ctx, status)
		if err != nil {
			w.log.Error("listing orders for resume", "status", status, "error", err)
			continue
		}
		for _, o := range orders {
			if o.BrokerOrderID != "" {
				w.session.TrackOrder(o.BrokerOrderID)
			}
		}
	}

	stuck, err := w.st.ListOrders(ctx, domain.StatusSubmitting)
	if err != nil {
		w.log.Error("listing submitting orders for resume", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	open, err := w.session.OpenOrders(ctx)
	if err != nil {
		w.log.Error("listing broker open orders for resume", "error", err)
		return
	}
	byClientID := make(map[string]domain.BrokerOrder, len(open))
	for _, bo := range open {
		byClientID[bo.ClientOrderID] = bo
	}

	for _, o := range stuck {
		if bo, ok := byClientID[o.ID]; ok {
			if err := w.st.MarkSubmitted(ctx, o.ID, bo.BrokerOrderID); err != nil {
				w.log.Error("resuming submitted order", "orderId", o.ID, "error", err)
				continue
			}
			w.session.TrackOrder(bo.BrokerOrderID)
			w.log.Info("resumed in-flight order", "orderId", o.ID, "brokerOrderId", bo.BrokerOrderID)
			continue
		}
		reason := "interrupted during submit, not resubmitted"
		if err := w.st.MarkTerminal(ctx, o.ID, domain.StatusFailed, reason); err != nil {
			w.log.Error("failing interrupted order", "orderId", o.ID, "error", err)
			continue
		}
		w.log.Warn("failed interrupted order", "orderId", o.ID)
		w.notifyOrder(ctx, &o, domain.StatusFailed, reason)
	}
}

func (w *ExecutionWorker) runCycle(ctx context.Context) {
	if !w.session.Connected() {
		// A degraded session reconnects every cycle with the last-known
		// parameters; queued orders wait untouched until it succeeds.
		// An explicitly disconnected session stays down.
		if w.session.Status().State != domain.ConnDegraded {
			return
		}
		if err := w.session.Reconnect(ctx); err != nil {
			w.log.Warn("reconnect failed", "error", err)
			return
		}
		w.log.Info("session reconnected")
		w.resumeOrders(ctx)
	}

	w.drainFills(ctx)
	w.forwardCancels(ctx)
	w.submitRunnable(ctx)
}

// drainFills applies every pending fill event through the reconcile
// commit. Replayed events are skipped by the store's idempotency key.
func (w *ExecutionWorker) drainFills(ctx context.Context) {
	events, err := w.session.PollFills(ctx)
	if err != nil {
		w.log.Warn("polling fills", "error", err)
		return
	}
	for _, ev := range events {
		applied, outcome, err := w.st.Reconcile(ctx, ev, w.rec.Outcome(ev))
		if err != nil {
			w.log.Error("reconciling fill event",
				"brokerOrderId", ev.BrokerOrderID, "seq", ev.Seq, "error", err)
			continue
		}
		if !applied {
			w.log.Debug("duplicate fill event skipped",
				"brokerOrderId", ev.BrokerOrderID, "seq", ev.Seq)
			continue
		}
		if outcome.Warning != "" {
			w.log.Warn("reconcile warning", "brokerOrderId", ev.BrokerOrderID, "warning", outcome.Warning)
		}
		w.log.Info("fill event applied",
			"brokerOrderId", ev.BrokerOrderID, "seq", ev.Seq,
			"kind", ev.Kind, "qty", ev.Qty, "status", outcome.OrderStatus)

		if outcome.OrderStatus.Terminal() {
			o, err := w.st.GetOrderByBrokerID(ctx, ev.BrokerOrderID)
			if err != nil {
				w.log.Error("loading order for notification", "brokerOrderId", ev.BrokerOrderID, "error", err)
				continue
			}
			w.notifyOrder(ctx, o, outcome.OrderStatus, outcome.Reason)
		}
	}
}

// forwardCancels sends broker cancels for orders flagged by the control
// surface. The cancel is re-sent each cycle until the fill stream
// confirms; an already-filled answer just means the fill event is on its
// way.
func (w *ExecutionWorker) forwardCancels(ctx context.Context) {
	for _, status := range []domain.OrderStatus{domain.StatusSubmitted, domain.StatusPartiallyFilled} {
		orders, err := w.st.ListOrders(ctx, status)
		if err != nil {
			w.log.Error("listing orders for cancel", "status", status, "error", err)
			return
		}
		for _, o := range orders {
			if !o.CancelRequest || o.BrokerOrderID == "" {
				continue
			}
			err := w.session.Cancel(ctx, o.BrokerOrderID)
			switch {
			case err == nil:
				w.log.Info("cancel forwarded", "orderId", o.ID, "brokerOrderId", o.BrokerOrderID)
			case errors.Is(err, domain.ErrAlreadyFilled):
				w.log.Info("cancel too late, order filled", "orderId", o.ID)
			default:
				w.log.Warn("cancel failed", "orderId", o.ID, "error", err)
			}
		}
	}
}

// submitRunnable pops queued orders whose backoff elapsed and submits
// them one at a time. A transport failure stops the loop; the remaining
// queue waits for the session to recover.
func (w *ExecutionWorker) submitRunnable(ctx context.Context) {
	for {
		now := time.Now().UTC()
		o, err := w.st.NextRunnable(ctx, now)
		if err != nil {
			w.log.Error("fetching next runnable order", "error", err)
			return
		}
		if o == nil {
			return
		}

		if o.CancelRequest {
			reason := "cancelled before submit"
			if err := w.st.MarkTerminal(ctx, o.ID, domain.StatusCancelled, reason); err != nil {
				w.log.Error("cancelling queued order", "orderId", o.ID, "error", err)
				return
			}
			w.notifyOrder(ctx, o, domain.StatusCancelled, reason)
			continue
		}

		if cal := w.calendars[o.Market]; cal != nil && !cal.IsMarketOpen(now) {
			w.log.Debug("market closed, order deferred",
				"orderId", o.ID, "market", o.Market, "nextOpen", cal.NextOpen(now))
			return
		}

		if err := w.st.MarkSubmitting(ctx, o.ID); err != nil {
			w.log.Error("marking order submitting", "orderId", o.ID, "error", err)
			return
		}

		brokerID, err := w.session.Submit(ctx, o)
		switch {
		case err == nil:
			if err := w.st.MarkSubmitted(ctx, o.ID, brokerID); err != nil {
				w.log.Error("marking order submitted", "orderId", o.ID, "error", err)
				return
			}
			w.log.Info("order submitted",
				"orderId", o.ID, "brokerOrderId", brokerID,
				"symbol", o.Symbol, "side", o.Side, "qty", o.Qty)

		case errors.Is(err, domain.ErrBrokerRejected):
			reason := err.Error()
			if terr := w.st.MarkTerminal(ctx, o.ID, domain.StatusRejected, reason); terr != nil {
				w.log.Error("marking order rejected", "orderId", o.ID, "error", terr)
				return
			}
			w.log.Warn("order rejected", "orderId", o.ID, "reason", reason)
			w.notifyOrder(ctx, o, domain.StatusRejected, reason)

		default:
			attempts := o.Attempts + 1
			if attempts >= w.cfg.MaxAttempts {
				reason := fmt.Sprintf("giving up after %d attempts: %v", attempts, err)
				if terr := w.st.MarkTerminal(ctx, o.ID, domain.StatusFailed, reason); terr != nil {
					w.log.Error("marking order failed", "orderId", o.ID, "error", terr)
					return
				}
				w.log.Error("order failed", "orderId", o.ID, "attempts", attempts, "error", err)
				w.notifyOrder(ctx, o, domain.StatusFailed, reason)
				return
			}
			delay := w.backoff(attempts)
			if rerr := w.st.Requeue(ctx, o.ID, attempts, err.Error(), now.Add(delay)); rerr != nil {
				w.log.Error("requeueing order", "orderId", o.ID, "error", rerr)
				return
			}
			w.log.Warn("submit failed, requeued",
				"orderId", o.ID, "attempt", attempts, "retryIn", delay, "error", err)
			return
		}
	}
}

// backoff returns the delay before the given attempt number may retry.
func (w *ExecutionWorker) backoff(attempts int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.cfg.BackoffCap {
			return w.cfg.BackoffCap
		}
	}
	if d > w.cfg.BackoffCap {
		d = w.cfg.BackoffCap
	}
	return d
}

func (w *ExecutionWorker) notifyOrder(ctx context.Context, o *domain.PendingOrder, status domain.OrderStatus, reason string) {
	w.notifier.Notify(ctx, domain.Notification{
		OrderID:    o.ID,
		StrategyID: o.StrategyID,
		Symbol:     o.Symbol,
		Status:     status,
		Reason:     reason,
	})
}
