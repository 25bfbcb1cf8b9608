package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quantdinger/internal/domain"
)

// Session is the process-wide singleton owning the one live gateway
// connection. It tracks connection state, enforces the single-client-id
// rule, and serializes every wire call behind one mutex — the gateway
// protocol does not tolerate concurrent requests on a session.
//
// The ExecutionWorker is the only long-lived caller; control-surface
// connect/disconnect requests reach the session through the worker's
// command channel, never directly from request handlers.
type Session struct {
	gw  Gateway
	log *slog.Logger

	mu        sync.Mutex
	state     domain.ConnState
	params    domain.ConnParams
	lastErr   string
	heartbeat time.Time
}

// NewSession creates a Session in Disconnected state.
func NewSession(gw Gateway, log *slog.Logger) *Session {
	return &Session{
		gw:    gw,
		log:   log.With("gateway", gw.Name()),
		state: domain.ConnDisconnected,
	}
}

// Connect establishes the gateway session with the given parameters.
// Connecting again with the same client id is idempotent while healthy,
// and re-dials a degraded session. Connecting with a different client id
// while a session is live fails with domain.ErrConnectionConflict; the
// caller must disconnect first.
func (s *Session) Connect(ctx context.Context, params domain.ConnParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.ConnConnected || s.state == domain.ConnDegraded {
		if params.ClientID != s.params.ClientID {
			return fmt.Errorf("%w: client %d holds the session, requested %d",
				domain.ErrConnectionConflict, s.params.ClientID, params.ClientID)
		}
		if s.state == domain.ConnConnected {
			return nil
		}
		// Same client id on a degraded session: drop the wedged
		// connection and dial again instead of reporting success.
		_ = s.gw.Disconnect(ctx)
		s.state = domain.ConnDisconnected
	}

	s.state = domain.ConnConnecting
	s.log.Info("connecting", "host", params.Host, "port", params.Port, "clientId", params.ClientID)

	if err := s.gw.Connect(ctx, params); err != nil {
		s.state = domain.ConnDisconnected
		s.lastErr = err.Error()
		s.log.Error("connect failed", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	s.state = domain.ConnConnected
	s.params = params
	s.lastErr = ""
	s.heartbeat = time.Now().UTC()
	s.log.Info("connected", "clientId", params.ClientID, "account", params.Account)
	return nil
}

// Reconnect retries the last-known connection parameters. It fails with
// domain.ErrNotConnected when no parameters have ever been supplied.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.params == (domain.ConnParams{}) {
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	params := s.params
	s.mu.Unlock()
	// Connect drops a wedged degraded session before dialing again.
	return s.Connect(ctx, params)
}

// Disconnect tears down the session. It always succeeds.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gw.Disconnect(ctx); err != nil {
		s.log.Warn("disconnect", "error", err)
	}
	s.state = domain.ConnDisconnected
	s.log.Info("disconnected")
}

// Status returns a snapshot of the connection state.
func (s *Session) Status() domain.ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ConnStatus{
		State:         s.state,
		Params:        s.params,
		LastError:     s.lastErr,
		LastHeartbeat: s.heartbeat,
	}
}

// Connected reports whether the session is usable for wire calls.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == domain.ConnConnected
}

// Submit sends an order through the gateway and returns the broker order
// id. A transport failure degrades the connection state; a broker
// rejection does not (the session is healthy, the order is not).
func (s *Session) Submit(ctx context.Context, order *domain.PendingOrder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return "", domain.ErrNotConnected
	}
	brokerID, err := s.gw.SubmitOrder(ctx, order)
	s.observeLocked(err)
	return brokerID, err
}

// Cancel requests a broker-side cancel for the given broker order id.
func (s *Session) Cancel(ctx context.Context, brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return domain.ErrNotConnected
	}
	err := s.gw.CancelOrder(ctx, brokerOrderID)
	s.observeLocked(err)
	return err
}

// PollFills drains the gateway's pending fill events.
func (s *Session) PollFills(ctx context.Context) ([]domain.FillEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return nil, domain.ErrNotConnected
	}
	events, err := s.gw.PollFills(ctx)
	s.observeLocked(err)
	return events, err
}

// TrackOrder re-registers a broker order id with the gateway's fill
// tracking, used by startup reconciliation.
func (s *Session) TrackOrder(brokerOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gw.TrackOrder(brokerOrderID)
}

// Account returns the gateway account snapshot.
func (s *Session) Account(ctx context.Context) (*domain.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return nil, domain.ErrNotConnected
	}
	info, err := s.gw.GetAccount(ctx)
	s.observeLocked(err)
	return info, err
}

// Positions returns the gateway-side position snapshot.
func (s *Session) Positions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return nil, domain.ErrNotConnected
	}
	positions, err := s.gw.GetPositions(ctx)
	s.observeLocked(err)
	return positions, err
}

// OpenOrders returns the orders currently resting at the broker.
func (s *Session) OpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return nil, domain.ErrNotConnected
	}
	orders, err := s.gw.GetOpenOrders(ctx)
	s.observeLocked(err)
	return orders, err
}

// Quote returns a quote for the symbol.
func (s *Session) Quote(ctx context.Context, symbol string, market domain.MarketType) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ConnConnected {
		return nil, domain.ErrNotConnected
	}
	quote, err := s.gw.GetQuote(ctx, symbol, market)
	s.observeLocked(err)
	return quote, err
}

// observeLocked updates heartbeat and degradation from a wire call
// result. Broker rejections keep the session healthy; transport errors
// degrade it so the worker attempts a reconnect next cycle.
func (s *Session) observeLocked(err error) {
	if err == nil {
		s.heartbeat = time.Now().UTC()
		return
	}
	if isTransport(err) {
		s.state = domain.ConnDegraded
		s.lastErr = err.Error()
		s.log.Warn("session degraded", "error", err)
	}
}

func isTransport(err error) bool {
	return errors.Is(err, domain.ErrConnection)
}
