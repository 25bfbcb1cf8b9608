package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
	"quantdinger/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements Gateway against the Alpaca trading API. Fill
// events are synthesized by polling tracked orders, since the REST API
// reports cumulative filled quantity rather than an execution stream.
type AlpacaGateway struct {
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string

	client   *alpaca.Client
	mdClient *marketdata.Client

	// limiter paces API calls under Alpaca's 200 requests/minute cap.
	limiter *util.RateLimiter

	// tracked maps broker order ids to the fill progress already
	// reported, so each poll emits only the delta.
	tracked map[string]*trackedOrder
}

type trackedOrder struct {
	seq    int64
	filled int64
}

// NewAlpacaGateway creates an AlpacaGateway configured with the given
// credentials and endpoints. The connection is established by Connect.
func NewAlpacaGateway(apiKey, apiSecret, baseURL, dataURL string) *AlpacaGateway {
	return &AlpacaGateway{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		dataURL:   dataURL,
		limiter:   util.NewRateLimiter(180),
		tracked:   make(map[string]*trackedOrder),
	}
}

// Name returns "alpaca".
func (g *AlpacaGateway) Name() string {
	return "alpaca"
}

// Connect builds the API clients and validates credentials with an
// account lookup. ConnParams host/port are ignored; the Alpaca endpoint
// comes from configuration.
func (g *AlpacaGateway) Connect(ctx context.Context, params domain.ConnParams) error {
	g.client = alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    g.apiKey,
		APISecret: g.apiSecret,
		BaseURL:   g.baseURL,
	})
	g.mdClient = marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    g.apiKey,
		APISecret: g.apiSecret,
		BaseURL:   g.dataURL,
	})

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := g.client.GetAccount(); err != nil {
		g.client = nil
		g.mdClient = nil
		return classifyAlpacaErr(err, "GetAccount")
	}
	return nil
}

// Disconnect drops the API clients and clears fill tracking.
func (g *AlpacaGateway) Disconnect(ctx context.Context) error {
	g.client = nil
	g.mdClient = nil
	g.tracked = make(map[string]*trackedOrder)
	return nil
}

// SubmitOrder places the order and registers it for fill polling.
func (g *AlpacaGateway) SubmitOrder(ctx context.Context, order *domain.PendingOrder) (string, error) {
	if g.client == nil {
		return "", domain.ErrNotConnected
	}

	qty := decimal.NewFromInt(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpacaSide(order.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
		// Replays under the same local id must not create a second
		// broker order.
		ClientOrderID: order.ID,
	}
	if order.Type == domain.OrderTypeLimit && order.LimitPrice.Valid {
		req.Type = alpaca.Limit
		req.LimitPrice = &order.LimitPrice.Decimal
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	placed, err := g.client.PlaceOrder(req)
	if err != nil {
		return "", classifyAlpacaErr(err, "PlaceOrder")
	}
	g.tracked[placed.ID] = &trackedOrder{}
	return placed.ID, nil
}

// CancelOrder requests cancellation. A broker refusal because the order
// already filled maps to domain.ErrAlreadyFilled.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if g.client == nil {
		return domain.ErrNotConnected
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.client.CancelOrder(brokerOrderID); err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 422 {
			return domain.ErrAlreadyFilled
		}
		return classifyAlpacaErr(err, "CancelOrder")
	}
	return nil
}

// PollFills queries each tracked order and emits delta events. Orders
// that reached a terminal broker state are dropped from tracking after
// their final event is emitted.
func (g *AlpacaGateway) PollFills(ctx context.Context) ([]domain.FillEvent, error) {
	if g.client == nil {
		return nil, domain.ErrNotConnected
	}

	var events []domain.FillEvent
	for id, tr := range g.tracked {
		if err := g.limiter.Wait(ctx); err != nil {
			return events, err
		}
		ord, err := g.client.GetOrder(id)
		if err != nil {
			return events, classifyAlpacaErr(err, "GetOrder")
		}

		filled := ord.FilledQty.IntPart()
		status := strings.ToLower(string(ord.Status))
		terminal := status == "filled" || status == "canceled" ||
			status == "rejected" || status == "expired"

		if delta := filled - tr.filled; delta > 0 {
			kind := domain.FillKindPartial
			if status == "filled" {
				kind = domain.FillKindFill
			}
			price := decimal.Zero
			if ord.FilledAvgPrice != nil {
				price = *ord.FilledAvgPrice
			}
			tr.seq++
			tr.filled = filled
			events = append(events, domain.FillEvent{
				BrokerOrderID: id,
				Seq:           tr.seq,
				Kind:          kind,
				Qty:           delta,
				Price:         price,
				At:            ord.UpdatedAt,
			})
		}

		switch status {
		case "canceled", "expired":
			tr.seq++
			events = append(events, domain.FillEvent{
				BrokerOrderID: id,
				Seq:           tr.seq,
				Kind:          domain.FillKindCancelled,
				Reason:        status,
				At:            ord.UpdatedAt,
			})
		case "rejected":
			tr.seq++
			events = append(events, domain.FillEvent{
				BrokerOrderID: id,
				Seq:           tr.seq,
				Kind:          domain.FillKindRejected,
				Reason:        "rejected by broker",
				At:            ord.UpdatedAt,
			})
		}

		if terminal {
			delete(g.tracked, id)
		}
	}
	return events, nil
}

// TrackOrder resumes fill polling for an order submitted before a
// restart. Progress already reconciled locally is rediscovered through
// the fill store's idempotency key, so tracking restarts from zero.
func (g *AlpacaGateway) TrackOrder(brokerOrderID string) {
	if _, ok := g.tracked[brokerOrderID]; !ok {
		g.tracked[brokerOrderID] = &trackedOrder{}
	}
}

// GetAccount returns a snapshot of account financials.
func (g *AlpacaGateway) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if g.client == nil {
		return nil, domain.ErrNotConnected
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := g.client.GetAccount()
	if err != nil {
		return nil, classifyAlpacaErr(err, "GetAccount")
	}
	return &domain.AccountInfo{
		Account:     acct.AccountNumber,
		Currency:    acct.Currency,
		Equity:      acct.Equity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
	}, nil
}

// GetPositions returns the broker-side position snapshot.
func (g *AlpacaGateway) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if g.client == nil {
		return nil, domain.ErrNotConnected
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := g.client.GetPositions()
	if err != nil {
		return nil, classifyAlpacaErr(err, "GetPositions")
	}
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		pos := domain.Position{
			Symbol:   p.Symbol,
			Market:   domain.MarketUSStock,
			Qty:      p.Qty.IntPart(),
			AvgEntry: p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			pos.LastPrice = *p.CurrentPrice
		}
		out = append(out, pos)
	}
	return out, nil
}

// GetOpenOrders lists orders currently resting at the broker.
func (g *AlpacaGateway) GetOpenOrders(ctx context.Context) ([]domain.BrokerOrder, error) {
	if g.client == nil {
		return nil, domain.ErrNotConnected
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := g.client.GetOrders(alpaca.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, classifyAlpacaErr(err, "GetOrders")
	}
	out := make([]domain.BrokerOrder, 0, len(orders))
	for _, o := range orders {
		bo := domain.BrokerOrder{
			BrokerOrderID: o.ID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          domainSide(o.Side),
			Filled:        o.FilledQty.IntPart(),
			Status:        string(o.Status),
		}
		if o.Qty != nil {
			bo.Qty = o.Qty.IntPart()
			bo.Remaining = bo.Qty - bo.Filled
		}
		if o.LimitPrice != nil {
			bo.LimitPrice = decimal.NullDecimal{Decimal: *o.LimitPrice, Valid: true}
		}
		out = append(out, bo)
	}
	return out, nil
}

// GetQuote returns the latest snapshot quote for the symbol.
func (g *AlpacaGateway) GetQuote(ctx context.Context, symbol string, market domain.MarketType) (*domain.Quote, error) {
	if g.mdClient == nil {
		return nil, domain.ErrNotConnected
	}
	if market != domain.MarketUSStock {
		return nil, fmt.Errorf("%w: market %s has no quote source", domain.ErrValidation, market)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	snap, err := g.mdClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, classifyAlpacaErr(err, "GetSnapshot")
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot for %s", domain.ErrValidation, symbol)
	}

	q := &domain.Quote{Symbol: symbol}
	if snap.LatestQuote != nil {
		q.Bid = decimal.NewFromFloat(snap.LatestQuote.BidPrice)
		q.Ask = decimal.NewFromFloat(snap.LatestQuote.AskPrice)
	}
	if snap.LatestTrade != nil {
		q.Last = decimal.NewFromFloat(snap.LatestTrade.Price)
	}
	if snap.DailyBar != nil {
		q.High = decimal.NewFromFloat(snap.DailyBar.High)
		q.Low = decimal.NewFromFloat(snap.DailyBar.Low)
		q.Volume = int64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil {
		q.Close = decimal.NewFromFloat(snap.PrevDailyBar.Close)
	}
	return q, nil
}

func alpacaSide(side domain.OrderSide) alpaca.Side {
	if side == domain.OrderSideSell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func domainSide(side alpaca.Side) domain.OrderSide {
	if side == alpaca.Sell {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}

// classifyAlpacaErr maps an Alpaca API error onto the domain error
// taxonomy. 4xx responses are definitive broker answers; everything else
// is treated as a transport problem worth retrying.
func classifyAlpacaErr(err error, op string) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return fmt.Errorf("%w: %s: %s", domain.ErrBrokerRejected, op, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConnection, op, err)
}
