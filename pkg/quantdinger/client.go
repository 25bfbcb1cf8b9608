// Package quantdinger provides a Go client for the trader control API.
package quantdinger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to a quantdinger-trader instance over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ConnParams are broker connection parameters.
type ConnParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"clientId"`
	Account  string `json:"account,omitempty"`
}

// ConnStatus reports the broker connection state.
type ConnStatus struct {
	State         string `json:"state"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	ClientID      int    `json:"clientId,omitempty"`
	Account       string `json:"account,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	LastHeartbeat int64  `json:"lastHeartbeat,omitempty"`
}

// OrderRequest places a strategy signal.
type OrderRequest struct {
	StrategyID string              `json:"strategyId"`
	Symbol     string              `json:"symbol"`
	Market     string              `json:"market"`
	Kind       string              `json:"kind"`
	Qty        int64               `json:"qty"`
	Type       string              `json:"orderType,omitempty"`
	LimitPrice decimal.NullDecimal `json:"limitPrice,omitempty"`
	Account    string              `json:"account,omitempty"`
}

// Order is a pending order as reported by the API.
type Order struct {
	ID            string              `json:"id"`
	StrategyID    string              `json:"strategyId"`
	Symbol        string              `json:"symbol"`
	Market        string              `json:"market"`
	Side          string              `json:"side"`
	Intent        string              `json:"intent"`
	Qty           int64               `json:"qty"`
	Type          string              `json:"orderType"`
	LimitPrice    decimal.NullDecimal `json:"limitPrice,omitempty"`
	Status        string              `json:"status"`
	BrokerOrderID string              `json:"brokerOrderId,omitempty"`
	LastError     string              `json:"lastError,omitempty"`
	CreatedAt     int64               `json:"createdAt"`
	UpdatedAt     int64               `json:"updatedAt"`
}

// Position is a reconciled holding.
type Position struct {
	Account   string          `json:"account,omitempty"`
	Symbol    string          `json:"symbol"`
	Display   string          `json:"displaySymbol"`
	Market    string          `json:"market"`
	Qty       int64           `json:"qty"`
	AvgEntry  decimal.Decimal `json:"avgEntry"`
	LastPrice decimal.Decimal `json:"lastPrice"`
}

// Trade is one broker-confirmed fill.
type Trade struct {
	ID         int64               `json:"id"`
	OrderID    string              `json:"orderId"`
	StrategyID string              `json:"strategyId"`
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	Qty        int64               `json:"qty"`
	Price      decimal.Decimal     `json:"price"`
	Value      decimal.Decimal     `json:"value"`
	Profit     decimal.NullDecimal `json:"profit,omitempty"`
	CreatedAt  int64               `json:"createdAt"`
}

// Quote is a market quote.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Account is the broker account snapshot.
type Account struct {
	Account     string          `json:"account"`
	Currency    string          `json:"currency"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
}

// APIError is a non-2xx response from the trader API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Status returns the broker connection status.
func (c *Client) Status(ctx context.Context) (*ConnStatus, error) {
	var st ConnStatus
	if err := c.do(ctx, http.MethodGet, "/api/broker/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Connect establishes the broker session.
func (c *Client) Connect(ctx context.Context, params ConnParams) (*ConnStatus, error) {
	var st ConnStatus
	if err := c.do(ctx, http.MethodPost, "/api/broker/connect", params, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Disconnect tears the broker session down.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/broker/disconnect", struct{}{}, nil)
}

// GetAccount returns the broker account snapshot.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var a Account
	if err := c.do(ctx, http.MethodGet, "/api/broker/account", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PlaceOrder submits a strategy signal and returns the enqueued order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder requests cancellation of an order.
func (c *Client) CancelOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders lists orders, optionally filtered by status.
func (c *Client) ListOrders(ctx context.Context, status string) ([]Order, error) {
	path := "/api/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetPositions returns the reconciled positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetTrades returns recent trades, newest first.
func (c *Client) GetTrades(ctx context.Context, limit int) ([]Trade, error) {
	path := "/api/trades"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetQuote returns a quote for the symbol.
func (c *Client) GetQuote(ctx context.Context, symbol, market string) (*Quote, error) {
	path := "/api/quote/" + url.PathEscape(symbol)
	if market != "" {
		path += "?market=" + url.QueryEscape(market)
	}
	var q Quote
	if err := c.do(ctx, http.MethodGet, path, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
