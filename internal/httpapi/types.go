package httpapi

import (
	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
)

// ConnectRequest carries broker connection parameters.
type ConnectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"clientId"`
	Account  string `json:"account,omitempty"`
}

// StatusResponse reports the broker connection state.
type StatusResponse struct {
	State         string `json:"state"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	ClientID      int    `json:"clientId,omitempty"`
	Account       string `json:"account,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	LastHeartbeat int64  `json:"lastHeartbeat,omitempty"`
}

// OrderJSON is the wire form of a pending order.
type OrderJSON struct {
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
	Attempts      int                 `json:"attempts,omitempty"`
	LastError     string              `json:"lastError,omitempty"`
	CancelRequest bool                `json:"cancelRequested,omitempty"`
	CreatedAt     int64               `json:"createdAt"`
	UpdatedAt     int64               `json:"updatedAt"`
}

func convertOrder(o *domain.PendingOrder) OrderJSON {
	return OrderJSON{
		ID:            o.ID,
		StrategyID:    o.StrategyID,
		Symbol:        o.Symbol,
		Market:        string(o.Market),
		Side:          string(o.Side),
		Intent:        string(o.Intent),
		Qty:           o.Qty,
		Type:          string(o.Type),
		LimitPrice:    o.LimitPrice,
		Status:        string(o.Status),
		BrokerOrderID: o.BrokerOrderID,
		Attempts:      o.Attempts,
		LastError:     o.LastError,
		CancelRequest: o.CancelRequest,
		CreatedAt:     o.CreatedAt.UnixMilli(),
		UpdatedAt:     o.UpdatedAt.UnixMilli(),
	}
}

// PositionJSON is the wire form of a reconciled position.
type PositionJSON struct {
	Account   string          `json:"account,omitempty"`
	Symbol    string          `json:"symbol"`
	Display   string          `json:"displaySymbol"`
	Market    string          `json:"market"`
	Qty       int64           `json:"qty"`
	AvgEntry  decimal.Decimal `json:"avgEntry"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	UpdatedAt int64           `json:"updatedAt"`
}

func convertPosition(p domain.Position) PositionJSON {
	gwSymbol, exchange, _ := domain.NormalizeSymbol(p.Symbol, p.Market)
	return PositionJSON{
		Account:   p.Account,
		Symbol:    p.Symbol,
		Display:   domain.DisplaySymbol(gwSymbol, exchange),
		Market:    string(p.Market),
		Qty:       p.Qty,
		AvgEntry:  p.AvgEntry,
		LastPrice: p.LastPrice,
		UpdatedAt: p.UpdatedAt.UnixMilli(),
	}
}

// TradeJSON is the wire form of a trade record.
type TradeJSON struct {
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

func convertTrade(t domain.Trade) TradeJSON {
	return TradeJSON{
		ID:         t.ID,
		OrderID:    t.OrderID,
		StrategyID: t.StrategyID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Qty:        t.Qty,
		Price:      t.Price,
		Value:      t.Value,
		Profit:     t.Profit,
		CreatedAt:  t.CreatedAt.UnixMilli(),
	}
}

// QuoteJSON is the wire form of a market quote.
type QuoteJSON struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// AccountJSON is the wire form of the broker account snapshot.
type AccountJSON struct {
	Account     string          `json:"account"`
	Currency    string          `json:"currency"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buyingPower"`
}

// BrokerOrderJSON is the wire form of an order resting at the broker.
type BrokerOrderJSON struct {
	BrokerOrderID string              `json:"brokerOrderId"`
	Symbol        string              `json:"symbol"`
	Side          string              `json:"side"`
	Qty           int64               `json:"qty"`
	Filled        int64               `json:"filled"`
	Remaining     int64               `json:"remaining"`
	LimitPrice    decimal.NullDecimal `json:"limitPrice,omitempty"`
	Status        string              `json:"status"`
}

// OrdersResponse wraps an order list.
type OrdersResponse struct {
	Orders []OrderJSON `json:"orders"`
}

// PositionsResponse wraps a position list.
type PositionsResponse struct {
	Positions []PositionJSON `json:"positions"`
}

// TradesResponse wraps a trade list.
type TradesResponse struct {
	Trades []TradeJSON `json:"trades"`
}

// DatesResponse lists archived trade dates.
type DatesResponse struct {
	Dates []string `json:"dates"`
}
