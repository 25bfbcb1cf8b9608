// Package httpapi exposes the trading control surface over HTTP: broker
// connection management, order placement and cancellation, positions,
// trades, and a websocket feed of order notifications.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"quantdinger/internal/domain"
	"quantdinger/internal/engine"
	"quantdinger/internal/store"
)

// Server serves the trading control API.
type Server struct {
	eng     *engine.Engine
	archive *store.TradeArchive
	hub     *Hub
	log     *slog.Logger
}

// NewServer creates a Server. archive may be nil when trade archiving is
// disabled; hub may be nil when the websocket feed is disabled.
func NewServer(eng *engine.Engine, archive *store.TradeArchive, hub *Hub, log *slog.Logger) *Server {
	return &Server{
		eng:     eng,
		archive: archive,
		hub:     hub,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/broker/status", s.handleStatus)
	mux.HandleFunc("POST /api/broker/connect", s.handleConnect)
	mux.HandleFunc("POST /api/broker/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /api/broker/account", s.handleAccount)
	mux.HandleFunc("GET /api/broker/positions", s.handleBrokerPositions)
	mux.HandleFunc("GET /api/broker/orders", s.handleBrokerOrders)

	mux.HandleFunc("POST /api/orders", s.handlePlaceOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)

	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/trades/archive", s.handleArchiveDates)
	mux.HandleFunc("GET /api/trades/archive/{date}", s.handleArchiveDay)

	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.handleWS)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeDomainError maps a domain error onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnsupportedSignal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrConnectionConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrConnection):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrBrokerRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.eng.ConnStatus()
	resp := StatusResponse{
		State:     string(st.State),
		Host:      st.Params.Host,
		Port:      st.Params.Port,
		ClientID:  st.Params.ClientID,
		Account:   st.Params.Account,
		LastError: st.LastError,
	}
	if !st.LastHeartbeat.IsZero() {
		resp.LastHeartbeat = st.LastHeartbeat.UnixMilli()
	}
	writeJSON(w, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Host == "" || req.Port <= 0 {
		writeError(w, http.StatusBadRequest, "host and port required")
		return
	}
	err := s.eng.Connect(r.Context(), domain.ConnParams{
		Host:     req.Host,
		Port:     req.Port,
		ClientID: req.ClientID,
		Account:  req.Account,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Disconnect(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.Account(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, AccountJSON{
		Account:     info.Account,
		Currency:    info.Currency,
		Equity:      info.Equity,
		Cash:        info.Cash,
		BuyingPower: info.BuyingPower,
	})
}

func (s *Server) handleBrokerPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.eng.BrokerPositions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := PositionsResponse{Positions: make([]PositionJSON, 0, len(positions))}
	for _, p := range positions {
		resp.Positions = append(resp.Positions, convertPosition(p))
	}
	writeJSON(w, resp)
}

func (s *Server) handleBrokerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.eng.BrokerOpenOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]BrokerOrderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, BrokerOrderJSON{
			BrokerOrderID: o.BrokerOrderID,
			Symbol:        o.Symbol,
			Side:          string(o.Side),
			Qty:           o.Qty,
			Filled:        o.Filled,
			Remaining:     o.Remaining,
			LimitPrice:    o.LimitPrice,
			Status:        o.Status,
		})
	}
	writeJSON(w, map[string]any{"orders": out})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	order, err := s.eng.PlaceSignal(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, convertOrder(order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	orders, err := s.eng.ListOrders(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := OrdersResponse{Orders: make([]OrderJSON, 0, len(orders))}
	for i := range orders {
		resp.Orders = append(resp.Orders, convertOrder(&orders[i]))
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.eng.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, convertOrder(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.eng.CancelOrder(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	order, err := s.eng.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, convertOrder(order))
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.eng.ListPositions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := PositionsResponse{Positions: make([]PositionJSON, 0, len(positions))}
	for _, p := range positions {
		resp.Positions = append(resp.Positions, convertPosition(p))
	}
	writeJSON(w, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	trades, err := s.eng.ListTrades(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := TradesResponse{Trades: make([]TradeJSON, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, convertTrade(t))
	}
	writeJSON(w, resp)
}

func (s *Server) handleArchiveDates(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, DatesResponse{Dates: []string{}})
		return
	}
	dates, err := s.archive.Dates()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing archive dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, DatesResponse{Dates: dates})
}

func (s *Server) handleArchiveDay(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "trade archive disabled")
		return
	}
	date := r.PathValue("date")
	trades, err := s.archive.Read(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusNotFound, "no archive for "+date)
		return
	}
	resp := TradesResponse{Trades: make([]TradeJSON, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, convertTrade(t))
	}
	writeJSON(w, resp)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	market := domain.MarketType(r.URL.Query().Get("market"))
	if market == "" {
		market = domain.MarketUSStock
	}
	quote, err := s.eng.Quote(r.Context(), symbol, market)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, QuoteJSON{
		Symbol: quote.Symbol,
		Bid:    quote.Bid,
		Ask:    quote.Ask,
		Last:   quote.Last,
		High:   quote.High,
		Low:    quote.Low,
		Close:  quote.Close,
		Volume: quote.Volume,
	})
}
