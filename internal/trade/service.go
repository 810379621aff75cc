// Package trade provides the HTTP and WebSocket request layer: it decodes
// requests, calls the settlement engine and maps its errors to statuses.
//
// Numeric request fields are decoded with shopspring/decimal so that both
// JSON numbers and numeric strings are accepted; they must be integral.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/RutamBhagat/project-1-probo-v0/internal/engine"
	"github.com/RutamBhagat/project-1-probo-v0/internal/limits"
	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
	"github.com/RutamBhagat/project-1-probo-v0/internal/symbol"
)

// ErrBadRequest is returned for malformed or incomplete request bodies.
var ErrBadRequest = errors.New("trade: bad request")

// Service handles settlement requests. All state lives behind the engine.
type Service struct {
	engine     *engine.Engine
	allowReset bool
	origins    OriginPolicy
	upgrader   websocket.Upgrader
}

// NewService creates a new request service. Reset is refused unless
// allowReset is set. origins decides which browser origins may open a
// WebSocket session; with a nil policy only same-origin pages may.
func NewService(eng *engine.Engine, allowReset bool, origins OriginPolicy) *Service {
	s := &Service{engine: eng, allowReset: allowReset, origins: origins}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Mount registers every route on r. r is expected to be mounted under
// /api/v1.
func (s *Service) Mount(r chi.Router) {
	r.Post("/user/create/{userID}", s.CreateUser)
	r.Get("/user", s.ListUsers)

	r.Post("/symbol/create/{symbolID}", s.CreateSymbol)
	r.Get("/symbol", s.ListSymbols)

	r.Post("/onramp/inr", s.Onramp)
	r.Post("/trade/mint", s.Mint)

	r.Post("/order/buy", s.Buy)
	r.Post("/order/sell", s.Sell)
	r.Post("/order/cancel", s.Cancel)

	r.Get("/orderbook", s.GetOrderBook)
	r.Get("/orderbook/{symbolID}/{side}", s.GetDepth)
	r.Get("/balances/inr", s.GetCashBalances)
	r.Get("/balances/stock", s.GetStockBalances)
	r.Get("/trades/{symbolID}", s.GetTrades)

	r.Post("/reset", s.Reset)
}

// --- Request/Response types ---

// OnrampRequest is the JSON body for POST /onramp/inr.
type OnrampRequest struct {
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"` // optional idempotency key
}

// MintRequest is the JSON body for POST /trade/mint.
type MintRequest struct {
	UserID      string          `json:"userId"`
	StockSymbol string          `json:"stockSymbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// OrderRequest is the JSON body for the order endpoints. OrderType is only
// read by cancel.
type OrderRequest struct {
	UserID      string          `json:"userId"`
	StockSymbol string          `json:"stockSymbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	StockType   string          `json:"stockType"` // "yes" or "no"
	OrderType   string          `json:"orderType,omitempty"`
}

// MessageResponse is the body of every state-changing response.
type MessageResponse struct {
	Message string `json:"message"`
}

type OnrampResponse struct {
	Message   string            `json:"message"`
	Account   model.CashAccount `json:"account"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

type MintResponse struct {
	Message          string     `json:"message"`
	Mint             model.Mint `json:"mint"`
	RemainingBalance int64      `json:"remainingBalance"`
}

type BuyResponse struct {
	Message           string            `json:"message"`
	OrderID           string            `json:"orderId"`
	MatchedPrice      *int64            `json:"matchedPrice,omitempty"`
	RemainingQuantity int64             `json:"remainingQuantity"`
	Status            model.OrderStatus `json:"status"`
	Trades            []model.Trade     `json:"trades"`
}

type OrderResponse struct {
	Message string      `json:"message"`
	Order   model.Order `json:"order"`
}

// --- Operations shared by HTTP and WebSocket ---

func (s *Service) onramp(ctx context.Context, req OnrampRequest) (*OnrampResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	amount, err := toInt64("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Deposit(ctx, req.UserID, amount, req.Reference)
	if err != nil {
		return nil, err
	}
	return &OnrampResponse{
		Message:   fmt.Sprintf("Onramped %s with amount %d", req.UserID, amount),
		Account:   res.Account,
		Duplicate: res.Duplicate,
	}, nil
}

func (s *Service) mint(ctx context.Context, req MintRequest) (*MintResponse, error) {
	if req.UserID == "" || req.StockSymbol == "" {
		return nil, fmt.Errorf("%w: userId and stockSymbol are required", ErrBadRequest)
	}
	qty, err := toInt64("quantity", req.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := toInt64("price", req.Price)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Mint(ctx, engine.MintRequest{
		UserID: req.UserID, SymbolID: req.StockSymbol, Quantity: qty, Price: price,
	})
	if err != nil {
		return nil, err
	}
	return &MintResponse{
		Message: fmt.Sprintf("Minted %d 'yes' and 'no' tokens for user %s, remaining balance is %d",
			qty, req.UserID, res.Remaining),
		Mint:             res.Mint,
		RemainingBalance: res.Remaining,
	}, nil
}

func (s *Service) buy(ctx context.Context, req OrderRequest) (*BuyResponse, error) {
	or, err := req.toEngine()
	if err != nil {
		return nil, err
	}
	res, err := s.engine.PlaceBuyOrder(ctx, or)
	if err != nil {
		return nil, err
	}

	var msg string
	switch res.Status {
	case model.StatusFilled:
		msg = fmt.Sprintf("Buy order fully matched at best price %d", *res.MatchedPrice)
	case model.StatusPartiallyFilled:
		msg = fmt.Sprintf("Buy order partially matched, %d tokens remaining", res.RemainingQuantity)
	default:
		msg = "Buy order placed and pending"
	}
	return &BuyResponse{
		Message:           msg,
		OrderID:           res.OrderID,
		MatchedPrice:      res.MatchedPrice,
		RemainingQuantity: res.RemainingQuantity,
		Status:            res.Status,
		Trades:            res.Trades,
	}, nil
}

func (s *Service) sell(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	or, err := req.toEngine()
	if err != nil {
		return nil, err
	}
	o, err := s.engine.PlaceSellOrder(ctx, or)
	if err != nil {
		return nil, err
	}
	return &OrderResponse{
		Message: fmt.Sprintf("Sell order placed for %d '%s' options at price %d.", o.Quantity, o.Side, o.Price),
		Order:   *o,
	}, nil
}

func (s *Service) cancel(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	or, err := req.toEngine()
	if err != nil {
		return nil, err
	}
	if req.OrderType == "" {
		return nil, fmt.Errorf("%w: orderType is required", ErrBadRequest)
	}
	dir, err := model.ParseDirection(req.OrderType)
	if err != nil {
		return nil, err
	}

	o, err := s.engine.CancelOrder(ctx, engine.CancelRequest{
		UserID: or.UserID, SymbolID: or.SymbolID, Side: or.Side,
		Direction: dir, Quantity: or.Quantity, Price: or.Price,
	})
	if err != nil {
		return nil, err
	}
	return &OrderResponse{Message: fmt.Sprintf("%s order canceled", dir), Order: *o}, nil
}

func (req OrderRequest) toEngine() (engine.OrderRequest, error) {
	if req.UserID == "" || req.StockSymbol == "" || req.StockType == "" {
		return engine.OrderRequest{}, fmt.Errorf("%w: userId, stockSymbol and stockType are required", ErrBadRequest)
	}
	side, err := model.ParseSide(req.StockType)
	if err != nil {
		return engine.OrderRequest{}, err
	}
	qty, err := toInt64("quantity", req.Quantity)
	if err != nil {
		return engine.OrderRequest{}, err
	}
	price, err := toInt64("price", req.Price)
	if err != nil {
		return engine.OrderRequest{}, err
	}
	return engine.OrderRequest{
		UserID: req.UserID, SymbolID: req.StockSymbol, Side: side, Quantity: qty, Price: price,
	}, nil
}

// toInt64 converts an integral decimal that fits in int64.
func toInt64(field string, d decimal.Decimal) (int64, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s must be an integer, got %s", ErrBadRequest, field, d)
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: %s out of range: %s", ErrBadRequest, field, d)
	}
	return d.IntPart(), nil
}

// --- HTTP Handlers ---

// CreateUser handles POST /api/v1/user/create/{userID}
func (s *Service) CreateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.engine.CreateUser(r.Context(), userID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: fmt.Sprintf("User %s created", userID)})
}

// ListUsers handles GET /api/v1/user
func (s *Service) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.engine.Users(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateSymbol handles POST /api/v1/symbol/create/{symbolID}
func (s *Service) CreateSymbol(w http.ResponseWriter, r *http.Request) {
	symbolID := chi.URLParam(r, "symbolID")
	if _, err := s.engine.CreateSymbol(r.Context(), symbolID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: fmt.Sprintf("Symbol %s created", symbolID)})
}

// ListSymbols handles GET /api/v1/symbol
func (s *Service) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.engine.Symbols(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if symbols == nil {
		symbols = []model.Symbol{}
	}
	writeJSON(w, http.StatusOK, symbols)
}

// Onramp handles POST /api/v1/onramp/inr
func (s *Service) Onramp(w http.ResponseWriter, r *http.Request) {
	var req OnrampRequest
	if err := decode(r.Body, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.onramp(r.Context(), req)
	reply(w, http.StatusOK, res, err)
}

// Mint handles POST /api/v1/trade/mint
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decode(r.Body, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.mint(r.Context(), req)
	reply(w, http.StatusOK, res, err)
}

// Buy handles POST /api/v1/order/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decode(r.Body, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.buy(r.Context(), req)
	reply(w, http.StatusOK, res, err)
}

// Sell handles POST /api/v1/order/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decode(r.Body, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.sell(r.Context(), req)
	reply(w, http.StatusOK, res, err)
}

// Cancel handles POST /api/v1/order/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decode(r.Body, &req); err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.cancel(r.Context(), req)
	reply(w, http.StatusOK, res, err)
}

// GetOrderBook handles GET /api/v1/orderbook
func (s *Service) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.OrderBook(r.Context())
	reply(w, http.StatusOK, res, err)
}

// GetDepth handles GET /api/v1/orderbook/{symbolID}/{side}
func (s *Service) GetDepth(w http.ResponseWriter, r *http.Request) {
	side, err := model.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.engine.Depth(r.Context(), chi.URLParam(r, "symbolID"), side)
	reply(w, http.StatusOK, res, err)
}

// GetCashBalances handles GET /api/v1/balances/inr
func (s *Service) GetCashBalances(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.Balances(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Cash)
}

// GetStockBalances handles GET /api/v1/balances/stock
func (s *Service) GetStockBalances(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.Balances(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Tokens)
}

// GetTrades handles GET /api/v1/trades/{symbolID}
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Trades(r.Context(), chi.URLParam(r, "symbolID"))
	reply(w, http.StatusOK, res, err)
}

// Reset handles POST /api/v1/reset. Disabled unless explicitly allowed.
func (s *Service) Reset(w http.ResponseWriter, r *http.Request) {
	if !s.allowReset {
		writeError(w, "reset is disabled", http.StatusForbidden)
		return
	}
	if err := s.engine.Reset(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Database cleared successfully"})
}

// --- Helpers ---

func decode(body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	return nil
}

// reply writes v with status, or the mapped error.
func reply(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, status, v)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, engine.ErrInvalidOrder),
		errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidSide),
		errors.Is(err, model.ErrInvalidDirection),
		errors.Is(err, symbol.ErrInvalidSymbol),
		errors.Is(err, symbol.ErrInvalidExpiry):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUserNotFound),
		errors.Is(err, engine.ErrSymbolNotFound),
		errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientStock),
		errors.Is(err, limits.ErrQuantityLimitExceeded),
		errors.Is(err, limits.ErrNotionalLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUserExists),
		errors.Is(err, engine.ErrSymbolExists),
		errors.Is(err, engine.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeErr writes err with its mapped status. Internal errors are not
// echoed to the client.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, strings.TrimSpace(msg), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
