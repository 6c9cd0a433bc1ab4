// Package broker provides the HTTP handlers and business logic for account
// registration, balance management, order execution, and portfolio queries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package broker

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/auth"
	"github.com/tradedesk/broker-engine/internal/instrument"
	"github.com/tradedesk/broker-engine/internal/ledger"
	"github.com/tradedesk/broker-engine/internal/metrics"
	"github.com/tradedesk/broker-engine/internal/model"
	"github.com/tradedesk/broker-engine/internal/quote"
	"github.com/tradedesk/broker-engine/internal/risk"
	"github.com/tradedesk/broker-engine/internal/store"
)

// Service handles broker operations. Uses a mutex for serialized order and
// balance execution (single-instance). For horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Service struct {
	store           store.Store
	quotes          quote.Source
	ledger          *ledger.Ledger
	limiter         *risk.OrderLimiter
	tokens          *auth.Manager
	hub             *WSHub // optional WebSocket hub for real-time broadcasts
	idem            *idemCache
	startingBalance decimal.Decimal
	mu              sync.Mutex
}

// Options tunes service behavior beyond its collaborators.
type Options struct {
	// StartingBalance is the cash granted at registration; zero → 10,000.
	StartingBalance decimal.Decimal

	// IdempotencyTTL bounds Idempotency-Key replays for POST /orders.
	IdempotencyTTL time.Duration
}

// NewService creates a new broker service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, quotes quote.Source, led *ledger.Ledger, limiter *risk.OrderLimiter, tokens *auth.Manager, hub *WSHub, opts Options) *Service {
	if opts.StartingBalance.LessThanOrEqual(decimal.Zero) {
		opts.StartingBalance = decimal.NewFromInt(10000)
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	return &Service{
		store:           st,
		quotes:          quotes,
		ledger:          led,
		limiter:         limiter,
		tokens:          tokens,
		hub:             hub,
		idem:            newIdemCache(opts.IdempotencyTTL),
		startingBalance: opts.StartingBalance,
	}
}

// Routes returns the /api/v1 router for this service.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/accounts/register", s.Register)
	r.Post("/accounts/login", s.Login)
	r.Get("/quotes/{symbol}", s.GetQuote)
	r.Get("/instruments/search", s.SearchInstruments)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.Middleware)
		r.Get("/accounts/{accountID}/balance", s.GetBalance)
		r.Post("/accounts/{accountID}/balance", s.UpdateBalance)
		r.Get("/accounts/{accountID}/portfolio", s.GetPortfolio)
		r.Post("/orders", s.PlaceOrder)
		r.Get("/orders", s.ListOrders)
	})

	return r
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /accounts/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /accounts/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"account"`
}

// BalanceRequest is the JSON body for POST /accounts/{id}/balance.
type BalanceRequest struct {
	Action string          `json:"action"` // "add" or "withdraw"
	Amount decimal.Decimal `json:"amount"`
}

// BalanceResponse is the JSON body returned from balance endpoints.
type BalanceResponse struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
}

// OrderResponse is the JSON body returned from POST /orders.
type OrderResponse struct {
	Account     *model.Account     `json:"account"`
	Order       *model.OrderRecord `json:"order"`
	RealizedPnL decimal.Decimal    `json:"realized_pnl"`
}

// --- Account handlers ---

// Register handles POST /api/v1/accounts/register.
// Creates an account with the starting cash balance and returns a token.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		writeError(w, "InvalidRequest", "name and a valid email are required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		writeError(w, "InvalidRequest", "password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "InternalError", "failed to hash password", http.StatusInternalServerError)
		return
	}

	account := &model.Account{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CashBalance:  s.startingBalance,
		Holdings:     make(map[string]model.Position),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		writeLedgerError(w, err)
		return
	}

	token, err := s.tokens.IssueToken(account.ID)
	if err != nil {
		writeError(w, "InternalError", "failed to issue token", http.StatusInternalServerError)
		return
	}

	metrics.AccountsRegistered.Inc()
	slog.Info("account registered", "id", account.ID, "email", account.Email)

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Account: account})
}

// Login handles POST /api/v1/accounts/login.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.store.GetAccountByEmail(r.Context(), req.Email)
	if err != nil {
		// Indistinguishable from a wrong password.
		writeError(w, "InvalidCredentials", "invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, "InvalidCredentials", "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.IssueToken(account.ID)
	if err != nil {
		writeError(w, "InternalError", "failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, Account: account})
}

// authorizedAccount checks that the path account ID matches the bearer token
// and loads the account. Writes the error response itself on failure.
func (s *Service) authorizedAccount(w http.ResponseWriter, r *http.Request) *model.Account {
	accountID := chi.URLParam(r, "accountID")
	if accountID != auth.AccountID(r.Context()) {
		writeError(w, "Forbidden", "token does not match account", http.StatusForbidden)
		return nil
	}

	account, err := s.store.GetAccount(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return nil
	}
	return account
}

// GetBalance handles GET /api/v1/accounts/{accountID}/balance.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := s.authorizedAccount(w, r)
	if account == nil {
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{CashBalance: account.CashBalance})
}

// UpdateBalance handles POST /api/v1/accounts/{accountID}/balance.
// Adds or withdraws cash; withdrawals never push the balance negative.
func (s *Service) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, "InvalidAmount", "amount must be positive", http.StatusBadRequest)
		return
	}

	// Serialize with order execution; both mutate the cash balance.
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.authorizedAccount(w, r)
	if account == nil {
		return
	}

	switch req.Action {
	case "add":
		account.CashBalance = account.CashBalance.Add(req.Amount)
	case "withdraw":
		if req.Amount.GreaterThan(account.CashBalance) {
			writeError(w, "InsufficientFunds", "withdrawal exceeds balance", http.StatusConflict)
			return
		}
		account.CashBalance = account.CashBalance.Sub(req.Amount)
	default:
		writeError(w, "InvalidRequest", "action must be add or withdraw", http.StatusBadRequest)
		return
	}

	if err := s.store.SaveAccount(r.Context(), account); err != nil {
		writeError(w, "InternalError", "failed to save account", http.StatusInternalServerError)
		return
	}

	slog.Info("balance updated",
		"account", account.ID,
		"action", req.Action,
		"amount", req.Amount.String(),
		"balance", account.CashBalance.String(),
	)

	writeJSON(w, http.StatusOK, BalanceResponse{CashBalance: account.CashBalance})
}

// GetPortfolio handles GET /api/v1/accounts/{accountID}/portfolio.
// Returns holdings marked to current quotes with unrealized P&L.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	account := s.authorizedAccount(w, r)
	if account == nil {
		return
	}
	ctx := r.Context()

	positions := make([]model.PortfolioPosition, 0, len(account.Holdings))
	marketValue := decimal.Zero
	unrealized := decimal.Zero

	for _, pos := range account.Holdings {
		price, err := s.quotes.Price(ctx, pos.Symbol)
		if err != nil {
			// No quote: mark at cost so the view stays complete.
			price = pos.AverageCost
		}
		qty := decimal.NewFromInt(pos.Quantity)
		value := price.Mul(qty)
		pnl := price.Sub(pos.AverageCost).Mul(qty)

		marketValue = marketValue.Add(value)
		unrealized = unrealized.Add(pnl)
		positions = append(positions, model.PortfolioPosition{
			Position:      pos,
			MarketPrice:   price,
			MarketValue:   value,
			UnrealizedPnL: pnl,
		})
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	writeJSON(w, http.StatusOK, model.Portfolio{
		AccountID:     account.ID,
		CashBalance:   account.CashBalance,
		Positions:     positions,
		MarketValue:   marketValue,
		UnrealizedPnL: unrealized,
		TotalEquity:   account.CashBalance.Add(marketValue),
	})
}

// --- Order handlers ---

// PlaceOrder handles POST /api/v1/orders.
// Resolves the execution price, runs pre-trade risk checks, executes through
// the ledger, and persists the new account state plus the order record.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var instr ledger.Instruction
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		writeError(w, "InvalidRequest", "invalid request body", http.StatusBadRequest)
		return
	}
	if err := instr.Validate(); err != nil {
		writeLedgerError(w, err)
		return
	}

	ctx := r.Context()

	// Replay a retried request instead of executing twice. Keys are scoped
	// to the authenticated account; one account's key never replays
	// another's response.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		idemKey = auth.AccountID(ctx) + "\x00" + idemKey
		if cached, ok := s.idem.get(idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.status)
			w.Write(cached.body)
			return
		}
	}

	// Serialize order execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.store.GetAccount(ctx, auth.AccountID(ctx))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	// Price resolution: market orders use the quote source; limit orders
	// execute immediately at the caller-supplied price.
	var price decimal.Decimal
	if instr.Kind == model.KindLimit {
		price = instr.LimitPrice
	} else {
		price, err = s.quotes.Price(ctx, instr.Symbol)
		if err != nil {
			metrics.OrderRejections.WithLabelValues("QuoteUnavailable").Inc()
			writeLedgerError(w, err)
			return
		}
	}

	if err := s.limiter.Check(account, instr.Side, instr.Symbol, instr.Quantity, price); err != nil {
		metrics.OrderRejections.WithLabelValues("RiskLimitExceeded").Inc()
		writeLedgerError(w, err)
		return
	}

	result, err := s.ledger.Execute(account, instr, price)
	if err != nil {
		metrics.OrderRejections.WithLabelValues(errorKind(err)).Inc()
		writeLedgerError(w, err)
		return
	}

	if err := s.store.SaveAccount(ctx, result.Account); err != nil {
		writeError(w, "InternalError", "failed to save account", http.StatusInternalServerError)
		return
	}
	if err := s.store.AppendOrder(ctx, result.Order); err != nil {
		writeError(w, "InternalError", "failed to record order", http.StatusInternalServerError)
		return
	}

	metrics.OrdersTotal.WithLabelValues(instr.Side).Inc()
	metrics.OrderLatency.WithLabelValues(instr.Side).Observe(time.Since(start).Seconds())

	slog.Info("order executed",
		"order_id", result.Order.ID,
		"account", account.ID,
		"symbol", instr.Symbol,
		"side", instr.Side,
		"qty", instr.Quantity,
		"price", price.String(),
		"total", result.Order.TotalAmount.String(),
		"realized_pnl", result.RealizedPnL.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:     "order_executed",
			Symbol:   instr.Symbol,
			Price:    price.String(),
			Side:     instr.Side,
			Quantity: instr.Quantity,
			OrderID:  result.Order.ID,
		})
	}

	resp := OrderResponse{
		Account:     result.Account,
		Order:       result.Order,
		RealizedPnL: result.RealizedPnL,
	}
	body, _ := json.Marshal(resp)
	if idemKey != "" {
		s.idem.set(idemKey, http.StatusOK, body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// ListOrders handles GET /api/v1/orders.
// Returns the authenticated account's order log, newest first, filtered by
// ?symbol=&side=&status=&since= (since is RFC 3339).
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OrderFilter{
		Side:   q.Get("side"),
		Status: q.Get("status"),
	}

	if sym := q.Get("symbol"); sym != "" {
		normalized, err := instrument.NormalizeSymbol(sym)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		filter.Symbol = normalized
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, "InvalidRequest", "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = ts
	}

	orders, err := s.store.ListOrders(r.Context(), auth.AccountID(r.Context()), filter)
	if err != nil {
		writeError(w, "InternalError", "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.OrderRecord{}
	}

	writeJSON(w, http.StatusOK, orders)
}

// --- Market data handlers ---

// GetQuote handles GET /api/v1/quotes/{symbol}.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol, err := instrument.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	price, err := s.quotes.Price(r.Context(), symbol)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
	})
}

// SearchInstruments handles GET /api/v1/instruments/search?q=.
func (s *Service) SearchInstruments(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 {
		writeError(w, "InvalidRequest", "query must be at least 2 characters", http.StatusBadRequest)
		return
	}

	instruments, err := s.store.SearchInstruments(r.Context(), query, 10)
	if err != nil {
		writeError(w, "InternalError", "failed to search instruments", http.StatusInternalServerError)
		return
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}

	writeJSON(w, http.StatusOK, instruments)
}

// --- Error mapping ---

// errorKind maps domain errors to the rejection taxonomy reported to callers.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidLimitPrice):
		return "InvalidAmount"
	case errors.Is(err, instrument.ErrInvalidSymbol):
		return "InvalidSymbol"
	case errors.Is(err, ledger.ErrInvalidSide),
		errors.Is(err, ledger.ErrInvalidKind):
		return "InvalidRequest"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "InsufficientShares"
	case errors.Is(err, ledger.ErrNoPosition):
		return "NoPosition"
	case errors.Is(err, risk.ErrNotionalLimitExceeded),
		errors.Is(err, risk.ErrPositionLimitExceeded):
		return "RiskLimitExceeded"
	case errors.Is(err, quote.ErrUnavailable):
		return "QuoteUnavailable"
	case errors.Is(err, store.ErrDuplicateAccount):
		return "DuplicateAccount"
	case errors.Is(err, store.ErrAccountNotFound):
		return "AccountNotFound"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "InvalidCredentials"
	default:
		return "InternalError"
	}
}

func statusForKind(kind string) int {
	switch kind {
	case "InvalidAmount", "InvalidSymbol", "InvalidRequest":
		return http.StatusBadRequest
	case "InsufficientFunds", "InsufficientShares", "NoPosition",
		"RiskLimitExceeded", "DuplicateAccount":
		return http.StatusConflict
	case "QuoteUnavailable":
		return http.StatusServiceUnavailable
	case "AccountNotFound":
		return http.StatusNotFound
	case "InvalidCredentials":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError maps a domain error onto the wire taxonomy.
func writeLedgerError(w http.ResponseWriter, err error) {
	kind := errorKind(err)
	writeError(w, kind, err.Error(), statusForKind(kind))
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, kind, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
