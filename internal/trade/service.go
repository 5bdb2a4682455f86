// Package trade exposes the HTTP surface of the simulator: registration,
// login, trade execution, market quotes, portfolio views, and the
// leaderboard. It parses transport-level input, resolves the session to
// an account, delegates to the core components, and maps core error
// values to HTTP status codes.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/account"
	"github.com/fakestocks/market-sim/internal/identity"
	"github.com/fakestocks/market-sim/internal/market"
	"github.com/fakestocks/market-sim/internal/metrics"
	"github.com/fakestocks/market-sim/internal/portfolio"
	"github.com/fakestocks/market-sim/internal/rank"
	"github.com/fakestocks/market-sim/internal/session"
)

// SessionHeader carries the session identifier on authenticated requests.
const SessionHeader = "X-Session-ID"

// Service wires the core components behind HTTP handlers.
type Service struct {
	market   *market.Registry
	accounts *account.Directory
	board    *rank.Board
	history  *rank.History
	sessions *session.Tracker
	hub      *Hub // optional; nil disables broadcasting
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(reg *market.Registry, dir *account.Directory, board *rank.Board, history *rank.History, sessions *session.Tracker, hub *Hub) *Service {
	return &Service{
		market:   reg,
		accounts: dir,
		board:    board,
		history:  history,
		sessions: sessions,
		hub:      hub,
	}
}

// Routes mounts all handlers on the given router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/register", s.Register)
	r.Post("/login", s.Login)
	r.Get("/companies", s.ListCompanies)
	r.Get("/companies/{name}", s.GetCompany)
	r.Post("/trade", s.ExecuteTrade)
	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/leaderboard", s.GetLeaderboard)
	r.Get("/leaderboard/previous", s.GetPreviousLeaderboard)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /register.
type RegisterRequest struct {
	LoginName   string `json:"login_name"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"` // six dash-separated arrow keys
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	LoginName string `json:"login_name"`
	Password  string `json:"password"`
}

// SessionResponse is returned from register and login.
type SessionResponse struct {
	SessionID   identity.ID     `json:"session_id"`
	AccountID   identity.ID     `json:"account_id"`
	DisplayName string          `json:"display_name"`
	Cash        decimal.Decimal `json:"cash"`
}

// TradeRequest is the JSON body for POST /trade.
type TradeRequest struct {
	Company  string `json:"company"`
	Side     string `json:"side"` // "BUY" or "SELL"
	Quantity int64  `json:"quantity"`
}

// TradeResponse is returned from POST /trade.
type TradeResponse struct {
	ReceiptID string          `json:"receipt_id"`
	Company   string          `json:"company"`
	Side      string          `json:"side"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Cash      decimal.Decimal `json:"cash"`
}

// PortfolioResponse is returned from GET /portfolio.
type PortfolioResponse struct {
	account.View
	NetWorth decimal.Decimal `json:"net_worth"`
}

// --- Handlers ---

// Register handles POST /register: creates the account and immediately
// opens its session.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cred, err := account.ParseCredential(req.Password)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	accountID, err := s.accounts.Register(req.LoginName, req.DisplayName, cred)
	if err != nil {
		writeStatusFor(w, err)
		return
	}
	metrics.AccountsRegistered.Inc()

	sessionID, err := s.sessions.Open(accountID, req.LoginName, req.DisplayName)
	if err != nil {
		writeStatusFor(w, err)
		return
	}
	metrics.ActiveSessions.Set(float64(s.sessions.Len()))

	slog.Info("account registered", "account_id", accountID, "login", req.LoginName)

	writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID:   sessionID,
		AccountID:   accountID,
		DisplayName: req.DisplayName,
		Cash:        account.StartingBalance,
	})
}

// Login handles POST /login. A relogin while a session is still open
// returns the existing session instead of erroring.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cred, err := account.ParseCredential(req.Password)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	view, err := s.accounts.Authenticate(req.LoginName, cred)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	sessionID, err := s.sessions.ResolveSession(view.ID)
	if errors.Is(err, session.ErrNotFound) {
		sessionID, err = s.sessions.Open(view.ID, view.LoginName, view.DisplayName)
	}
	if err != nil {
		writeStatusFor(w, err)
		return
	}
	metrics.ActiveSessions.Set(float64(s.sessions.Len()))

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:   sessionID,
		AccountID:   view.ID,
		DisplayName: view.DisplayName,
		Cash:        view.Cash,
	})
}

// ListCompanies handles GET /companies.
func (s *Service) ListCompanies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Companies())
}

// GetCompany handles GET /companies/{name}, returning price and history.
func (s *Service) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.market.FindByName(chi.URLParam(r, "name"))
	if err != nil {
		writeStatusFor(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ExecuteTrade handles POST /trade: a buy debits cash at the current
// price; a sell credits proceeds at the current price.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != "BUY" && req.Side != "SELL" {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	c, err := s.market.FindByName(req.Company)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	start := time.Now()
	var unitPrice, total decimal.Decimal

	switch req.Side {
	case "BUY":
		unitPrice = c.Price
		if err := s.accounts.BuyStock(accountID, c.ID, c.Name, c.Price, req.Quantity); err != nil {
			writeStatusFor(w, err)
			return
		}
		total = c.Price.Mul(decimal.NewFromInt(req.Quantity))
	case "SELL":
		proceeds, err := s.accounts.SellStock(accountID, c.ID, req.Quantity)
		if err != nil {
			writeStatusFor(w, err)
			return
		}
		total = proceeds
		unitPrice = proceeds.Div(decimal.NewFromInt(req.Quantity))
	}

	side := req.Side
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())

	view, err := s.accounts.FindByID(accountID)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	receipt := uuid.New().String()
	slog.Info("trade executed",
		"receipt", receipt,
		"account_id", accountID,
		"company", c.Name,
		"side", side,
		"qty", req.Quantity,
		"total", total.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Message{
			Type:     "trade_executed",
			Company:  c.Name,
			Price:    unitPrice.String(),
			Side:     side,
			Quantity: req.Quantity,
		})
	}

	writeJSON(w, http.StatusOK, TradeResponse{
		ReceiptID: receipt,
		Company:   c.Name,
		Side:      side,
		Quantity:  req.Quantity,
		UnitPrice: unitPrice,
		Total:     total,
		Cash:      view.Cash,
	})
}

// GetPortfolio handles GET /portfolio for the session's account.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	view, err := s.accounts.FindByID(accountID)
	if err != nil {
		writeStatusFor(w, err)
		return
	}

	prices := s.market.Prices()
	worth := view.Cash
	for _, p := range view.Positions {
		if price, ok := prices[p.CompanyID]; ok {
			worth = worth.Add(price.Mul(decimal.NewFromInt(p.Quantity)))
		}
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{View: view, NetWorth: worth})
}

// GetLeaderboard handles GET /leaderboard?start=&end= (default first 10).
// Out-of-range slices degrade to an empty list.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	end := queryInt(r, "end", start+10)
	writeJSON(w, http.StatusOK, s.board.Slice(start, end))
}

// GetPreviousLeaderboard handles GET /leaderboard/previous, serving the
// most recently archived epoch's final standings.
func (s *Service) GetPreviousLeaderboard(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.history.MostRecent()
	if !ok {
		writeError(w, "no archived leaderboard yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Helpers ---

// resolveSession reads the session header and maps it to an account ID,
// writing the error response itself on failure.
func (s *Service) resolveSession(w http.ResponseWriter, r *http.Request) (identity.ID, bool) {
	raw := r.Header.Get(SessionHeader)
	if raw == "" {
		writeError(w, "missing "+SessionHeader+" header", http.StatusUnauthorized)
		return identity.None, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, "malformed session id", http.StatusUnauthorized)
		return identity.None, false
	}

	accountID, err := s.sessions.ResolveAccount(identity.ID(v))
	if err != nil {
		writeError(w, "session expired or unknown", http.StatusUnauthorized)
		return identity.None, false
	}
	return accountID, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeStatusFor maps core error values to HTTP status codes.
func writeStatusFor(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, portfolio.ErrNoPosition):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrAlreadyExists),
		errors.Is(err, account.ErrAlreadyExists),
		errors.Is(err, session.ErrAlreadyBound),
		errors.Is(err, session.ErrNameInUse):
		status = http.StatusConflict
	case errors.Is(err, account.ErrInsufficientFunds),
		errors.Is(err, portfolio.ErrInsufficientHoldings):
		status = http.StatusPaymentRequired
	case errors.Is(err, account.ErrInvalidCredential):
		status = http.StatusUnauthorized
	case errors.Is(err, account.ErrInvalidArgument),
		errors.Is(err, portfolio.ErrInvalidQuantity),
		errors.Is(err, portfolio.ErrNegativePrice),
		errors.Is(err, market.ErrNegativePrice):
		status = http.StatusBadRequest
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
