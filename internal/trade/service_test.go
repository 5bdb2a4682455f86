package trade_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/account"
	"github.com/fakestocks/market-sim/internal/identity"
	"github.com/fakestocks/market-sim/internal/market"
	"github.com/fakestocks/market-sim/internal/rank"
	"github.com/fakestocks/market-sim/internal/session"
	"github.com/fakestocks/market-sim/internal/trade"
)

const password = "up-up-down-down-left-right"

type testEnv struct {
	router   *chi.Mux
	registry *market.Registry
	accounts *account.Directory
	board    *rank.Board
	history  *rank.History
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ids := identity.NewIssuer()
	reg := market.NewRegistry(ids)
	dir := account.NewDirectory(ids, reg.Quote)
	board := rank.NewBoard()
	history := rank.NewHistory()
	sessions := session.NewTracker(ids)

	svc := trade.NewService(reg, dir, board, history, sessions, nil)
	r := chi.NewRouter()
	svc.Routes(r)

	return &testEnv{router: r, registry: reg, accounts: dir, board: board, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set(trade.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (e *testEnv) registerUser(t *testing.T, login, display string) trade.SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/register", "", trade.RegisterRequest{
		LoginName: login, DisplayName: display, Password: password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", login, rec.Code, rec.Body.String())
	}
	return decode[trade.SessionResponse](t, rec)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	resp := env.registerUser(t, "alice", "Alice")
	if resp.SessionID == identity.None || resp.AccountID == identity.None {
		t.Fatalf("empty identifiers in response: %+v", resp)
	}
	if !resp.Cash.Equal(account.StartingBalance) {
		t.Fatalf("cash = %s, want starting balance", resp.Cash)
	}

	rec := env.do(t, http.MethodPost, "/register", "", trade.RegisterRequest{
		LoginName: "alice", DisplayName: "Someone", Password: password,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate login: status %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/register", "", trade.RegisterRequest{
		LoginName: "bob", DisplayName: "Bob", Password: "up-up-sideways-down-left-right",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad password: status %d, want 400", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	created := env.registerUser(t, "alice", "Alice")

	rec := env.do(t, http.MethodPost, "/login", "", trade.LoginRequest{LoginName: "alice", Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[trade.SessionResponse](t, rec)
	if resp.SessionID != created.SessionID {
		t.Fatalf("relogin returned session %s, want existing %s", resp.SessionID, created.SessionID)
	}

	rec = env.do(t, http.MethodPost, "/login", "", trade.LoginRequest{
		LoginName: "alice", Password: "down-down-down-down-down-down",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/login", "", trade.LoginRequest{LoginName: "mallory", Password: password})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown login: status %d, want 401", rec.Code)
	}
}

// Full round trip: buy 5 Acme at 100, price moves to 120, sell 3.
func TestTradeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.Create("Acme", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("create company: %v", err)
	}
	sess := env.registerUser(t, "alice", "Alice")
	sid := sess.SessionID.String()

	rec := env.do(t, http.MethodPost, "/trade", sid, trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status %d, body %s", rec.Code, rec.Body.String())
	}
	buy := decode[trade.TradeResponse](t, rec)
	if buy.ReceiptID == "" {
		t.Fatal("buy receipt missing")
	}
	if !buy.Total.Equal(decimal.NewFromInt(500)) || !buy.Cash.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("buy totals wrong: %+v", buy)
	}

	if _, err := env.registry.Reset("Acme", decimal.NewFromInt(120)); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	rec = env.do(t, http.MethodPost, "/trade", sid, trade.TradeRequest{Company: "Acme", Side: "SELL", Quantity: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("sell: status %d, body %s", rec.Code, rec.Body.String())
	}
	sell := decode[trade.TradeResponse](t, rec)
	if !sell.Total.Equal(decimal.NewFromInt(360)) || !sell.Cash.Equal(decimal.NewFromInt(860)) {
		t.Fatalf("sell totals wrong: %+v", sell)
	}
	if !sell.UnitPrice.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("sell unit price = %s, want 120", sell.UnitPrice)
	}

	rec = env.do(t, http.MethodGet, "/portfolio", sid, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio: status %d", rec.Code)
	}
	pf := decode[trade.PortfolioResponse](t, rec)
	if len(pf.Positions) != 1 || pf.Positions[0].Quantity != 2 {
		t.Fatalf("positions = %+v, want 2 Acme", pf.Positions)
	}
	if !pf.Positions[0].AvgCost.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("avg cost = %s, want 100 (sells never touch it)", pf.Positions[0].AvgCost)
	}
	if !pf.NetWorth.Equal(decimal.NewFromInt(1100)) {
		t.Fatalf("net worth = %s, want 1100", pf.NetWorth)
	}
}

func TestTrade_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Create("Acme", decimal.NewFromInt(100))
	sess := env.registerUser(t, "alice", "Alice")
	sid := sess.SessionID.String()

	cases := []struct {
		name string
		sid  string
		req  trade.TradeRequest
		want int
	}{
		{"missing session", "", trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 1}, http.StatusUnauthorized},
		{"malformed session", "not-a-number", trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 1}, http.StatusUnauthorized},
		{"unknown session", "999999", trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 1}, http.StatusUnauthorized},
		{"unknown company", sid, trade.TradeRequest{Company: "Enron", Side: "BUY", Quantity: 1}, http.StatusNotFound},
		{"bad side", sid, trade.TradeRequest{Company: "Acme", Side: "HOLD", Quantity: 1}, http.StatusBadRequest},
		{"zero quantity", sid, trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 0}, http.StatusBadRequest},
		{"insufficient funds", sid, trade.TradeRequest{Company: "Acme", Side: "BUY", Quantity: 100}, http.StatusPaymentRequired},
		{"sell without position", sid, trade.TradeRequest{Company: "Acme", Side: "SELL", Quantity: 1}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/trade", tc.sid, tc.req)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	// None of the failed trades may have touched the account.
	rec := env.do(t, http.MethodGet, "/portfolio", sid, nil)
	pf := decode[trade.PortfolioResponse](t, rec)
	if !pf.Cash.Equal(account.StartingBalance) || len(pf.Positions) != 0 {
		t.Fatalf("failed trades mutated account: cash=%s positions=%+v", pf.Cash, pf.Positions)
	}
}

func TestCompanies(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Create("Apple", decimal.NewFromInt(200))
	env.registry.Create("Amazon", decimal.NewFromInt(180))

	rec := env.do(t, http.MethodGet, "/companies", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	list := decode[[]market.Company](t, rec)
	if len(list) != 2 || list[0].Name != "Apple" {
		t.Fatalf("companies = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/companies/Apple", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: status %d", rec.Code)
	}
	c := decode[market.Company](t, rec)
	if c.Name != "Apple" || len(c.History) != 1 {
		t.Fatalf("company detail = %+v", c)
	}

	rec = env.do(t, http.MethodGet, "/companies/Enron", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown company: status %d, want 404", rec.Code)
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.registerUser(t, fmt.Sprintf("user%d", i), fmt.Sprintf("User %d", i))
	}
	env.board.Recompute(env.accounts.Views(), env.registry.Prices())

	rec := env.do(t, http.MethodGet, "/leaderboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", rec.Code)
	}
	snap := decode[rank.Snapshot](t, rec)
	if len(snap) != 3 {
		t.Fatalf("leaderboard has %d entries, want 3", len(snap))
	}

	rec = env.do(t, http.MethodGet, "/leaderboard?start=1&end=2", "", nil)
	snap = decode[rank.Snapshot](t, rec)
	if len(snap) != 1 {
		t.Fatalf("sliced leaderboard has %d entries, want 1", len(snap))
	}

	// Out-of-range windows degrade to an empty list, not an error.
	rec = env.do(t, http.MethodGet, "/leaderboard?start=50&end=60", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("out-of-range slice: status %d, want 200", rec.Code)
	}
	snap = decode[rank.Snapshot](t, rec)
	if len(snap) != 0 {
		t.Fatalf("out-of-range slice = %+v, want empty", snap)
	}
}

func TestPreviousLeaderboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/leaderboard/previous", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no archive yet: status %d, want 404", rec.Code)
	}

	env.registerUser(t, "alice", "Alice")
	env.board.Recompute(env.accounts.Views(), env.registry.Prices())
	env.board.ArchiveAndClear(env.history)

	rec = env.do(t, http.MethodGet, "/leaderboard/previous", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("archived: status %d", rec.Code)
	}
	snap := decode[rank.Snapshot](t, rec)
	if len(snap) != 1 || snap[0].DisplayName != "Alice" {
		t.Fatalf("archived snapshot = %+v", snap)
	}
}
