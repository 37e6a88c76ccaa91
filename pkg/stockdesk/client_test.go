package stockdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

// newStubServer mimics the server API closely enough to exercise the client.
func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Username, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "demo" || req.Password != "demo123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1", "accountId": "acct-1"})
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid token"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("POST /api/trade/buy", authed(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ticker string `json:"ticker"`
			Shares int64  `json:"shares"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Shares <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid quantity"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "t1", "accountId": "acct-1", "ticker": req.Ticker,
			"sharesDelta": req.Shares, "executionPrice": "100",
			"balanceAfter": "9000",
		})
	}))
	mux.HandleFunc("GET /api/balance", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"accountId": "acct-1", "balance": "9000"})
	}))
	mux.HandleFunc("GET /api/portfolio", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"accountId": "acct-1",
			"balance":   "9000",
			"holdings": []map[string]any{{
				"ticker": "AAPL", "shares": 10, "avgCost": "100",
				"price": "110", "marketValue": "1100", "unrealizedPnL": "100",
			}},
		})
	}))
	mux.HandleFunc("GET /api/stock/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ticker": r.PathValue("ticker"), "price": "123.45"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndTrade(t *testing.T) {
	srv := newStubServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	if err := c.Login(ctx, "demo", "demo123"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	res, err := c.Buy(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if res.SharesDelta != 10 || !res.BalanceAfter.Equal(decimal.RequireFromString("9000")) {
		t.Errorf("Buy result = %+v, want delta 10, balance 9000", res)
	}

	balance, err := c.Balance(ctx)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("9000")) {
		t.Errorf("Balance = %s, want 9000", balance)
	}

	report, err := c.Portfolio(ctx)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if len(report.Holdings) != 1 || report.Holdings[0].Ticker != "AAPL" {
		t.Errorf("Portfolio = %+v, want one AAPL line", report)
	}
}

func TestLoginFailure(t *testing.T) {
	srv := newStubServer(t)
	c := NewClient(srv.URL)

	err := c.Login(context.Background(), "demo", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	srv := newStubServer(t)
	c := NewClient(srv.URL)

	_, err := c.Buy(context.Background(), "AAPL", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Buy without login = %v, want 401 APIError", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	srv := newStubServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	if err := c.Login(ctx, "demo", "demo123"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err := c.Buy(ctx, "AAPL", 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Buy(0) error = %v, want *APIError", err)
	}
	if apiErr.Message != "invalid quantity" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "invalid quantity")
	}
}

func TestQuote(t *testing.T) {
	srv := newStubServer(t)
	c := NewClient(srv.URL)

	price, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("Quote = %s, want 123.45", price)
	}
}
