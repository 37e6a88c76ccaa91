// Package stockdesk provides a Go client for the stockdesk-server API.
package stockdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Client calls the stockdesk-server HTTP API. Authenticate with Login before
// using the account endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TradeResult mirrors the server's trade response.
type TradeResult struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"accountId"`
	Ticker         string           `json:"ticker"`
	SharesDelta    int64            `json:"sharesDelta"`
	ExecutionPrice decimal.Decimal  `json:"executionPrice"`
	BalanceAfter   decimal.Decimal  `json:"balanceAfter"`
	RealizedPnL    *decimal.Decimal `json:"realizedPnL,omitempty"`
	ExecutedAt     time.Time        `json:"executedAt"`
}

// HoldingReport mirrors one priced portfolio line.
type HoldingReport struct {
	Ticker               string           `json:"ticker"`
	Shares               int64            `json:"shares"`
	AvgCost              decimal.Decimal  `json:"avgCost"`
	Price                decimal.Decimal  `json:"price"`
	MarketValue          decimal.Decimal  `json:"marketValue"`
	UnrealizedPnL        decimal.Decimal  `json:"unrealizedPnL"`
	UnrealizedPnLPercent *decimal.Decimal `json:"unrealizedPnLPercent,omitempty"`
}

// PortfolioReport mirrors the server's portfolio response.
type PortfolioReport struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
	Holdings  []HoldingReport `json:"holdings"`
	AsOf      time.Time       `json:"asOf"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Login authenticates and stores the session token on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.post(ctx, "/api/login", body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Buy executes a market buy.
func (c *Client) Buy(ctx context.Context, ticker string, shares int64) (*TradeResult, error) {
	return c.trade(ctx, "/api/trade/buy", ticker, shares)
}

// Sell executes a market sell.
func (c *Client) Sell(ctx context.Context, ticker string, shares int64) (*TradeResult, error) {
	return c.trade(ctx, "/api/trade/sell", ticker, shares)
}

func (c *Client) trade(ctx context.Context, path, ticker string, shares int64) (*TradeResult, error) {
	var res TradeResult
	body := map[string]any{"ticker": ticker, "shares": shares}
	if err := c.post(ctx, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Portfolio fetches the priced portfolio for the logged-in account.
func (c *Client) Portfolio(ctx context.Context) (*PortfolioReport, error) {
	var report PortfolioReport
	if err := c.get(ctx, "/api/portfolio", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Balance fetches the current cash balance.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.get(ctx, "/api/balance", &resp); err != nil {
		return decimal.Decimal{}, err
	}
	return resp.Balance, nil
}

// Quote fetches the latest price for a ticker.
func (c *Client) Quote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := c.get(ctx, "/api/stock/"+ticker, &resp); err != nil {
		return decimal.Decimal{}, err
	}
	return resp.Price, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &errBody) != nil || errBody.Error == "" {
			errBody.Error = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
