// Package httpapi provides the HTTP REST API for the stockdesk backend:
// login, trading, portfolio, quotes, and market news in JSON format.
package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

// LoginRequest is the POST /api/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse returns the session token to use as a bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
}

// TradeRequest is the body for the buy and sell endpoints.
type TradeRequest struct {
	Ticker string `json:"ticker"`
	Shares int64  `json:"shares"`
}

// BalanceResponse holds an account's current cash balance.
type BalanceResponse struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

// QuoteResponse is a single live quote.
type QuoteResponse struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"asOf"`
}

// TopStocksResponse maps ticker to its latest price.
type TopStocksResponse struct {
	Quotes map[string]QuoteResponse `json:"quotes"`
}

// TradesResponse lists the trades journaled on one day.
type TradesResponse struct {
	Date   string               `json:"date"`
	Trades []domain.TradeResult `json:"trades"`
}

// NewsResponse lists news articles.
type NewsResponse struct {
	Articles []domain.Article `json:"articles"`
}
