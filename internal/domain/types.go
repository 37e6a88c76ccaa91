// Package domain defines the core types shared across the stockdesk
// platform: accounts, holdings, quotes, trade results, news articles, and
// the trading error taxonomy.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a simulated trading account. Balance is a fixed-point monetary
// amount and must never be negative between transactions.
type Account struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Holding is a ticker position within one account. A holding with zero
// shares is removed from storage rather than kept as a zero row.
type Holding struct {
	AccountID string          `json:"accountId"`
	Ticker    string          `json:"ticker"`
	Shares    int64           `json:"shares"`
	AvgCost   decimal.Decimal `json:"avgCost"` // weighted average purchase price per share
}

// Quote is a point-in-time price for a ticker from the external market-data
// provider. Quotes are fetched per operation and never persisted.
type Quote struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"asOf"`
}

// TradeResult is emitted by every executed buy or sell.
type TradeResult struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"accountId"`
	Ticker         string           `json:"ticker"`
	SharesDelta    int64            `json:"sharesDelta"` // positive for buys, negative for sells
	ExecutionPrice decimal.Decimal  `json:"executionPrice"`
	BalanceAfter   decimal.Decimal  `json:"balanceAfter"`
	RealizedPnL    *decimal.Decimal `json:"realizedPnL,omitempty"` // sells only
	ExecutedAt     time.Time        `json:"executedAt"`
}

// HoldingReport is one priced line of a portfolio report.
type HoldingReport struct {
	Ticker               string           `json:"ticker"`
	Shares               int64            `json:"shares"`
	AvgCost              decimal.Decimal  `json:"avgCost"`
	Price                decimal.Decimal  `json:"price"`
	MarketValue          decimal.Decimal  `json:"marketValue"`
	UnrealizedPnL        decimal.Decimal  `json:"unrealizedPnL"`
	UnrealizedPnLPercent *decimal.Decimal `json:"unrealizedPnLPercent,omitempty"`
}

// PortfolioReport prices every holding of an account. Holdings whose quote
// could not be fetched are omitted rather than failing the whole report.
type PortfolioReport struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
	Holdings  []HoldingReport `json:"holdings"`
	AsOf      time.Time       `json:"asOf"`
}

// Article is a stored market-news article.
type Article struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Tickers  string    `json:"tickers"` // comma-separated symbols
	PostedOn time.Time `json:"postedOn"`
}

// User is a login identity mapped to a trading account.
type User struct {
	ID           string
	Username     string
	PasswordHash string // sha256 hex
	AccountID    string
}
