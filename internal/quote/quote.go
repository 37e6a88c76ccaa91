// Package quote consumes the external market-data provider. The trade
// engine treats any non-success from a Source as a quote outage; retry
// policy, if any, lives with the provider implementation, never in the
// engine.
package quote

import (
	"context"
	"time"

	"stockdesk/internal/domain"
)

// Source returns the current price for a single ticker. Implementations
// must honour ctx cancellation; callers bound every fetch with a timeout.
type Source interface {
	GetQuote(ctx context.Context, ticker string) (domain.Quote, error)
}

// BatchSource prices several tickers in one call. Tickers that could not be
// priced are absent from the result rather than failing the whole call.
type BatchSource interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, error)
}

// DailyHistory is a date-aligned series of daily closing prices per ticker,
// used for dashboard charts. Values are display-only and stay float64; the
// ledger never touches them.
type DailyHistory struct {
	Dates  []string             `json:"dates"`
	Closes map[string][]float64 `json:"data"`
}

// HistorySource returns daily closing prices for charting.
type HistorySource interface {
	GetDailyCloses(ctx context.Context, tickers []string, start, end time.Time) (*DailyHistory, error)
}
