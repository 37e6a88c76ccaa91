package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
	"stockdesk/internal/util"
)

// Compile-time interface checks.
var _ Source = (*AlpacaSource)(nil)
var _ BatchSource = (*AlpacaSource)(nil)
var _ HistorySource = (*AlpacaSource)(nil)

// AlpacaSource fetches quotes from the Alpaca market-data API. A token
// bucket keeps outbound calls under the provider quota.
type AlpacaSource struct {
	client  *marketdata.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with the given credentials.
// rateLimitPerMin bounds outbound API calls.
func NewAlpacaSource(apiKey, apiSecret, dataURL string, rateLimitPerMin int) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaSource{
		client:  marketdata.NewClient(opts),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("component", "quote-source"),
	}
}

// GetQuote returns the latest trade price for the ticker. Any provider
// failure, including an unknown ticker, comes back as ErrQuoteUnavailable.
func (s *AlpacaSource) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	ticker = strings.ToUpper(ticker)

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, ticker, err)
	}

	type result struct {
		trade *marketdata.Trade
		err   error
	}
	// The SDK call takes no context, so run it in a goroutine and let the
	// caller's deadline win. An abandoned call finishes in the background
	// and is discarded.
	ch := make(chan result, 1)
	go func() {
		t, err := s.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
		ch <- result{trade: t, err: err}
	}()

	select {
	case <-ctx.Done():
		return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, ticker, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, ticker, r.err)
		}
		if r.trade == nil || r.trade.Price <= 0 {
			return domain.Quote{}, fmt.Errorf("%w: %s: no trade price", domain.ErrQuoteUnavailable, ticker)
		}
		return domain.Quote{
			Ticker: ticker,
			Price:  decimal.NewFromFloat(r.trade.Price),
			AsOf:   r.trade.Timestamp,
		}, nil
	}
}

// GetQuotes prices several tickers with one API call. Unpriced tickers are
// simply absent from the result.
func (s *AlpacaSource) GetQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, error) {
	upper := make([]string, len(tickers))
	for i, t := range tickers {
		upper[i] = strings.ToUpper(t)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	trades, err := s.client.GetLatestTrades(upper, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	quotes := make(map[string]domain.Quote, len(trades))
	for symbol, t := range trades {
		if t.Price <= 0 {
			continue
		}
		quotes[symbol] = domain.Quote{
			Ticker: symbol,
			Price:  decimal.NewFromFloat(t.Price),
			AsOf:   t.Timestamp,
		}
	}
	return quotes, nil
}

// GetDailyCloses fetches daily bars for the tickers and aligns their closing
// prices on a shared date axis.
func (s *AlpacaSource) GetDailyCloses(ctx context.Context, tickers []string, start, end time.Time) (*DailyHistory, error) {
	upper := make([]string, len(tickers))
	for i, t := range tickers {
		upper[i] = strings.ToUpper(t)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	multiBars, err := s.client.GetMultiBars(upper, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	// Collect the union of dates, then align every series on it. A ticker
	// with no bar for a date carries its previous close forward.
	dateSet := make(map[string]struct{})
	closes := make(map[string]map[string]float64, len(multiBars))
	for symbol, bars := range multiBars {
		byDate := make(map[string]float64, len(bars))
		for _, b := range bars {
			d := b.Timestamp.Format("2006-01-02")
			byDate[d] = b.Close
			dateSet[d] = struct{}{}
		}
		closes[symbol] = byDate
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	hist := &DailyHistory{
		Dates:  dates,
		Closes: make(map[string][]float64, len(closes)),
	}
	for symbol, byDate := range closes {
		series := make([]float64, len(dates))
		var last float64
		for i, d := range dates {
			if c, ok := byDate[d]; ok {
				last = c
			}
			series[i] = last
		}
		hist.Closes[symbol] = series
	}
	return hist, nil
}
