package news

import (
	"context"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockdesk/internal/domain"
	"stockdesk/internal/util"
)

// Fetcher pulls live per-symbol news from the Alpaca news API.
type Fetcher struct {
	client *marketdata.Client
}

// NewFetcher creates a Fetcher with the given Alpaca credentials.
func NewFetcher(apiKey, apiSecret, dataURL string) *Fetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &Fetcher{client: marketdata.NewClient(opts)}
}

// Fetch returns up to limit recent articles mentioning the symbol. Transient
// provider failures are retried a couple of times with backoff.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Article, error) {
	symbol = strings.ToUpper(symbol)
	if limit <= 0 {
		limit = 50
	}

	var raw []marketdata.News
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var ferr error
		raw, ferr = f.client.GetNews(marketdata.GetNewsRequest{
			Symbols:            []string{symbol},
			Start:              start,
			End:                end,
			TotalLimit:         limit,
			IncludeContent:     true,
			ExcludeContentless: true,
			Sort:               marketdata.SortDesc,
		})
		return ferr
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(raw))
	for _, n := range raw {
		body := n.Summary
		if body == "" {
			body = n.Content
		}
		articles = append(articles, domain.Article{
			Title:    n.Headline,
			Content:  body,
			Tickers:  strings.Join(n.Symbols, ","),
			PostedOn: n.CreatedAt,
		})
	}
	return articles, nil
}
