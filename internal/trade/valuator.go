package trade

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// Portfolio prices every holding of the account and reports unrealized
// gain/loss. It reads a ledger snapshot without the exclusive window and
// never holds any lock across quote fetches. A holding whose quote cannot
// be fetched is omitted from the report instead of failing the request.
func (e *Engine) Portfolio(ctx context.Context, accountID string) (*domain.PortfolioReport, error) {
	balance, err := e.ledger.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	holdings, err := e.ledger.GetHoldings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &domain.PortfolioReport{
		AccountID: accountID,
		Balance:   balance,
		Holdings:  make([]domain.HoldingReport, 0, len(holdings)),
		AsOf:      time.Now().UTC(),
	}
	if len(holdings) == 0 {
		return report, nil
	}

	// Fan quote fetches out over a small worker pool.
	type priced struct {
		holding domain.Holding
		quote   domain.Quote
	}
	jobs := make(chan domain.Holding, len(holdings))
	for _, h := range holdings {
		jobs <- h
	}
	close(jobs)

	results := make(chan priced, len(holdings))
	var wg sync.WaitGroup
	workers := e.valuators
	if workers > len(holdings) {
		workers = len(holdings)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range jobs {
				q, err := e.fetchQuote(ctx, h.Ticker)
				if err != nil {
					e.log.Warn("pricing holding", "ticker", h.Ticker, "error", err)
					continue
				}
				results <- priced{holding: h, quote: q}
			}
		}()
	}
	wg.Wait()
	close(results)

	for p := range results {
		qty := decimal.NewFromInt(p.holding.Shares)
		costBasis := p.holding.AvgCost.Mul(qty)
		marketValue := p.quote.Price.Mul(qty)
		unrealized := marketValue.Sub(costBasis)

		line := domain.HoldingReport{
			Ticker:        p.holding.Ticker,
			Shares:        p.holding.Shares,
			AvgCost:       p.holding.AvgCost,
			Price:         p.quote.Price,
			MarketValue:   marketValue,
			UnrealizedPnL: unrealized,
		}
		if !costBasis.IsZero() {
			pct := unrealized.Div(costBasis).Mul(oneHundred)
			line.UnrealizedPnLPercent = &pct
		}
		report.Holdings = append(report.Holdings, line)
	}

	sort.Slice(report.Holdings, func(i, j int) bool {
		return report.Holdings[i].Ticker < report.Holdings[j].Ticker
	})
	return report, nil
}
