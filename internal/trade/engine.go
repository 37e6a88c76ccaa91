// Package trade implements the paper-trading engine: market buy/sell orders
// validated against live quotes and executed atomically against the ledger,
// plus the read-only portfolio valuator.
package trade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
	"stockdesk/internal/journal"
	"stockdesk/internal/ledger"
	"stockdesk/internal/quote"
)

// Engine validates and executes orders against the ledger using quotes from
// the external source. It never retries and never caches ledger state across
// calls: every order re-reads current state inside the account's exclusive
// window.
type Engine struct {
	ledger       ledger.Store
	quotes       quote.Source
	journal      *journal.Journal // optional, best-effort
	quoteTimeout time.Duration
	valuators    int // worker pool size for portfolio pricing
	log          *slog.Logger
}

// NewEngine creates an Engine. journal may be nil to disable the trade
// journal. quoteTimeout bounds every quote fetch so a stalled provider call
// cannot hold an account window indefinitely.
func NewEngine(l ledger.Store, q quote.Source, j *journal.Journal, quoteTimeout time.Duration) *Engine {
	if quoteTimeout <= 0 {
		quoteTimeout = 5 * time.Second
	}
	return &Engine{
		ledger:       l,
		quotes:       q,
		journal:      j,
		quoteTimeout: quoteTimeout,
		valuators:    4,
		log:          slog.Default().With("component", "trade-engine"),
	}
}

// Buy executes an immediate market buy of shares of ticker. On any failure
// the account's balance and holdings are left byte-for-byte unchanged.
func (e *Engine) Buy(ctx context.Context, accountID, ticker string, shares int64) (*domain.TradeResult, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("buy %d: %w", shares, domain.ErrInvalidQuantity)
	}
	ticker = strings.ToUpper(ticker)

	var res *domain.TradeResult
	err := e.ledger.WithAccountLock(ctx, accountID, func(view *ledger.AccountView) error {
		q, err := e.fetchQuote(ctx, ticker)
		if err != nil {
			return err
		}

		qty := decimal.NewFromInt(shares)
		cost := q.Price.Mul(qty)
		if cost.GreaterThan(view.Balance()) {
			return fmt.Errorf("cost %s exceeds balance %s: %w",
				cost, view.Balance(), domain.ErrInsufficientBalance)
		}

		view.SetBalance(view.Balance().Sub(cost))

		h, ok := view.Holding(ticker)
		if !ok {
			h = domain.Holding{
				AccountID: accountID,
				Ticker:    ticker,
				Shares:    shares,
				AvgCost:   q.Price,
			}
		} else {
			// Weighted-average cost over the combined position.
			oldQty := decimal.NewFromInt(h.Shares)
			newQty := decimal.NewFromInt(h.Shares + shares)
			h.AvgCost = h.AvgCost.Mul(oldQty).Add(q.Price.Mul(qty)).Div(newQty)
			h.Shares += shares
		}
		view.SetHolding(h)

		res = &domain.TradeResult{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			Ticker:         ticker,
			SharesDelta:    shares,
			ExecutionPrice: q.Price,
			BalanceAfter:   view.Balance(),
			ExecutedAt:     time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, res)
	return res, nil
}

// Sell executes an immediate market sell. Average cost basis is unchanged by
// a sell; a holding whose shares reach zero is removed.
func (e *Engine) Sell(ctx context.Context, accountID, ticker string, shares int64) (*domain.TradeResult, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("sell %d: %w", shares, domain.ErrInvalidQuantity)
	}
	ticker = strings.ToUpper(ticker)

	var res *domain.TradeResult
	err := e.ledger.WithAccountLock(ctx, accountID, func(view *ledger.AccountView) error {
		q, err := e.fetchQuote(ctx, ticker)
		if err != nil {
			return err
		}

		h, ok := view.Holding(ticker)
		if !ok || h.Shares < shares {
			held := int64(0)
			if ok {
				held = h.Shares
			}
			return fmt.Errorf("selling %d of %d held: %w", shares, held, domain.ErrInsufficientShares)
		}

		qty := decimal.NewFromInt(shares)
		proceeds := q.Price.Mul(qty)
		pnl := q.Price.Sub(h.AvgCost).Mul(qty)

		view.SetBalance(view.Balance().Add(proceeds))

		h.Shares -= shares
		if h.Shares == 0 {
			view.RemoveHolding(ticker)
		} else {
			view.SetHolding(h)
		}

		res = &domain.TradeResult{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			Ticker:         ticker,
			SharesDelta:    -shares,
			ExecutionPrice: q.Price,
			BalanceAfter:   view.Balance(),
			RealizedPnL:    &pnl,
			ExecutedAt:     time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.record(ctx, res)
	return res, nil
}

// Balance returns the account's current balance snapshot.
func (e *Engine) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return e.ledger.GetBalance(ctx, accountID)
}

// fetchQuote bounds the provider call with the engine's quote timeout.
func (e *Engine) fetchQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	if e.quotes == nil {
		return domain.Quote{}, fmt.Errorf("%w: %s: no quote source configured", domain.ErrQuoteUnavailable, ticker)
	}
	qctx, cancel := context.WithTimeout(ctx, e.quoteTimeout)
	defer cancel()
	return e.quotes.GetQuote(qctx, ticker)
}

// record appends the result to the trade journal. Journal failures are
// logged and never affect the already-committed trade.
func (e *Engine) record(ctx context.Context, res *domain.TradeResult) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(ctx, res); err != nil {
		e.log.Warn("journaling trade", "trade", res.ID, "error", err)
	}
}
