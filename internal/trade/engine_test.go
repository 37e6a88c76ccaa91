package trade

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
	"stockdesk/internal/ledger"
)

// fakeSource serves fixed prices and can be told to fail per ticker.
type fakeSource struct {
	mu      sync.Mutex
	prices  map[string]string
	failing map[string]bool
	calls   atomic.Int64
}

func newFakeSource(prices map[string]string) *fakeSource {
	return &fakeSource{prices: prices, failing: make(map[string]bool)}
}

func (f *fakeSource) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[ticker] {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	p, ok := f.prices[ticker]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Ticker: ticker, Price: dec(p), AsOf: time.Now()}, nil
}

func (f *fakeSource) setPrice(ticker, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[ticker] = price
}

func (f *fakeSource) fail(ticker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[ticker] = true
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T, balance string, prices map[string]string) (*Engine, ledger.Store, *fakeSource) {
	t.Helper()
	store := ledger.NewMemoryStore()
	if err := store.CreateAccount(context.Background(), "acct-1", dec(balance)); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	src := newFakeSource(prices)
	return NewEngine(store, src, nil, time.Second), store, src
}

func mustBalance(t *testing.T, s ledger.Store, want string) {
	t.Helper()
	balance, err := s.GetBalance(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !balance.Equal(dec(want)) {
		t.Errorf("balance = %s, want %s", balance, want)
	}
}

func mustHolding(t *testing.T, s ledger.Store, ticker string, shares int64, avgCost string) {
	t.Helper()
	holdings, err := s.GetHoldings(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetHoldings: %v", err)
	}
	for _, h := range holdings {
		if h.Ticker != ticker {
			continue
		}
		if h.Shares != shares {
			t.Errorf("%s shares = %d, want %d", ticker, h.Shares, shares)
		}
		if !h.AvgCost.Equal(dec(avgCost)) {
			t.Errorf("%s avg cost = %s, want %s", ticker, h.AvgCost, avgCost)
		}
		return
	}
	t.Errorf("holding %s not found", ticker)
}

func mustNoHolding(t *testing.T, s ledger.Store, ticker string) {
	t.Helper()
	holdings, err := s.GetHoldings(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetHoldings: %v", err)
	}
	for _, h := range holdings {
		if h.Ticker == ticker {
			t.Errorf("holding %s exists with %d shares, want removed", ticker, h.Shares)
		}
	}
}

func TestBuySellScenario(t *testing.T) {
	// Balance 10000; buy 10 @ 100, buy 10 @ 200, sell 5 @ 300.
	e, store, src := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})
	ctx := context.Background()

	res, err := e.Buy(ctx, "acct-1", "AAPL", 10)
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if res.SharesDelta != 10 || !res.ExecutionPrice.Equal(dec("100")) {
		t.Errorf("first buy result = %+v", res)
	}
	if !res.BalanceAfter.Equal(dec("9000")) {
		t.Errorf("first buy balanceAfter = %s, want 9000", res.BalanceAfter)
	}
	if res.RealizedPnL != nil {
		t.Error("buy result must not carry realized PnL")
	}
	mustBalance(t, store, "9000")
	mustHolding(t, store, "AAPL", 10, "100")

	src.setPrice("AAPL", "200")
	if _, err := e.Buy(ctx, "acct-1", "AAPL", 10); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	mustBalance(t, store, "7000")
	mustHolding(t, store, "AAPL", 20, "150")

	src.setPrice("AAPL", "300")
	res, err = e.Sell(ctx, "acct-1", "AAPL", 5)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if res.SharesDelta != -5 {
		t.Errorf("sell sharesDelta = %d, want -5", res.SharesDelta)
	}
	if res.RealizedPnL == nil || !res.RealizedPnL.Equal(dec("750")) {
		t.Errorf("sell realizedPnL = %v, want 750", res.RealizedPnL)
	}
	mustBalance(t, store, "8500")
	mustHolding(t, store, "AAPL", 15, "150")
}

func TestInvalidQuantity(t *testing.T) {
	e, store, src := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})
	ctx := context.Background()

	for _, shares := range []int64{0, -5} {
		if _, err := e.Buy(ctx, "acct-1", "AAPL", shares); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("Buy(%d) err = %v, want ErrInvalidQuantity", shares, err)
		}
		if _, err := e.Sell(ctx, "acct-1", "AAPL", shares); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("Sell(%d) err = %v, want ErrInvalidQuantity", shares, err)
		}
	}

	// Rejected before any I/O: no quote was ever fetched.
	if n := src.calls.Load(); n != 0 {
		t.Errorf("quote source called %d times for invalid quantities, want 0", n)
	}
	mustBalance(t, store, "10000")
}

func TestBuyInsufficientBalance(t *testing.T) {
	// Balance 100; buy 1 share @ 150 fails and touches nothing.
	e, store, _ := newTestEngine(t, "100", map[string]string{"AAPL": "150"})

	_, err := e.Buy(context.Background(), "acct-1", "AAPL", 1)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	mustBalance(t, store, "100")
	mustNoHolding(t, store, "AAPL")
}

func TestSellInsufficientShares(t *testing.T) {
	e, store, _ := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})
	ctx := context.Background()

	// No holding at all.
	if _, err := e.Sell(ctx, "acct-1", "AAPL", 1); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("sell without holding: err = %v, want ErrInsufficientShares", err)
	}

	// Holding smaller than the order.
	if _, err := e.Buy(ctx, "acct-1", "AAPL", 3); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.Sell(ctx, "acct-1", "AAPL", 5); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("oversell: err = %v, want ErrInsufficientShares", err)
	}

	// State unchanged by the failed sell.
	mustBalance(t, store, "9700")
	mustHolding(t, store, "AAPL", 3, "100")
}

func TestQuoteUnavailable(t *testing.T) {
	e, store, src := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct-1", "AAPL", 2); err != nil {
		t.Fatalf("buy: %v", err)
	}

	src.fail("AAPL")
	if _, err := e.Buy(ctx, "acct-1", "AAPL", 1); !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Errorf("buy during outage: err = %v, want ErrQuoteUnavailable", err)
	}
	if _, err := e.Sell(ctx, "acct-1", "AAPL", 1); !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Errorf("sell during outage: err = %v, want ErrQuoteUnavailable", err)
	}

	mustBalance(t, store, "9800")
	mustHolding(t, store, "AAPL", 2, "100")
}

func TestUnknownAccount(t *testing.T) {
	e, _, _ := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})

	if _, err := e.Buy(context.Background(), "ghost", "AAPL", 1); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("buy on unknown account: err = %v, want ErrAccountNotFound", err)
	}
}

func TestSellToZeroRemovesHolding(t *testing.T) {
	e, store, _ := newTestEngine(t, "10000", map[string]string{"AAPL": "100"})
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct-1", "AAPL", 4); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.Sell(ctx, "acct-1", "AAPL", 4); err != nil {
		t.Fatalf("sell: %v", err)
	}

	mustNoHolding(t, store, "AAPL")
	mustBalance(t, store, "10000")

	report, err := e.Portfolio(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if len(report.Holdings) != 0 {
		t.Errorf("portfolio lists %d holdings after position closed, want 0", len(report.Holdings))
	}
}

func TestConcurrentTradesSerialEquivalence(t *testing.T) {
	// 20 buys and 20 sells of 5 shares each at a fixed price, starting from
	// 100 held shares. Every interleaving is valid and commutes, so the
	// final state must exactly match the serial outcome — any deviation
	// means a lost update or double-spend.
	e, store, _ := newTestEngine(t, "10000", map[string]string{"SPY": "10"})
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct-1", "SPY", 100); err != nil {
		t.Fatalf("seeding position: %v", err)
	}
	mustBalance(t, store, "9000")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.Buy(ctx, "acct-1", "SPY", 5); err != nil {
				t.Errorf("concurrent buy: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.Sell(ctx, "acct-1", "SPY", 5); err != nil {
				t.Errorf("concurrent sell: %v", err)
			}
		}()
	}
	wg.Wait()

	mustBalance(t, store, "9000")
	mustHolding(t, store, "SPY", 100, "10")
}

func TestPortfolioReport(t *testing.T) {
	e, _, src := newTestEngine(t, "10000", map[string]string{"AAPL": "150", "MSFT": "400"})
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct-1", "AAPL", 10); err != nil {
		t.Fatalf("buy AAPL: %v", err)
	}
	if _, err := e.Buy(ctx, "acct-1", "MSFT", 2); err != nil {
		t.Fatalf("buy MSFT: %v", err)
	}

	src.setPrice("AAPL", "300")
	report, err := e.Portfolio(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}

	if !report.Balance.Equal(dec("7700")) {
		t.Errorf("report balance = %s, want 7700", report.Balance)
	}
	if len(report.Holdings) != 2 {
		t.Fatalf("report has %d holdings, want 2", len(report.Holdings))
	}

	aapl := report.Holdings[0]
	if aapl.Ticker != "AAPL" {
		t.Fatalf("holdings not sorted: first is %s", aapl.Ticker)
	}
	if !aapl.MarketValue.Equal(dec("3000")) {
		t.Errorf("AAPL market value = %s, want 3000", aapl.MarketValue)
	}
	if !aapl.UnrealizedPnL.Equal(dec("1500")) {
		t.Errorf("AAPL unrealized = %s, want 1500", aapl.UnrealizedPnL)
	}
	if aapl.UnrealizedPnLPercent == nil || !aapl.UnrealizedPnLPercent.Equal(dec("100")) {
		t.Errorf("AAPL unrealized pct = %v, want 100", aapl.UnrealizedPnLPercent)
	}
}

func TestPortfolioOmitsFailedTickers(t *testing.T) {
	e, _, src := newTestEngine(t, "10000", map[string]string{"AAPL": "100", "TSLA": "200"})
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct-1", "AAPL", 1); err != nil {
		t.Fatalf("buy AAPL: %v", err)
	}
	if _, err := e.Buy(ctx, "acct-1", "TSLA", 1); err != nil {
		t.Fatalf("buy TSLA: %v", err)
	}

	src.fail("TSLA")
	report, err := e.Portfolio(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Portfolio during partial outage: %v", err)
	}
	if len(report.Holdings) != 1 || report.Holdings[0].Ticker != "AAPL" {
		t.Errorf("report holdings = %+v, want only AAPL", report.Holdings)
	}
}

func TestPortfolioUnknownAccount(t *testing.T) {
	e, _, _ := newTestEngine(t, "10000", map[string]string{})

	if _, err := e.Portfolio(context.Background(), "ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("Portfolio on unknown account: err = %v, want ErrAccountNotFound", err)
	}
}
