// Package journal persists an append-only record of executed trades to
// per-day Parquet files. The journal is an audit artifact: writes are
// best-effort and never participate in trade atomicity.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

// Record is the Parquet schema for one executed trade. Monetary fields are
// decimal strings to keep the journal exact.
type Record struct {
	ID             string `parquet:"id"`
	AccountID      string `parquet:"account_id"`
	Ticker         string `parquet:"ticker"`
	SharesDelta    int64  `parquet:"shares_delta"`
	ExecutionPrice string `parquet:"execution_price"`
	BalanceAfter   string `parquet:"balance_after"`
	RealizedPnL    string `parquet:"realized_pnl"` // empty for buys
	ExecutedAt     int64  `parquet:"executed_at,timestamp(millisecond)"`
}

// Journal writes and reads per-day trade files under
// <dataDir>/trades/<YYYY-MM-DD>.parquet.
type Journal struct {
	dataDir string
	mu      sync.Mutex // serializes the read-merge-write cycle per process
}

// New creates a Journal rooted at dataDir.
func New(dataDir string) *Journal {
	return &Journal{dataDir: dataDir}
}

// Append adds one trade to its day file, deduplicating by trade id.
func (j *Journal) Append(ctx context.Context, res *domain.TradeResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := Record{
		ID:             res.ID,
		AccountID:      res.AccountID,
		Ticker:         res.Ticker,
		SharesDelta:    res.SharesDelta,
		ExecutionPrice: res.ExecutionPrice.String(),
		BalanceAfter:   res.BalanceAfter.String(),
		ExecutedAt:     res.ExecutedAt.UnixMilli(),
	}
	if res.RealizedPnL != nil {
		rec.RealizedPnL = res.RealizedPnL.String()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	path := j.dayPath(res.ExecutedAt)
	existing, _ := readParquetFile[Record](path)
	merged := mergeRecords(existing, []Record{rec})

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing journal %s: %w", path, err)
	}
	return nil
}

// ReadDay returns all trades journaled on date (YYYY-MM-DD), oldest first.
// A missing day file yields an empty slice.
func (j *Journal) ReadDay(ctx context.Context, date string) ([]domain.TradeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("bad journal date %q: %w", date, err)
	}

	records, err := readParquetFile[Record](j.dayPath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.TradeResult{}, nil
		}
		return nil, err
	}

	out := make([]domain.TradeResult, 0, len(records))
	for _, r := range records {
		res, err := r.toResult()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r Record) toResult() (domain.TradeResult, error) {
	price, err := decimal.NewFromString(r.ExecutionPrice)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("parsing journaled price %q: %w", r.ExecutionPrice, err)
	}
	balance, err := decimal.NewFromString(r.BalanceAfter)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("parsing journaled balance %q: %w", r.BalanceAfter, err)
	}

	res := domain.TradeResult{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Ticker:         r.Ticker,
		SharesDelta:    r.SharesDelta,
		ExecutionPrice: price,
		BalanceAfter:   balance,
		ExecutedAt:     time.UnixMilli(r.ExecutedAt).UTC(),
	}
	if r.RealizedPnL != "" {
		pnl, err := decimal.NewFromString(r.RealizedPnL)
		if err != nil {
			return domain.TradeResult{}, fmt.Errorf("parsing journaled pnl %q: %w", r.RealizedPnL, err)
		}
		res.RealizedPnL = &pnl
	}
	return res, nil
}

// dayPath returns the journal file for the trade's execution date.
// Layout: <dataDir>/trades/<YYYY-MM-DD>.parquet
func (j *Journal) dayPath(t time.Time) string {
	return filepath.Join(j.dataDir, "trades", t.UTC().Format("2006-01-02")+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeRecords deduplicates by trade id, preferring incoming records, and
// sorts by execution time.
func mergeRecords(existing, incoming []Record) []Record {
	seen := make(map[string]Record, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]Record, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ExecutedAt < merged[j].ExecutedAt
	})
	return merged
}
