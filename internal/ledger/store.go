// Package ledger owns the balance and holdings state of every simulated
// account. All mutations go through a per-account exclusive-access window so
// read-modify-write sequences on the same account never interleave, while
// trades on different accounts proceed independently.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

// Store provides serialized read-modify-write access per account, plus
// lock-free snapshot reads for display.
type Store interface {
	// WithAccountLock runs fn with exclusive access to the account's balance
	// and holdings. Changes staged on the view are applied atomically only
	// if fn returns nil; any error discards every staged change. No other
	// mutating operation on the same account may interleave. Returns
	// domain.ErrAccountNotFound for unknown accounts.
	WithAccountLock(ctx context.Context, accountID string, fn func(view *AccountView) error) error

	// GetBalance returns the account's current balance without taking the
	// exclusive window. The value is a display snapshot and must never be
	// used to authorize a trade.
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// GetHoldings returns a snapshot of the account's holdings, sorted by
	// ticker, without taking the exclusive window.
	GetHoldings(ctx context.Context, accountID string) ([]domain.Holding, error)

	// CreateAccount creates a new account with the given opening balance.
	CreateAccount(ctx context.Context, accountID string, balance decimal.Decimal) error
}

// AccountView is the staged state handed to a WithAccountLock callback. It
// is loaded from current storage inside the exclusive window, so the values
// read through it are never stale. Mutations accumulate in memory and reach
// storage only when the callback succeeds.
type AccountView struct {
	accountID string
	balance   decimal.Decimal
	holdings  map[string]domain.Holding

	balanceDirty bool
	dirty        map[string]struct{} // staged upserts
	removed      map[string]struct{} // staged deletions
}

func newAccountView(accountID string, balance decimal.Decimal, holdings []domain.Holding) *AccountView {
	hs := make(map[string]domain.Holding, len(holdings))
	for _, h := range holdings {
		hs[h.Ticker] = h
	}
	return &AccountView{
		accountID: accountID,
		balance:   balance,
		holdings:  hs,
		dirty:     make(map[string]struct{}),
		removed:   make(map[string]struct{}),
	}
}

// AccountID returns the account this view belongs to.
func (v *AccountView) AccountID() string { return v.accountID }

// Balance returns the current (possibly staged) balance.
func (v *AccountView) Balance() decimal.Decimal { return v.balance }

// SetBalance stages a new balance.
func (v *AccountView) SetBalance(b decimal.Decimal) {
	v.balance = b
	v.balanceDirty = true
}

// Holding returns the holding for ticker and whether it exists.
func (v *AccountView) Holding(ticker string) (domain.Holding, bool) {
	h, ok := v.holdings[ticker]
	return h, ok
}

// SetHolding stages an insert or update of the holding.
func (v *AccountView) SetHolding(h domain.Holding) {
	v.holdings[h.Ticker] = h
	v.dirty[h.Ticker] = struct{}{}
	delete(v.removed, h.Ticker)
}

// RemoveHolding stages deletion of the holding for ticker.
func (v *AccountView) RemoveHolding(ticker string) {
	delete(v.holdings, ticker)
	v.removed[ticker] = struct{}{}
	delete(v.dirty, ticker)
}

// Holdings returns all current (staged) holdings in unspecified order.
func (v *AccountView) Holdings() []domain.Holding {
	out := make([]domain.Holding, 0, len(v.holdings))
	for _, h := range v.holdings {
		out = append(out, h)
	}
	return out
}
