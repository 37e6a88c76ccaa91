package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store entirely in memory. It shares the staged-view
// commit semantics of the SQLite store and is used in tests and for
// throwaway demo runs.
type MemoryStore struct {
	locks *lockTable

	// mu guards the maps below. Held only for snapshot loads, commit
	// application, and reads — never across fn or network calls.
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	holdings map[string]map[string]domain.Holding // accountID → ticker → holding
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    newLockTable(),
		balances: make(map[string]decimal.Decimal),
		holdings: make(map[string]map[string]domain.Holding),
	}
}

// CreateAccount creates a new account with the given opening balance.
func (s *MemoryStore) CreateAccount(_ context.Context, accountID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[accountID]; exists {
		return fmt.Errorf("account %s already exists", accountID)
	}
	s.balances[accountID] = balance
	s.holdings[accountID] = make(map[string]domain.Holding)
	return nil
}

// WithAccountLock serializes read-modify-write sequences per account and
// applies staged changes atomically after fn succeeds.
func (s *MemoryStore) WithAccountLock(ctx context.Context, accountID string, fn func(view *AccountView) error) error {
	lock := s.locks.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	balance, ok := s.balances[accountID]
	var current []domain.Holding
	if ok {
		for _, h := range s.holdings[accountID] {
			current = append(current, h)
		}
	}
	s.mu.RUnlock()

	if !ok {
		return domain.ErrAccountNotFound
	}

	view := newAccountView(accountID, balance, current)
	if err := fn(view); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if view.balanceDirty {
		s.balances[accountID] = view.balance
	}
	for ticker := range view.dirty {
		s.holdings[accountID][ticker] = view.holdings[ticker]
	}
	for ticker := range view.removed {
		delete(s.holdings[accountID], ticker)
	}
	return nil
}

// GetBalance returns a snapshot of the account balance.
func (s *MemoryStore) GetBalance(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[accountID]
	if !ok {
		return decimal.Decimal{}, domain.ErrAccountNotFound
	}
	return balance, nil
}

// GetHoldings returns a snapshot of the account's holdings sorted by ticker.
func (s *MemoryStore) GetHoldings(_ context.Context, accountID string) ([]domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hs, ok := s.holdings[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := make([]domain.Holding, 0, len(hs))
	for _, h := range hs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}
