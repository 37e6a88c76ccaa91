package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"stockdesk/internal/domain"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a SQLite database. Monetary amounts are
// stored as decimal strings, never as floats. Serialization of same-account
// windows is done with an in-process lock table; the database transaction
// only provides atomicity of the final write set.
type SQLiteStore struct {
	db    *sql.DB
	locks *lockTable
}

// NewSQLiteStore prepares ledger tables on the given database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	balance TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS holdings (
	account_id TEXT    NOT NULL,
	ticker     TEXT    NOT NULL,
	shares     INTEGER NOT NULL,
	avg_cost   TEXT    NOT NULL,
	PRIMARY KEY (account_id, ticker)
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating ledger tables: %w", err)
	}
	return &SQLiteStore{db: db, locks: newLockTable()}, nil
}

// CreateAccount creates a new account with the given opening balance.
func (s *SQLiteStore) CreateAccount(ctx context.Context, accountID string, balance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance) VALUES (?, ?)`,
		accountID, balance.String(),
	)
	if err != nil {
		return fmt.Errorf("creating account %s: %w", accountID, err)
	}
	return nil
}

// HasAccount reports whether the account exists (used by startup seeding).
func (s *SQLiteStore) HasAccount(ctx context.Context, accountID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM accounts WHERE id = ?`, accountID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WithAccountLock serializes read-modify-write sequences per account. State
// is re-read inside the window, and the staged write set is committed in a
// single transaction after fn succeeds. Any error from fn leaves the
// database untouched.
func (s *SQLiteStore) WithAccountLock(ctx context.Context, accountID string, fn func(view *AccountView) error) error {
	lock := s.locks.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	balance, err := s.loadBalance(ctx, accountID)
	if err != nil {
		return err
	}
	holdings, err := s.loadHoldings(ctx, accountID)
	if err != nil {
		return err
	}

	view := newAccountView(accountID, balance, holdings)
	if err := fn(view); err != nil {
		return err
	}

	return s.commit(ctx, view)
}

func (s *SQLiteStore) commit(ctx context.Context, view *AccountView) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger tx: %w", err)
	}
	defer tx.Rollback()

	if view.balanceDirty {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ? WHERE id = ?`,
			view.balance.String(), view.accountID,
		); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}
	}
	for ticker := range view.dirty {
		h := view.holdings[ticker]
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO holdings (account_id, ticker, shares, avg_cost) VALUES (?, ?, ?, ?)`,
			view.accountID, ticker, h.Shares, h.AvgCost.String(),
		); err != nil {
			return fmt.Errorf("upserting holding %s: %w", ticker, err)
		}
	}
	for ticker := range view.removed {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM holdings WHERE account_id = ? AND ticker = ?`,
			view.accountID, ticker,
		); err != nil {
			return fmt.Errorf("deleting holding %s: %w", ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger tx: %w", err)
	}
	return nil
}

// GetBalance returns a snapshot of the account balance.
func (s *SQLiteStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.loadBalance(ctx, accountID)
}

// GetHoldings returns a snapshot of the account's holdings sorted by ticker.
func (s *SQLiteStore) GetHoldings(ctx context.Context, accountID string) ([]domain.Holding, error) {
	if _, err := s.loadBalance(ctx, accountID); err != nil {
		return nil, err
	}
	return s.loadHoldings(ctx, accountID)
}

func (s *SQLiteStore) loadBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, accountID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("reading balance for %s: %w", accountID, err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing stored balance %q: %w", raw, err)
	}
	return balance, nil
}

func (s *SQLiteStore) loadHoldings(ctx context.Context, accountID string) ([]domain.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, shares, avg_cost FROM holdings WHERE account_id = ? ORDER BY ticker`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading holdings for %s: %w", accountID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			h   domain.Holding
			raw string
		)
		if err := rows.Scan(&h.Ticker, &h.Shares, &raw); err != nil {
			return nil, err
		}
		h.AccountID = accountID
		h.AvgCost, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing stored avg_cost %q: %w", raw, err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
