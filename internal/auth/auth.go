// Package auth handles user accounts and bearer-token sessions.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stockdesk/internal/domain"
)

// ErrInvalidCredentials is returned when a login fails, whether because the
// user does not exist or the password is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a bearer token does not map to a session.
var ErrInvalidToken = errors.New("invalid token")

// Service authenticates users against SQLite and keeps sessions in memory.
// Tokens do not survive a restart; clients just log in again.
type Service struct {
	db *sql.DB

	mu       sync.RWMutex
	sessions map[string]string // token -> account ID
}

// NewService prepares the users table on the given database handle.
func NewService(db *sql.DB) (*Service, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	account_id    TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating users table: %w", err)
	}
	return &Service{db: db, sessions: make(map[string]string)}, nil
}

// HashPassword returns the hex-encoded SHA-256 digest of the password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CreateUser registers a user bound to an account. It is a no-op if the
// username is already taken.
func (s *Service) CreateUser(ctx context.Context, username, password, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, username, password_hash, account_id) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), username, HashPassword(password), accountID,
	)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", username, err)
	}
	return nil
}

// Login verifies the credentials and returns a fresh session token plus the
// user record.
func (s *Service) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, account_id FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.AccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("looking up user %q: %w", username, err)
	}

	hash := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(u.PasswordHash)) != 1 {
		return "", nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = u.AccountID
	s.mu.Unlock()
	return token, &u, nil
}

// ResolveToken maps a session token to its account ID.
func (s *Service) ResolveToken(token string) (string, error) {
	s.mu.RLock()
	accountID, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidToken
	}
	return accountID, nil
}

// Logout invalidates a session token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
