// Package news stores market-news articles in SQLite and fetches live
// per-symbol news from the Alpaca news API.
package news

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stockdesk/internal/domain"
)

// Store persists news articles.
type Store struct {
	db *sql.DB
}

// NewStore prepares the news table on the given database handle.
func NewStore(db *sql.DB) (*Store, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS news (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	title     TEXT NOT NULL,
	content   TEXT NOT NULL,
	tickers   TEXT,
	posted_on TIMESTAMP NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating news table: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert stores one article.
func (s *Store) Insert(ctx context.Context, a *domain.Article) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO news (title, content, tickers, posted_on) VALUES (?, ?, ?, ?)`,
		a.Title, a.Content, a.Tickers, a.PostedOn.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news`).Scan(&n)
	return n, err
}

// Query describes a filtered news lookup. Zero values mean "no filter".
type Query struct {
	Tickers []string  // match articles tagged with any of these symbols
	From    time.Time // posted on or after
	To      time.Time // posted on or before
	Oldest  bool      // sort oldest-first instead of latest-first
	Limit   int       // defaults to 50
}

// List returns articles matching q.
func (s *Store) List(ctx context.Context, q Query) ([]domain.Article, error) {
	var (
		where []string
		args  []any
	)

	if len(q.Tickers) > 0 {
		placeholders := make([]string, len(q.Tickers))
		for i, t := range q.Tickers {
			placeholders[i] = "?"
			args = append(args, strings.ToUpper(strings.TrimSpace(t)))
		}
		where = append(where, "tickers IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !q.From.IsZero() {
		where = append(where, "posted_on >= ?")
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		where = append(where, "posted_on <= ?")
		args = append(args, q.To.UTC())
	}

	query := `SELECT id, title, content, tickers, posted_on FROM news`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Oldest {
		query += " ORDER BY posted_on ASC"
	} else {
		query += " ORDER BY posted_on DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying news: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Tickers, &a.PostedOn); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Seed inserts the bundled sample articles if the table is empty.
func (s *Store) Seed(ctx context.Context) error {
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for i := range sampleArticles {
		if err := s.Insert(ctx, &sampleArticles[i]); err != nil {
			return err
		}
	}
	return nil
}

var sampleArticles = []domain.Article{
	{
		Title:    "Tesla Surpasses Market Expectations",
		Content:  "Tesla's latest earnings report shows a surprising increase in profits, surpassing Wall Street predictions.",
		Tickers:  "TSLA",
		PostedOn: time.Date(2024, 8, 30, 14, 30, 0, 0, time.UTC),
	},
	{
		Title:    "Apple Unveils New Product Line",
		Content:  "Apple has announced a new line of innovative products scheduled to be released next quarter.",
		Tickers:  "AAPL",
		PostedOn: time.Date(2024, 8, 30, 15, 0, 0, 0, time.UTC),
	},
	{
		Title:    "Amazon Expands to New Markets",
		Content:  "Amazon declares its expansion into new international markets, aiming to double its global footprint.",
		Tickers:  "AMZN",
		PostedOn: time.Date(2024, 8, 30, 16, 0, 0, 0, time.UTC),
	},
	{
		Title:    "Microsoft Acquires AI Startup",
		Content:  "Microsoft has acquired an AI startup to enhance its cloud computing capabilities.",
		Tickers:  "MSFT",
		PostedOn: time.Date(2024, 8, 30, 17, 0, 0, 0, time.UTC),
	},
	{
		Title:    "Google Faces Antitrust Investigation",
		Content:  "Google is under scrutiny as new antitrust investigations seek to explore its business practices.",
		Tickers:  "GOOGL",
		PostedOn: time.Date(2024, 8, 30, 18, 0, 0, 0, time.UTC),
	},
}
