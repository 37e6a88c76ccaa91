package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"stockdesk/internal/auth"
	"stockdesk/internal/config"
	"stockdesk/internal/httpapi"
	"stockdesk/internal/journal"
	"stockdesk/internal/ledger"
	"stockdesk/internal/metrics"
	"stockdesk/internal/news"
	"stockdesk/internal/quote"
	"stockdesk/internal/trade"
	"stockdesk/internal/util"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stockdesk-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/stockdesk.yaml"
	if p := os.Getenv("STOCKDESK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening sqlite: %w", err)
	}
	defer db.Close()

	store, err := ledger.NewSQLiteStore(db)
	if err != nil {
		return fmt.Errorf("ledger store: %w", err)
	}
	authSvc, err := auth.NewService(db)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	newsStore, err := news.NewStore(db)
	if err != nil {
		return fmt.Errorf("news store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seed(ctx, cfg, store, authSvc, newsStore); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	// Market data is optional: without credentials the quote-backed
	// endpoints answer 503 and trading is unavailable upstream.
	var (
		src      quote.Source
		batch    quote.BatchSource
		history  quote.HistorySource
		liveNews httpapi.LiveNews
	)
	if cfg.Alpaca.APIKey != "" {
		alpaca := quote.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Quotes.RateLimitPerMin)
		src, batch, history = alpaca, alpaca, alpaca
		liveNews = news.NewFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	} else {
		log.Warn("no market data credentials configured, quote endpoints disabled")
	}

	j := journal.New(cfg.Storage.DataDir)
	engine := trade.NewEngine(store, src, j, cfg.Quotes.Timeout())
	m := metrics.New()

	api := httpapi.NewServer(
		engine, authSvc, newsStore, j, m,
		src, batch, history, liveNews,
		cfg.Quotes.TopTickers, log,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seed creates the demo account, login, and sample news on first run.
func seed(ctx context.Context, cfg *config.Config, store *ledger.SQLiteStore, authSvc *auth.Service, newsStore *news.Store) error {
	exists, err := store.HasAccount(ctx, cfg.Seed.AccountID)
	if err != nil {
		return err
	}
	if !exists {
		balance, err := decimal.NewFromString(cfg.Seed.Balance)
		if err != nil {
			return fmt.Errorf("bad seed balance %q: %w", cfg.Seed.Balance, err)
		}
		if err := store.CreateAccount(ctx, cfg.Seed.AccountID, balance); err != nil {
			return err
		}
	}
	if err := authSvc.CreateUser(ctx, cfg.Seed.Username, cfg.Seed.Password, cfg.Seed.AccountID); err != nil {
		return err
	}
	return newsStore.Seed(ctx)
}
