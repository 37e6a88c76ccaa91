package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockdesk/internal/auth"
	"stockdesk/internal/domain"
	"stockdesk/internal/journal"
	"stockdesk/internal/metrics"
	"stockdesk/internal/news"
	"stockdesk/internal/quote"
	"stockdesk/internal/trade"
)

// LiveNews fetches per-symbol articles from the external news provider.
type LiveNews interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Article, error)
}

// Server serves the stockdesk HTTP API.
type Server struct {
	engine  *trade.Engine
	auth    *auth.Service
	news    *news.Store
	journal *journal.Journal
	metrics *metrics.Metrics
	log     *slog.Logger

	// Market-data surfaces (nil if the provider is not configured).
	quotes   quote.Source
	batch    quote.BatchSource
	history  quote.HistorySource
	liveNews LiveNews

	// Tickers served by the top-stocks endpoints.
	topTickers []string
}

// NewServer wires the API around the engine and stores. quotes, batch,
// history, and liveNews may be nil; their endpoints then answer 503.
func NewServer(
	engine *trade.Engine,
	authSvc *auth.Service,
	newsStore *news.Store,
	j *journal.Journal,
	m *metrics.Metrics,
	quotes quote.Source,
	batch quote.BatchSource,
	history quote.HistorySource,
	liveNews LiveNews,
	topTickers []string,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:     engine,
		auth:       authSvc,
		news:       newsStore,
		journal:    j,
		metrics:    m,
		quotes:     quotes,
		batch:      batch,
		history:    history,
		liveNews:   liveNews,
		topTickers: topTickers,
		log:        log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", s.instrument("login", s.handleLogin))
	mux.HandleFunc("POST /api/trade/buy", s.instrument("buy", s.handleBuy))
	mux.HandleFunc("POST /api/trade/sell", s.instrument("sell", s.handleSell))
	mux.HandleFunc("GET /api/portfolio", s.instrument("portfolio", s.handlePortfolio))
	mux.HandleFunc("GET /api/balance", s.instrument("balance", s.handleBalance))
	mux.HandleFunc("GET /api/trades/{date}", s.instrument("trades", s.handleTrades))
	mux.HandleFunc("GET /api/stock/{ticker}", s.instrument("stock", s.handleStock))
	mux.HandleFunc("GET /api/top-stocks", s.instrument("top-stocks", s.handleTopStocks))
	mux.HandleFunc("GET /api/top-stocks/historical", s.instrument("top-stocks-historical", s.handleTopStocksHistorical))
	mux.HandleFunc("GET /api/market-news", s.instrument("market-news", s.handleMarketNews))
	mux.HandleFunc("GET /api/news/{ticker}", s.instrument("live-news", s.handleLiveNews))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument records request count, error count, and latency per route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)

		statusClass := strconv.Itoa(sw.status/100) + "xx"
		s.metrics.RequestCount.WithLabelValues(route, statusClass).Inc()
		if sw.status >= 400 {
			s.metrics.RequestErrors.WithLabelValues(route).Inc()
		}
		s.metrics.RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeTradeError maps the trading error taxonomy to HTTP status codes.
func writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQuoteUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientShares):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// accountFromRequest resolves the bearer token to an account id.
func (s *Server) accountFromRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	accountID, err := s.auth.ResolveToken(token)
	if err != nil {
		return "", false
	}
	return accountID, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, LoginResponse{Token: token, AccountID: user.AccountID})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.engine.Buy, "buy")
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.engine.Sell, "sell")
}

func (s *Server) handleTrade(
	w http.ResponseWriter,
	r *http.Request,
	exec func(ctx context.Context, accountID, ticker string, shares int64) (*domain.TradeResult, error),
	side string,
) {
	accountID, ok := s.accountFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker required")
		return
	}

	res, err := exec(r.Context(), accountID, req.Ticker, req.Shares)
	if err != nil {
		writeTradeError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.TradesExecuted.WithLabelValues(side).Inc()
		s.metrics.TickerRequests.WithLabelValues(res.Ticker).Inc()
	}
	writeJSON(w, res)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	report, err := s.engine.Portfolio(r.Context(), accountID)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}

	balance, err := s.engine.Balance(r.Context(), accountID)
	if err != nil {
		writeTradeError(w, err)
		return
	}
	writeJSON(w, BalanceResponse{AccountID: accountID, Balance: balance})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal not configured")
		return
	}

	date := r.PathValue("date")
	trades, err := s.journal.ReadDay(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad date, want YYYY-MM-DD")
		return
	}
	writeJSON(w, TradesResponse{Date: date, Trades: trades})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "market data not configured")
		return
	}

	ticker := strings.ToUpper(r.PathValue("ticker"))
	if s.metrics != nil {
		s.metrics.TickerRequests.WithLabelValues(ticker).Inc()
	}

	q, err := s.quotes.GetQuote(r.Context(), ticker)
	if err != nil {
		if s.metrics != nil {
			s.metrics.QuoteFailures.Inc()
		}
		writeError(w, http.StatusBadGateway, "quote unavailable for "+ticker)
		return
	}
	writeJSON(w, QuoteResponse{Ticker: q.Ticker, Price: q.Price, AsOf: q.AsOf})
}

func (s *Server) handleTopStocks(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeError(w, http.StatusServiceUnavailable, "market data not configured")
		return
	}

	quotes, err := s.batch.GetQuotes(r.Context(), s.topTickers)
	if err != nil {
		writeError(w, http.StatusBadGateway, "quotes unavailable")
		return
	}

	resp := TopStocksResponse{Quotes: make(map[string]QuoteResponse, len(quotes))}
	for ticker, q := range quotes {
		resp.Quotes[ticker] = QuoteResponse{Ticker: q.Ticker, Price: q.Price, AsOf: q.AsOf}
	}
	writeJSON(w, resp)
}

func (s *Server) handleTopStocksHistorical(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "market data not configured")
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, -6, 0)
	hist, err := s.history.GetDailyCloses(r.Context(), s.topTickers, start, end)
	if err != nil {
		writeError(w, http.StatusBadGateway, "history unavailable")
		return
	}
	writeJSON(w, hist)
}

func (s *Server) handleMarketNews(w http.ResponseWriter, r *http.Request) {
	q := news.Query{}
	params := r.URL.Query()

	if tickers := params.Get("tickers"); tickers != "" {
		q.Tickers = strings.Split(tickers, ",")
	}
	if from := params.Get("time_from"); from != "" {
		t, err := parseNewsTime(from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad time_from")
			return
		}
		q.From = t
	}
	if to := params.Get("time_to"); to != "" {
		t, err := parseNewsTime(to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad time_to")
			return
		}
		q.To = t
	}
	q.Oldest = params.Get("sort") == "EARLIEST"
	if limit := params.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		q.Limit = n
	}

	articles, err := s.news.List(r.Context(), q)
	if err != nil {
		s.log.Error("listing news", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, NewsResponse{Articles: articles})
}

// parseNewsTime accepts RFC 3339 or a bare date.
func parseNewsTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (s *Server) handleLiveNews(w http.ResponseWriter, r *http.Request) {
	if s.liveNews == nil {
		writeError(w, http.StatusServiceUnavailable, "news provider not configured")
		return
	}

	ticker := strings.ToUpper(r.PathValue("ticker"))
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	articles, err := s.liveNews.Fetch(r.Context(), ticker, start, end, 50)
	if err != nil {
		writeError(w, http.StatusBadGateway, "news unavailable for "+ticker)
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	writeJSON(w, NewsResponse{Articles: articles})
}
