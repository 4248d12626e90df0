package handler

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mfreitas/paperbroker/internal/auth"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/quote"
	"github.com/mfreitas/paperbroker/internal/service"
)

// RouterConfig carries the dependencies and tunables for NewRouter.
type RouterConfig struct {
	AccountSvc   *service.AccountService
	PortfolioSvc *service.PortfolioService
	Ledger       *ledger.Ledger
	Quotes       quote.Provider
	// StreamQuotes backs the websocket price stream. It must be the live
	// source, not the cached decorator: stepping and universe listing sit on
	// the source, and a cache TTL would freeze every frame. Nil falls back
	// to Quotes.
	StreamQuotes   quote.Provider
	Sessions       *auth.SessionStore
	SessionTTL     time.Duration
	StreamInterval time.Duration
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. Trade and portfolio routes sit
// behind the session middleware.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(cfg.Logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	accountH := NewAccountHandler(cfg.AccountSvc, cfg.SessionTTL)
	tradeH := NewTradeHandler(cfg.Ledger, cfg.Logger)
	portfolioH := NewPortfolioHandler(cfg.PortfolioSvc, cfg.Logger)
	quoteH := NewQuoteHandler(cfg.Quotes)
	streamQuotes := cfg.StreamQuotes
	if streamQuotes == nil {
		streamQuotes = cfg.Quotes
	}
	streamH := NewStreamHandler(streamQuotes, cfg.StreamInterval, cfg.Logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public routes.
	r.Post("/register", accountH.Register)
	r.Post("/login", accountH.Login)
	r.Post("/logout", accountH.Logout)
	r.Get("/quote/{symbol}", quoteH.GetQuote)
	r.Get("/ws/prices", streamH.ServePrices)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(requireSession(cfg.Sessions))
		r.Post("/trades/buy", tradeH.Buy)
		r.Post("/trades/sell", tradeH.Sell)
		r.Get("/portfolio", portfolioH.GetPortfolio)
		r.Get("/history", portfolioH.GetHistory)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// Hijack lets the websocket upgrade take over the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests with a body. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength != 0 {
				ct := r.Header.Get("Content-Type")
				if ct == "" || !strings.HasPrefix(ct, "application/json") {
					WriteError(w, http.StatusBadRequest, "invalid_request",
						"Content-Type must be application/json")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
