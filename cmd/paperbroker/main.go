package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mfreitas/paperbroker/internal/auth"
	"github.com/mfreitas/paperbroker/internal/config"
	"github.com/mfreitas/paperbroker/internal/handler"
	"github.com/mfreitas/paperbroker/internal/ledger"
	"github.com/mfreitas/paperbroker/internal/quote"
	"github.com/mfreitas/paperbroker/internal/service"
	"github.com/mfreitas/paperbroker/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Optional .env file for local development.
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Account store: Postgres when DATABASE_URL is set, in-memory otherwise.
	var accounts store.AccountStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open account store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		accounts = pg
		logger.Info("using postgres account store")
	} else {
		accounts = store.NewMemoryStore()
		logger.Info("using in-memory account store")
	}

	// Quote provider: external API when configured, simulator otherwise,
	// wrapped in a TTL cache either way.
	var source quote.Provider
	if cfg.QuoteAPIURL != "" {
		source = quote.NewHTTPProvider(cfg.QuoteAPIURL, cfg.QuoteTimeout)
		logger.Info("using quote API", slog.String("url", cfg.QuoteAPIURL))
	} else {
		source = quote.NewSimProvider(time.Now().UnixNano())
		logger.Info("using simulated quotes")
	}
	quotes, err := quote.NewCachedProvider(source, cfg.QuoteCacheSize, cfg.QuoteCacheTTL)
	if err != nil {
		logger.Error("failed to create quote cache", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Sessions, ledger, services.
	sessions := auth.NewSessionStore(cfg.SessionTTL)

	policy, err := ledger.ParseCostBasisPolicy(cfg.CostBasis)
	if err != nil {
		logger.Error("failed to parse cost basis policy", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lg := ledger.New(accounts, quotes, policy)

	accountSvc := service.NewAccountService(accounts, sessions, cfg.InitialCash)
	portfolioSvc := service.NewPortfolioService(accounts, lg)

	// Router.
	router := handler.NewRouter(handler.RouterConfig{
		AccountSvc:     accountSvc,
		PortfolioSvc:   portfolioSvc,
		Ledger:         lg,
		Quotes:         quotes,
		StreamQuotes:   source,
		Sessions:       sessions,
		SessionTTL:     cfg.SessionTTL,
		StreamInterval: cfg.PriceStreamInterval,
		Logger:         logger,
	})

	// Start session sweeper with cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.Sweep(ctx, cfg.SessionSweepInterval)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops the sweeper).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
