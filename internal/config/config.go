package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the broker simulator.
type Config struct {
	Port     int
	LogLevel string

	// DatabaseURL selects the Postgres account store; empty means the
	// in-memory store.
	DatabaseURL string

	// QuoteAPIURL selects the external quote API; empty means the built-in
	// price simulator.
	QuoteAPIURL    string
	QuoteTimeout   time.Duration
	QuoteCacheTTL  time.Duration
	QuoteCacheSize int64

	InitialCash          decimal.Decimal
	CostBasis            string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	PriceStreamInterval  time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	quoteTimeout, err := getDuration("QUOTE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
	}

	quoteCacheTTL, err := getDuration("QUOTE_CACHE_TTL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_CACHE_TTL: %w", err)
	}

	quoteCacheSize, err := getInt("QUOTE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_CACHE_SIZE: %w", err)
	}

	initialCash, err := getDecimal("INITIAL_CASH", "10000.00")
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CASH: %w", err)
	}
	if initialCash.IsNegative() {
		return nil, fmt.Errorf("invalid INITIAL_CASH: must be >= 0")
	}

	costBasis := getStr("COST_BASIS", "average")
	if costBasis != "average" && costBasis != "cashflow" {
		return nil, fmt.Errorf("invalid COST_BASIS: %q, must be one of: average, cashflow", costBasis)
	}

	sessionTTL, err := getDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	sessionSweep, err := getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_SWEEP_INTERVAL: %w", err)
	}

	streamInterval, err := getDuration("PRICE_STREAM_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_STREAM_INTERVAL: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		DatabaseURL:          getStr("DATABASE_URL", ""),
		QuoteAPIURL:          getStr("QUOTE_API_URL", ""),
		QuoteTimeout:         quoteTimeout,
		QuoteCacheTTL:        quoteCacheTTL,
		QuoteCacheSize:       int64(quoteCacheSize),
		InitialCash:          initialCash,
		CostBasis:            costBasis,
		SessionTTL:           sessionTTL,
		SessionSweepInterval: sessionSweep,
		PriceStreamInterval:  streamInterval,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		ShutdownTimeout:      shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key, defaultVal string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	return decimal.NewFromString(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
