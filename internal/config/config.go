// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds runtime configuration for the broker engine.
type Config struct {
	Port string

	// Persistence. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Accounting
	StartingBalance decimal.Decimal
	FeeRate         decimal.Decimal

	// Quotes: "static" or "alpaca".
	QuoteProvider string
	TickInterval  time.Duration

	// Pre-trade risk limits; zero disables a check.
	MaxOrderNotional decimal.Decimal
	MaxPositionQty   int64

	// Idempotency cache for POST /orders replays.
	IdempotencyTTL time.Duration
}

// Load populates Config from environment variables, reading a .env file
// first if one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	return Config{
		Port:             getenv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CacheTTL:         durationEnv("CACHE_TTL", 30*time.Second),
		JWTSecret:        getenv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:         durationEnv("TOKEN_TTL", 7*24*time.Hour),
		StartingBalance:  decimalEnv("STARTING_BALANCE", decimal.NewFromInt(10000)),
		FeeRate:          decimalEnv("FEE_RATE", decimal.NewFromFloat(0.001)),
		QuoteProvider:    getenv("QUOTE_PROVIDER", "static"),
		TickInterval:     durationEnv("QUOTE_TICK_INTERVAL", 2*time.Second),
		MaxOrderNotional: decimalEnv("MAX_ORDER_NOTIONAL", decimal.Zero),
		MaxPositionQty:   intEnv("MAX_POSITION_QTY", 0),
		IdempotencyTTL:   durationEnv("IDEMPOTENCY_TTL", 10*time.Minute),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func decimalEnv(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
