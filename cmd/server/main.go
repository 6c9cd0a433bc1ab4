package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradedesk/broker-engine/internal/auth"
	"github.com/tradedesk/broker-engine/internal/broker"
	"github.com/tradedesk/broker-engine/internal/config"
	"github.com/tradedesk/broker-engine/internal/ledger"
	"github.com/tradedesk/broker-engine/internal/metrics"
	"github.com/tradedesk/broker-engine/internal/model"
	"github.com/tradedesk/broker-engine/internal/quote"
	"github.com/tradedesk/broker-engine/internal/risk"
	"github.com/tradedesk/broker-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Quote source ---
	var quotes quote.Source
	var static *quote.StaticSource

	switch cfg.QuoteProvider {
	case "alpaca":
		quotes = quote.NewAlpacaSource()
		slog.Info("using Alpaca market data")
	default:
		static = quote.NewStaticSource(quote.DefaultSeed())
		quotes = static
		slog.Info("using static quote source")
	}

	// Seed the instrument catalog for the demo universe.
	seedInstruments(st)

	// --- WebSocket hub ---
	wsHub := broker.NewWSHub()
	go wsHub.Run()

	// Demo mode: drive the quote stream with a random walk.
	if static != nil {
		go func() {
			ticker := time.NewTicker(cfg.TickInterval)
			defer ticker.Stop()
			for range ticker.C {
				for sym, price := range static.Tick() {
					wsHub.Broadcast(broker.WSMessage{
						Type:   "quote",
						Symbol: sym,
						Price:  price.String(),
					})
				}
			}
		}()
	}

	// --- Broker service ---
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	led := ledger.New(cfg.FeeRate)
	limiter := risk.NewOrderLimiter(cfg.MaxOrderNotional, cfg.MaxPositionQty)
	svc := broker.NewService(st, quotes, led, limiter, tokens, wsHub, broker.Options{
		StartingBalance: cfg.StartingBalance,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"broker-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", svc.Routes())

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("broker-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down broker-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("broker-engine stopped")
}

// seedInstruments makes sure the demo universe is searchable.
func seedInstruments(st store.Store) {
	now := time.Now().UTC()
	listings := []model.Instrument{
		{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Type: "equity"},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ", Type: "equity"},
		{Symbol: "GOOG", Name: "Alphabet Inc.", Exchange: "NASDAQ", Type: "equity"},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Exchange: "NASDAQ", Type: "equity"},
		{Symbol: "TSLA", Name: "Tesla Inc.", Exchange: "NASDAQ", Type: "equity"},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: "NASDAQ", Type: "equity"},
	}

	seedPrices := quote.DefaultSeed()
	for _, inst := range listings {
		inst.LastPrice = seedPrices[inst.Symbol]
		inst.UpdatedAt = now
		if err := st.UpsertInstrument(context.Background(), &inst); err != nil {
			slog.Warn("failed to seed instrument", "symbol", inst.Symbol, "err", err)
		}
	}
}
