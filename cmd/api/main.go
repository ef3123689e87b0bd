package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/db"
	"github.com/atharvakonge/papertrade/internal/handlers"
	"github.com/atharvakonge/papertrade/internal/ledger"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/market"
	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/store"
	"github.com/atharvakonge/papertrade/internal/watchlist"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		stop()
		log.Sync()
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails, then releases
// everything it opened.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// Initialize store
	s, ping, err := openStore(ctx, cfg.DB, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	// Redis backs the quote cache and the rate limiter. Both are optional.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, running without cache and rate limiting", zap.Error(err))
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	provider, err := newProvider(cfg.Market)
	if err != nil {
		return fmt.Errorf("create market data provider: %w", err)
	}
	var cache market.Cache
	if rdb != nil {
		cache = market.NewRedisCache(rdb)
	}
	marketData := market.NewService(provider, cache, log, market.WithTTL(cfg.Market.QuoteTTL, cfg.Market.HistoryTTL))

	// Initialize ledger and trade processor
	l := ledger.New(s, log, ledger.WithStartingCash(cfg.Ledger.StartingCash))
	tradeProcessor := ledger.NewProcessor(l, cfg.Ledger.Workers, cfg.Ledger.QueueSize, log)
	tradeProcessor.Start()
	defer tradeProcessor.Stop()

	h := handlers.New(l, tradeProcessor, marketData, watchlist.NewService(s, log), log, cfg.Stream).
		WithHealthCheck(ping)

	var limiter gin.HandlerFunc
	if rdb != nil {
		limiter = middleware.RateLimit(rdb, cfg.RateLimit, log)
	}

	gin.SetMode(cfg.App.GinMode)
	router := handlers.NewRouter(h, log, cfg.Auth, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server started",
			zap.String("port", cfg.App.Port),
			zap.String("db_driver", cfg.DB.Driver),
			zap.String("market_provider", cfg.Market.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown", zap.Error(err))
	}

	log.Info("HTTP server stopped")
	return nil
}

// openStore returns the configured store and a health check for it.
func openStore(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (store.Store, func(context.Context) error, error) {
	if cfg.Driver == "memory" {
		log.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil, nil
	}

	database, err := db.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store.NewPostgresStore(database), database.PingContext, nil
}

func newProvider(cfg config.MarketConfig) (market.Provider, error) {
	switch cfg.Provider {
	case "polygon":
		return market.NewPolygon(cfg.PolygonKey)
	case "mock":
		return market.NewMock(), nil
	default:
		return market.NewAlphaVantage(cfg.AlphaVantageURL, cfg.AlphaVantageKey, cfg.Timeout), nil
	}
}
