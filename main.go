package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wonsky1/topn-worker/config"
	"github.com/Wonsky1/topn-worker/helpers"
	"github.com/Wonsky1/topn-worker/internal/ops"
	"github.com/Wonsky1/topn-worker/internal/scraper"
	"github.com/Wonsky1/topn-worker/logger"
	"github.com/Wonsky1/topn-worker/services/cache"
	"github.com/Wonsky1/topn-worker/services/monitor"
	"github.com/Wonsky1/topn-worker/services/publisher"
	"github.com/Wonsky1/topn-worker/services/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables; existing values win over files
	_ = godotenv.Load()
	_ = godotenv.Load("dev.env")

	cfg := config.LoadConfig()

	// Initialize logger first
	logger.InitWith(cfg.LogLevel, cfg.LogFile)
	log := logger.Default

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("cycle_frequency", cfg.CycleFrequency).
		Dur("recency_window", cfg.RecencyWindow).
		Msg("Starting OLX item notification worker")

	if !cfg.IsProduction() {
		log.Debug().
			Str("store", cfg.StoreBaseURL).
			Str("memcache", cfg.MemcacheAddr).
			Str("redis", cfg.RedisAddr).
			Str("metrics", cfg.MetricsAddr).
			Msg("Configuration loaded")
	}

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := initializeServices(ctx, cfg)
	defer services.Cleanup()

	m := newMonitor(cfg, services)
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close scrapers")
		}
	}()

	if err := m.Run(ctx, cfg.CycleFrequency); err != nil {
		log.Error().Err(err).Msg("Monitor exited with error")
	}

	log.Info().Msg("Shutting down OLX item notification worker")
}

// Services holds all the initialized services
type Services struct {
	Store     *store.Client
	Cache     cache.CacheService
	Publisher publisher.Publisher
	metrics   *http.Server
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			logger.Warn("Failed to close publisher: %v", err)
		}
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metrics.Shutdown(ctx); err != nil {
			logger.Warn("Failed to stop metrics server: %v", err)
		}
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices wires the store client and the optional backends.
// Memcache, Redis and the metrics endpoint are enabled by their addresses.
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	services := &Services{
		Store: store.NewClient(cfg.StoreBaseURL, cfg.StoreTimeout),
	}

	if cfg.MemcacheAddr != "" {
		memcache := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcache.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache not reachable, rate limit blocking may not persist")
		} else {
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
		services.Cache = memcache
	}

	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.ForPublisher().Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis not reachable, item events will fail")
		} else {
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
		services.Publisher = redisPublisher
	}

	if cfg.MetricsAddr != "" {
		services.metrics = startMetricsServer(cfg.MetricsAddr)
	}

	return services
}

func startMetricsServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           ops.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics and health on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("metrics", err, "Metrics server failed on %s", addr)
		}
	}()
	return srv
}

// newMonitor builds the monitor and its scraper pool from cfg
func newMonitor(cfg *config.Config, services *Services) *monitor.Monitor {
	pool := scraper.NewPool(scraper.Options{
		RequestTimeout: cfg.RequestTimeout,
		Recency:        helpers.NewTimeWindow(cfg.RecencyWindow),
		Cache:          services.Cache,
		RateLimitBlock: cfg.RateLimitBlock,
	})

	return monitor.New(services.Store, pool, services.Publisher, monitor.Config{
		URLDelay:           cfg.URLDelay,
		ExistingItemsLimit: cfg.ExistingItemsLimit,
	})
}
