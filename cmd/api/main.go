package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/config"
	"sales-realtime-api/internal/events"
	"sales-realtime-api/internal/handler"
	"sales-realtime-api/internal/metrics"
	"sales-realtime-api/internal/middleware"
	"sales-realtime-api/internal/repository"
	"sales-realtime-api/internal/router"
	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// durableStore is a column store the readiness check can probe.
type durableStore interface {
	repository.ColumnStore
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.MustLoad()

	root := logger.New(logger.Options{
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		Debug:   cfg.App.Debug,
		Pretty:  cfg.App.IsDevelopment(),
	})
	log := logger.Component(root, "main")
	log.Info().Str("env", cfg.App.Environment).Msg("starting sales-realtime-api")

	// Durable store
	var (
		store     durableStore
		storeType = cfg.Store.Type
	)
	switch {
	case cfg.Store.IsMongo():
		mongoStore, err := repository.NewMongoColumnStore(
			cfg.Store.MongoURI,
			cfg.Store.MongoDatabase,
			cfg.Store.MongoCollection,
			logger.Component(root, "store"),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open mongodb store")
		}
		store, storeType = mongoStore, "mongodb"
	default:
		driver, dsn, err := cfg.Store.DSN()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid store configuration")
		}
		if driver == "sqlite" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
				log.Fatal().Err(err).Msg("failed to create store directory")
			}
		}
		sqlStore, err := repository.NewSQLColumnStore(driver, dsn, logger.Component(root, "store"))
		if err != nil {
			log.Fatal().Err(err).Str("driver", driver).Msg("failed to open store")
		}
		store, storeType = sqlStore, driver
	}
	log.Info().Str("type", storeType).Msg("durable store initialized")

	// Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The ledger lives in Redis; readiness reports the outage until it is back.
		log.Warn().Err(err).Str("addr", cfg.Redis.Address()).Msg("redis not reachable")
	} else {
		log.Info().Str("addr", cfg.Redis.Address()).Msg("redis client initialized")
	}
	cancel()

	m := metrics.New()

	// Order events
	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(
			events.NewKafkaWriter(brokers, cfg.Kafka.Topic),
			cfg.Kafka.Topic,
			logger.Component(root, "events"),
		)
		log.Info().Strs("brokers", brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher initialized")
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(store)
	productRepo := repository.NewProductRepository(store)

	// Services
	stockService := service.NewStockService(redisClient, service.StockConfig{
		TTL:      cfg.TTL.Stock,
		LeaseTTL: cfg.TTL.StockLease,
	}, m, logger.Component(root, "stock"))

	var productBackend cache.Cache = cache.NewRedisCache(redisClient, cache.ProductCacheNamespace)
	if cfg.App.ProductCache == "memory" {
		memCache := cache.NewMemoryCache(cache.ProductCacheNamespace)
		defer memCache.Close()
		productBackend = memCache
	}
	productCache := cache.NewLoader(productBackend, logger.Component(root, "product-cache"))
	catalogService := service.NewCatalogService(productRepo, stockService, productCache, cfg.TTL.ProductCache, logger.Component(root, "catalog"))

	salesBuffer := cache.NewSalesBuffer(redisClient, cache.SalesBufferConfig{
		FlushInterval: cfg.Sales.FlushInterval,
	}, catalogService.FlushSaleCounts, logger.Component(root, "sales-buffer"))

	cartService := service.NewCartService(redisClient, stockService, catalogService, service.CartConfig{
		TTL: cfg.TTL.Cart,
	}, m, logger.Component(root, "cart"))

	ranking := service.NewRankingBoard(redisClient, logger.Component(root, "ranking"))
	aggregator := service.NewMetricsAggregator(redisClient, ranking, service.AggregatorConfig{
		MarkerTTL:    cfg.TTL.StatsMarker,
		DashboardTTL: cfg.TTL.Dashboard,
	}, m, logger.Component(root, "aggregator"))

	orderService := service.NewOrderService(service.OrderDeps{
		Orders:     orderRepo,
		Client:     redisClient,
		Stock:      stockService,
		Cart:       cartService,
		Aggregator: aggregator,
		Sales:      salesBuffer,
		Events:     publisher,
	}, service.OrderConfig{StatusTTL: cfg.TTL.OrderStatus}, m, logger.Component(root, "orders"))

	expiry := service.NewExpiryScheduler(orderService, service.ExpiryConfig{
		Timeout:  cfg.Sales.UnpaidOrderTimeout,
		Interval: cfg.Sales.SweepInterval,
	}, logger.Component(root, "expiry"))
	expiry.Start()

	// Handlers
	handlerLog := logger.Component(root, "http")
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version, map[string]handler.Pinger{
		"redis": handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		"store": store,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	adminKeys := cfg.App.Keys()
	if len(adminKeys) == 0 {
		log.Warn().Msg("no ADMIN_API_KEYS configured, admin routes are locked")
	}

	r := router.New(router.Config{
		Handler:          healthHandler,
		StockHandler:     handler.NewStockHandler(stockService, handlerLog),
		ProductHandler:   handler.NewProductHandler(catalogService, handlerLog),
		CartHandler:      handler.NewCartHandler(cartService, orderService, handlerLog),
		OrderHandler:     handler.NewOrderHandler(orderService, handlerLog),
		AdminHandler:     handler.NewAdminHandler(orderService, catalogService, salesBuffer, store, storeType, handlerLog),
		DashboardHandler: handler.NewDashboardHandler(aggregator, ranking, handlerLog),
		Logger:           logger.Component(root, "access"),
		Metrics:          m,
		AdminAuth:        middleware.NewAdminAuth(adminKeys),
		WriteRateLimit:   limiter.Handler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	expiry.Stop()

	// Flushes pending sale counts before the store closes.
	if err := salesBuffer.Close(); err != nil {
		log.Error().Err(err).Msg("sales buffer close error")
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("event publisher close error")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("store close error")
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("redis close error")
	}

	log.Info().Msg("server stopped")
}
