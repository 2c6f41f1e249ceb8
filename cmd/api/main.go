package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plateful/api/internal/catalog"
	"github.com/plateful/api/internal/directory"
	"github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/events"
	"github.com/plateful/api/internal/geo"
	"github.com/plateful/api/internal/handlers"
	"github.com/plateful/api/internal/notifications"
	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/config"
	"github.com/plateful/api/internal/platform/idempotency"
	"github.com/plateful/api/internal/platform/metrics"
	"github.com/plateful/api/internal/platform/observability"
	"github.com/plateful/api/internal/repositories"
	"github.com/plateful/api/internal/repositories/memory"
	"github.com/plateful/api/internal/repositories/postgres"
	"github.com/plateful/api/internal/services"
)

type storeProviders struct {
	orders     repositories.OrderRepository
	carts      repositories.CartRepository
	unitOfWork repositories.UnitOfWork
	ping       func(ctx context.Context) error
	close      func()
}

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise store", zap.Error(err))
	}
	defer store.close()

	hub := notifications.NewHub(notifications.HubOptions{
		Logger: serviceLogger(),
	})
	publishers := []services.OrderEventPublisher{hub}

	if cfg.Kafka.Brokers != "" {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("failed to initialise kafka publisher", zap.Error(err))
		}
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka close error", zap.Error(err))
			}
		}()
		publishers = append(publishers, kafkaPublisher)
	}

	var rangeChecker services.DeliveryRangeChecker
	if cfg.Shop.GeocoderURL != "" {
		geocoder, err := geo.NewHTTPGeocoder(cfg.Shop.GeocoderURL, cfg.Shop.GeocoderKey, nil)
		if err != nil {
			logger.Fatal("failed to initialise geocoder", zap.Error(err))
		}
		rangeChecker, err = geo.NewRadiusRangeChecker(geo.RadiusRangeCheckerDeps{
			Geocoder:          geocoder,
			ShopAddress:       cfg.Shop.Address,
			MaxDistanceMeters: cfg.Shop.MaxDeliveryMeters,
		})
		if err != nil {
			logger.Fatal("failed to initialise range checker", zap.Error(err))
		}
	}

	serverMetrics := metrics.NewServerMetrics(nil)

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        store.orders,
		Carts:         store.carts,
		Addresses:     directory.NewStaticAddressDirectory(devAddresses()),
		RangeCheck:    rangeChecker,
		UnitOfWork:    store.unitOfWork,
		Publishers:    publishers,
		PaymentWindow: cfg.Sweeper.UnpaidWindow,
		Logger:        serviceLogger(),
		Metrics:       serverMetrics,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Carts:   store.carts,
		Catalog: catalog.NewStaticCatalog(devDishes(), devSetmeals()),
		Logger:  serviceLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	sweeper, err := services.NewOrderSweeper(services.OrderSweeperDeps{
		Orders:         store.orders,
		Engine:         orderService,
		UnpaidInterval: cfg.Sweeper.UnpaidInterval,
		UnpaidWindow:   cfg.Sweeper.UnpaidWindow,
		StuckInterval:  cfg.Sweeper.StuckInterval,
		StuckWindow:    cfg.Sweeper.StuckWindow,
		Logger:         serviceLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise order sweeper", zap.Error(err))
	}

	sweeperCtx, stopSweeper := context.WithCancel(observability.WithLogger(context.Background(), logger.Named("sweeper")))
	var sweeperWG sync.WaitGroup
	sweeperWG.Add(1)
	go func() {
		defer sweeperWG.Done()
		sweeper.Run(sweeperCtx)
	}()

	verifier, err := auth.NewHS256Verifier(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}

	idempotencyStore, closeIdempotency := buildIdempotencyStore(cfg, logger)
	defer closeIdempotency()

	healthOpts := []handlers.HealthOption{}
	if store.ping != nil {
		healthOpts = append(healthOpts, handlers.WithHealthCheck("postgres", handlers.PingerFunc(store.ping)))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			serverMetrics.Middleware(chiRoutePattern),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithUserMiddlewares(auth.Middleware(verifier)),
		handlers.WithAdminMiddlewares(auth.Middleware(verifier), auth.RequireAdmin),
		handlers.WithCartRoutes(handlers.NewCartHandlers(cartService).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(orderService).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminOrderHandlers(orderService).Routes),
		handlers.WithNotificationRoutes(handlers.NewNotificationHandlers(hub).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(orderService).Routes),
		handlers.WithWebhookMiddlewares(idempotency.Middleware(
			idempotencyStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(logger.Named("idempotency")),
		)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("plateful api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopSweeper()
	sweeperWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storeProviders, error) {
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Store.MigrateOnStart {
			if err := postgres.Migrate(cfg.Store.PostgresDSN); err != nil {
				return storeProviders{}, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrations applied")
		}
		provider, err := postgres.Connect(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return storeProviders{}, fmt.Errorf("connect postgres: %w", err)
		}
		return storeProviders{
			orders:     provider.Orders(),
			carts:      provider.Carts(),
			unitOfWork: provider.UnitOfWork(),
			ping:       provider.Ping,
			close:      provider.Close,
		}, nil
	default:
		store := memory.NewStore()
		return storeProviders{
			orders:     store.Orders(),
			carts:      store.Carts(),
			unitOfWork: store.UnitOfWork(),
			close:      func() {},
		}, nil
	}
}

func buildIdempotencyStore(cfg config.Config, logger *zap.Logger) (idempotency.Store, func()) {
	if cfg.Redis.Addr == "" {
		return idempotency.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := idempotency.NewRedisStore(client)
	if err != nil {
		logger.Fatal("failed to initialise redis idempotency store", zap.Error(err))
	}
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
}

// serviceLogger adapts the context-scoped zap logger to the map-based logging
// hook the services take.
func serviceLogger() func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		observability.FromContext(ctx).Info(event, zapFields...)
	}
}

func chiRoutePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// Development fixtures for the catalog and address directory; the real
// subsystems live in other services.
func devDishes() map[int64]domain.CatalogItem {
	return map[int64]domain.CatalogItem{
		1: {Name: "Kung Pao Chicken", UnitPrice: 2800, Image: "dishes/kung-pao.png"},
		2: {Name: "Mapo Tofu", UnitPrice: 2200, Image: "dishes/mapo-tofu.png"},
		3: {Name: "Steamed Rice", UnitPrice: 300, Image: "dishes/rice.png"},
	}
}

func devSetmeals() map[int64]domain.CatalogItem {
	return map[int64]domain.CatalogItem{
		10: {Name: "Lunch Combo A", UnitPrice: 4500, Image: "setmeals/combo-a.png"},
	}
}

func devAddresses() map[int64]domain.Address {
	return map[int64]domain.Address{
		1: {ID: 1, Consignee: "Dev User", Phone: "13800000000", Full: "1 Demo Street, Springfield"},
	}
}
