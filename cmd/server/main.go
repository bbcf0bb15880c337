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

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/config"
	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	bookingEvents "github.com/aquatrack-hygiene/service-booking/internal/events"
	"github.com/aquatrack-hygiene/service-booking/internal/handler"
	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/cache"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/database"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/health"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/kafka"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/logger"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/middleware"
	"github.com/aquatrack-hygiene/service-booking/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "service-booking"

// store bundles the persistence ports chosen by BOOKING_STORE_DRIVER.
type store struct {
	bookings  bookingDomain.BookingRepository
	addresses account.AddressRepository
	directory account.Directory
	checks    map[string]health.Pinger
	close     func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-booking",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer st.close()

	// Payment lock: Redis when reachable, in-process otherwise
	locker, closeLocker := newLocker(ctx, cfg, st.checks, log)
	defer closeLocker()

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.TTL)

	// Initialize event publisher
	var publisher application.EventPublisher
	if cfg.KafkaConfig.Enabled {
		kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = kafkaProducer.Close() }()
		publisher = kafkaProducer
	} else {
		log.Warn("kafka disabled, domain events are only logged")
		publisher = bookingEvents.NewLogPublisher(log)
	}

	gateway, err := payment.New(cfg.PaymentConfig, log)
	if err != nil {
		log.Fatal("failed to configure payment gateway", zap.Error(err))
	}

	// Initialize application services
	bookingService := application.NewBookingService(
		st.bookings,
		st.addresses,
		st.directory,
		bookingDomain.NewStandardPricingStrategy(),
		gateway,
		locker,
		publisher,
		application.PaymentSettings{
			Timeout: cfg.PaymentConfig.Timeout,
			LockTTL: cfg.PaymentLock,
		},
		log,
	)
	jobService := application.NewJobService(
		st.bookings,
		st.addresses,
		st.directory,
		publisher,
		log,
	)

	// Start payment event consumer in a goroutine
	if cfg.KafkaConfig.Enabled {
		groupID := cfg.KafkaConfig.GroupPrefix + "booking-service"
		paymentConsumer := bookingEvents.NewPaymentEventConsumer(
			cfg.KafkaConfig.Brokers,
			groupID,
			bookingService,
			log,
		)
		defer func() { _ = paymentConsumer.Close() }()

		go func() {
			log.Info("starting payment event consumer")
			if err := paymentConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("payment event consumer error", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(cfg, log, st, jwtManager, bookingService, jobService)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-booking...")

	// Cancel the consumer context
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-booking stopped")
}

func openStore(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, err := database.ConnectMongo(ctx, cfg.MongoConfig.URI, cfg.MongoConfig.Database, log)
		if err != nil {
			return nil, err
		}
		bookings, err := repository.NewMongoBookingRepository(ctx, db)
		if err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		accounts := repository.NewMongoAccounts(db)
		return &store{
			bookings:  bookings,
			addresses: accounts,
			directory: accounts,
			checks: map[string]health.Pinger{
				"mongo": health.PingFunc(func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }),
			},
			close: func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil

	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		accounts := repository.NewMemoryAccounts()
		seed, err := repository.LoadMemorySeed(cfg.MemorySeed, accounts)
		if err != nil {
			return nil, err
		}
		log.Info("memory accounts seeded",
			zap.Int("customers", len(seed.Customers)),
			zap.Int("technicians", len(seed.Technicians)),
			zap.Int("admins", len(seed.Admins)),
			zap.Int("addresses", len(seed.Addresses)),
		)
		return &store{
			bookings:  repository.NewMemoryBookingRepository(),
			addresses: accounts,
			directory: accounts,
			checks:    map[string]health.Pinger{},
			close:     func() {},
		}, nil
	}

	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.UserModel{},
			&repository.FieldTeamModel{},
			&repository.AdminModel{},
			&repository.AddressModel{},
			&repository.BookingModel{},
		); err != nil {
			return nil, fmt.Errorf("failed to run auto-migration: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", log); err != nil {
		return nil, err
	}

	return &store{
		bookings:  repository.NewGormBookingRepository(db),
		addresses: repository.NewGormAddressRepository(db),
		directory: repository.NewGormDirectory(db),
		checks:    map[string]health.Pinger{"postgres": health.PingFunc(sqlDB.PingContext)},
		close:     func() { _ = sqlDB.Close() },
	}, nil
}

// newRouter applies the global middleware and registers every route group
// behind token auth plus the known-account check.
func newRouter(
	cfg *config.ServiceConfig,
	log *zap.Logger,
	st *store,
	jwtManager *auth.JWTManager,
	bookingService *application.BookingService,
	jobService *application.JobService,
) *gin.Engine {
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, log))

	// Register health check routes
	health.NewHandler(serviceName, st.checks).RegisterRoutes(router)

	// Register routes
	authMW := []gin.HandlerFunc{
		middleware.AuthMiddleware(jwtManager),
		handler.RequireKnownActor(st.directory),
	}
	handler.NewBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, authMW...)
	handler.NewFieldHandler(jobService).RegisterRoutes(&router.RouterGroup, authMW...)
	handler.NewAdminBookingHandler(bookingService).RegisterRoutes(&router.RouterGroup, authMW...)

	return router
}

func newLocker(ctx context.Context, cfg *config.ServiceConfig, checks map[string]health.Pinger, log *zap.Logger) (application.Locker, func()) {
	if cfg.RedisConfig.Addr == "" {
		return cache.NewLocalLocker(), func() {}
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisConfig.Addr, cfg.RedisConfig.Password, cfg.RedisConfig.DB)
	if err != nil {
		if cfg.AppEnv == "production" {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		log.Warn("redis unavailable, payment locks are process-local", zap.Error(err))
		return cache.NewLocalLocker(), func() {}
	}

	checks["redis"] = health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return cache.NewRedisLocker(client, "booking:lock:"), func() { _ = client.Close() }
}
