package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/client"
	"github.com/cuongbtq/analysis-console/internal/api/handler"
	"github.com/cuongbtq/analysis-console/internal/api/router"
	"github.com/cuongbtq/analysis-console/internal/config"
	"github.com/cuongbtq/analysis-console/internal/events"
	"github.com/cuongbtq/analysis-console/internal/history"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/ratelimit"
	"github.com/cuongbtq/analysis-console/internal/session"
	"github.com/cuongbtq/analysis-console/internal/symbols"
	"github.com/cuongbtq/analysis-console/internal/telemetry"
	"github.com/cuongbtq/analysis-console/shared/logger"
	"github.com/cuongbtq/analysis-console/shared/postgresql"
	"github.com/cuongbtq/analysis-console/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	backend, err := client.NewClient(&client.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		UserAgent: cfg.Backend.UserAgent,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis backend client: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = initRedis(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer redisClient.Close()
		appLogger.Info("Redis connection established", slog.String("addr", cfg.Redis.Addr))
	}

	var historyStore handler.HistoryLister
	var dbHealth handler.HealthChecker
	if cfg.Database.Enabled {
		dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if err := telemetry.Register(dbClient.StatsCollector()); err != nil {
			return err
		}

		store := history.NewStorage(dbClient)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("failed to prepare history schema: %w", err)
		}
		historyStore = store
		dbHealth = dbClient
		appLogger.Info("Database connection established")
	}

	pollerOpts := []poller.Option{poller.WithInterval(cfg.Poller.Interval)}
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		publisher := events.NewPublisher(rabbitClient, appLogger.Logger, 0)
		pollerOpts = append(pollerOpts, poller.WithNotifier(publisher))
		appLogger.Info("RabbitMQ connection established")
	}

	registry := session.NewRegistry(&session.Config{
		Backend: backend,
		Logger:  appLogger.Logger,
		Options: pollerOpts,
	})
	defer registry.Close()

	r := initRouter(cfg, &handler.Dependencies{
		Logger:      appLogger.Logger,
		ServiceName: cfg.App.Name,
		Sessions:    registry,
		Symbols: symbols.NewService(backend, &symbols.Config{
			Redis:    redisClient,
			CacheKey: cfg.Redis.SymbolsKey,
			TTL:      cfg.Redis.SymbolsTTL,
			Logger:   appLogger.Logger,
		}),
		History:  historyStore,
		Limiter:  initLimiter(&cfg.RateLimit, redisClient, appLogger.Logger),
		Backend:  backend,
		Database: dbHealth,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return registry.Run(gctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("API service stopped with error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      cfg.App.Name,
	})
}

// initRedis connects to Redis and verifies the connection
func initRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// initLimiter returns a pass-through limiter unless rate limiting is enabled
func initLimiter(cfg *config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) *ratelimit.Limiter {
	if !cfg.Enabled || rdb == nil {
		return ratelimit.NewLimiter(nil, logger)
	}
	bucket := ratelimit.NewTokenBucket(rdb, "", cfg.Capacity, cfg.RefillPerSecond, cfg.TTL)
	return ratelimit.NewLimiter(bucket, logger)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ connects the event publisher side of the history exchange
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, &router.Options{
		Session: session.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secret: cfg.Session.Secret,
			MaxAge: cfg.Session.MaxAge,
			Secure: cfg.Session.Secure,
		},
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowCredentials: cfg.CORS.AllowCredentials,
		CORSMaxAge:       cfg.CORS.MaxAge,
	})
}
