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
	"sync"
	"syscall"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/fanout"
	"github.com/cuongbtq/video-pipeline/internal/api/handler"
	"github.com/cuongbtq/video-pipeline/internal/api/router"
	"github.com/cuongbtq/video-pipeline/internal/api/service"
	"github.com/cuongbtq/video-pipeline/internal/api/storage"
	"github.com/cuongbtq/video-pipeline/internal/config"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/cuongbtq/video-pipeline/shared/objectstore"
	"github.com/cuongbtq/video-pipeline/shared/postgresql"
	"github.com/cuongbtq/video-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/video-pipeline/shared/redis"
	"github.com/cuongbtq/video-pipeline/shared/sqs"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("database", cfg.Database.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("storage", cfg.Storage.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Job record store
	repo, dbClient, err := initRepository(ctx, &cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if dbClient != nil {
		defer func() {
			appLogger.Info("Database pool stats", dbClient.PoolStats())
			dbClient.Close()
		}()
	}

	// Processing request queue
	publisher, closeQueue, err := initPublisher(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer closeQueue()

	// Object store
	store, err := objectstore.New(ctx, storageConfig(&cfg.Storage), appLogger.Component("objectstore"))
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	// Live notification fan-out
	hub := fanout.NewHub(cfg.Events.SubscriberBuffer, appLogger.Component("fanout"), m)
	defer hub.Close()

	var broadcaster service.Broadcaster = hub
	var wg sync.WaitGroup
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, appLogger.Component("redis"))
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		relay := fanout.NewRedisRelay(redisClient.GetClient(), cfg.Redis.Channel, hub, appLogger.Component("relay"))
		broadcaster = relay

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				appLogger.Error("Relay stopped", slog.Any("error", err))
			}
		}()
	}

	// Services
	uploads, err := service.NewUploadIssuer(store, service.UploadConfig{
		KeyPrefix:   cfg.Upload.KeyPrefix,
		URLExpiry:   cfg.Upload.URLExpiry,
		ContentType: cfg.Upload.ContentType,
	}, appLogger.Component("uploads"), m)
	if err != nil {
		return err
	}

	intake, err := service.NewIntake(repo, publisher, store, service.IntakeConfig{
		Bucket:         cfg.Storage.Bucket,
		KeyPrefix:      cfg.Upload.KeyPrefix,
		PersistTimeout: cfg.Intake.PersistTimeout,
		PublishTimeout: cfg.Intake.PublishTimeout,
		VerifyObject:   cfg.Upload.VerifyObject,
	}, appLogger.Component("intake"), m)
	if err != nil {
		return err
	}

	redriver := service.NewRedriver(repo, intake, service.RedriveConfig{
		Interval: cfg.Intake.RedriveInterval,
		After:    cfg.Intake.RedriveAfter,
		Batch:    cfg.Intake.RedriveBatch,
	}, appLogger.Component("redrive"), m)

	wg.Add(1)
	go func() {
		defer wg.Done()
		redriver.Run(ctx)
	}()

	deps := &handler.Dependencies{
		Logger:            appLogger.Component("http"),
		ServiceName:       cfg.App.Name,
		Uploads:           uploads,
		Intake:            intake,
		Gateway:           service.NewProgressGateway(repo, broadcaster, appLogger.Component("gateway"), m),
		Query:             service.NewVideoQuery(repo),
		Hub:               hub,
		Metrics:           m,
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
	}
	if dbClient != nil {
		deps.Health = dbClient
	}

	// Initialize router
	r := initRouter(cfg, deps)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	// SSE handlers return once the hub closes
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}
	wg.Wait()

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initRepository returns the job store for the configured driver. The
// postgres client is returned too so main can close it and use it for health.
func initRepository(ctx context.Context, cfg *config.DatabaseConfig, appLogger *logger.Logger) (storage.Repository, *postgresql.Client, error) {
	if cfg.Driver == config.DatabaseDriverMemory {
		appLogger.Warn("Using in-memory job store; jobs are lost on restart")
		return storage.NewMemoryStorage(), nil, nil
	}

	dbClient, err := postgresql.NewClient(ctx, &postgresql.Config{
		URL:             cfg.URL,
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
		ConnectRetries:  cfg.ConnectRetries,
		ConnectBackoff:  cfg.ConnectBackoff,
	}, appLogger.Component("postgres"))
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := dbClient.Migrate(ctx); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
	}

	return storage.NewStorage(dbClient.GetDB(), appLogger.Component("storage")), dbClient, nil
}

// initPublisher connects the configured queue driver
func initPublisher(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (service.Publisher, func(), error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverSQS:
		client, err := sqs.NewClient(ctx, sqsConfig(cfg), appLogger.Component("sqs"))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	default:
		client, err := rabbitmq.NewClient(rabbitConfig(&cfg.RabbitMQ), appLogger.Component("rabbitmq"))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}
}

func rabbitConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
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
		PublisherConfirms:  cfg.PublisherConfirms,
	}
}

func sqsConfig(cfg *config.Config) *sqs.Config {
	return &sqs.Config{
		QueueURL:           cfg.SQS.QueueURL,
		Region:             cfg.SQS.Region,
		Endpoint:           cfg.SQS.Endpoint,
		AccessKeyID:        cfg.Storage.AccessKeyID,
		SecretAccessKey:    cfg.Storage.SecretAccessKey,
		WaitTime:           cfg.SQS.WaitTime,
		VisibilityTimeout:  cfg.SQS.VisibilityTimeout,
		MaxMessages:        cfg.SQS.MaxMessages,
		PublishRetries:     cfg.SQS.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.SQS.Publish.RetryInterval,
		PublishBackoffMult: cfg.SQS.Publish.BackoffMultiplier,
	}
}

func storageConfig(cfg *config.StorageConfig) *objectstore.Config {
	return &objectstore.Config{
		Provider:        cfg.Provider,
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UseSSL:          cfg.UseSSL,
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		AllowedOrigins:  cfg.Security.AllowedOrigins,
		InternalAPIKey:  cfg.Security.InternalAPIKey,
		UploadRateLimit: cfg.Security.UploadRateLimit,
		UploadRateBurst: cfg.Security.UploadRateBurst,
	})
}
