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

	"github.com/cuongbtq/video-pipeline/internal/config"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
	"github.com/cuongbtq/video-pipeline/internal/worker"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/cuongbtq/video-pipeline/shared/objectstore"
	"github.com/cuongbtq/video-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/video-pipeline/shared/sqs"
	"github.com/google/uuid"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	consumerTag := fmt.Sprintf("%s-%s", cfg.App.Name, uuid.NewString()[:8])

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("consumer_tag", consumerTag),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	source, closeQueue, err := initSource(ctx, cfg, consumerTag, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer closeQueue()

	store, err := objectstore.New(ctx, &objectstore.Config{
		Provider:        cfg.Storage.Provider,
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	}, appLogger.Component("objectstore"))
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	reporter := worker.NewHTTPReporter(worker.ReporterConfig{
		BaseURL: cfg.Worker.APIBaseURL,
		APIKey:  cfg.Security.InternalAPIKey,
		Retries: cfg.Worker.ReportRetries,
		Timeout: cfg.Worker.ReportTimeout,
	}, appLogger.Component("reporter"))

	thumbnailer := worker.NewFFmpeg(cfg.Worker.FFmpegPath, cfg.Worker.ThumbnailOffset, cfg.Worker.ThumbnailWidth)

	processor := worker.NewProcessor(reporter, store, thumbnailer, worker.ProcessorConfig{
		TempDir:    cfg.Worker.TempDir,
		JobTimeout: cfg.Worker.JobTimeout,
	}, appLogger.Component("processor"), m)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Component("worker"),
		Source:          source,
		Processor:       processor,
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})

	metricsSrv := startMetricsServer(cfg, m, appLogger)

	appLogger.Info("Worker service started successfully")

	// Start blocks until ctx is cancelled and in-flight jobs settle
	err = workerInstance.Start(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", serr))
		}
	}

	if err != nil {
		appLogger.Error("Worker error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker service shutdown complete")
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

// initSource connects the configured queue driver
func initSource(ctx context.Context, cfg *config.Config, consumerTag string, appLogger *logger.Logger) (worker.Source, func(), error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverSQS:
		client, err := sqs.NewClient(ctx, &sqs.Config{
			QueueURL:          cfg.SQS.QueueURL,
			Region:            cfg.SQS.Region,
			Endpoint:          cfg.SQS.Endpoint,
			AccessKeyID:       cfg.Storage.AccessKeyID,
			SecretAccessKey:   cfg.Storage.SecretAccessKey,
			WaitTime:          cfg.SQS.WaitTime,
			VisibilityTimeout: cfg.SQS.VisibilityTimeout,
			MaxMessages:       cfg.SQS.MaxMessages,
		}, appLogger.Component("sqs"))
		if err != nil {
			return nil, nil, err
		}
		return worker.NewSQSSource(client, appLogger.Component("consumer")), func() {}, nil
	default:
		rc := &cfg.RabbitMQ
		client, err := rabbitmq.NewClient(&rabbitmq.Config{
			Host:               rc.Host,
			Port:               rc.Port,
			User:               rc.User,
			Password:           rc.Password,
			VHost:              rc.VHost,
			ExchangeName:       rc.Exchange.Name,
			ExchangeType:       rc.Exchange.Type,
			ExchangeDurable:    rc.Exchange.Durable,
			ExchangeAutoDelete: rc.Exchange.AutoDelete,
			QueueName:          rc.Queue.Name,
			QueueDurable:       rc.Queue.Durable,
			QueueAutoDelete:    rc.Queue.AutoDelete,
			QueueExclusive:     rc.Queue.Exclusive,
			RoutingKey:         rc.RoutingKey,
			RetryAttempts:      rc.Connection.RetryAttempts,
			RetryInterval:      rc.Connection.RetryInterval,
			Heartbeat:          rc.Connection.Heartbeat,
			ConnectionTimeout:  rc.Connection.ConnectionTimeout,
		}, appLogger.Component("rabbitmq"))
		if err != nil {
			return nil, nil, err
		}
		source := worker.NewRabbitSource(client, consumerTag, rc.Consumer.PrefetchCount, appLogger.Component("consumer"))
		return source, func() { client.Close() }, nil
	}
}

// startMetricsServer exposes /metrics when server.port is set
func startMetricsServer(cfg *config.Config, m *metrics.Metrics, appLogger *logger.Logger) *http.Server {
	if cfg.Server.Port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Metrics server listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}
