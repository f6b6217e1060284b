package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Driver and provider names accepted in the config file
const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverMemory   = "memory"

	QueueDriverRabbitMQ = "rabbitmq"
	QueueDriverSQS      = "sqs"

	StorageProviderS3    = "s3"
	StorageProviderMinIO = "minio"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	SQS      SQSConfig      `yaml:"sqs"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Security SecurityConfig `yaml:"security"`
	Upload   UploadConfig   `yaml:"upload"`
	Intake   IntakeConfig   `yaml:"intake"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
// URL takes precedence over the discrete host fields.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectRetries  int           `yaml:"connect_retries"`
	ConnectBackoff  time.Duration `yaml:"connect_backoff"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// QueueConfig selects the processing-request transport
type QueueConfig struct {
	Driver string `yaml:"driver"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      AMQPQueueConfig  `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`

	PublisherConfirms bool `yaml:"publisher_confirms"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// AMQPQueueConfig holds RabbitMQ queue configuration
type AMQPQueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds publish retry settings, shared by both queue drivers
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// SQSConfig holds Amazon SQS settings
type SQSConfig struct {
	QueueURL          string        `yaml:"queue_url"`
	Region            string        `yaml:"region"`
	Endpoint          string        `yaml:"endpoint"`
	WaitTime          time.Duration `yaml:"wait_time"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxMessages       int32         `yaml:"max_messages"`
	Publish           PublishConfig `yaml:"publish"`
}

// StorageConfig holds object store settings
type StorageConfig struct {
	Provider        string `yaml:"provider"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// RedisConfig holds the optional cross-instance fan-out relay settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// SecurityConfig holds CORS and internal endpoint settings
type SecurityConfig struct {
	InternalAPIKey  string   `yaml:"internal_api_key"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	UploadRateLimit float64  `yaml:"upload_rate_limit"` // requests per second per client IP
	UploadRateBurst int      `yaml:"upload_rate_burst"`
}

// UploadConfig holds presigned upload settings
type UploadConfig struct {
	KeyPrefix    string        `yaml:"key_prefix"`
	URLExpiry    time.Duration `yaml:"url_expiry"`
	ContentType  string        `yaml:"content_type"`
	VerifyObject bool          `yaml:"verify_object"`
}

// IntakeConfig holds job intake settings
type IntakeConfig struct {
	PersistTimeout  time.Duration `yaml:"persist_timeout"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
	RedriveInterval time.Duration `yaml:"redrive_interval"`
	RedriveAfter    time.Duration `yaml:"redrive_after"`
	RedriveBatch    int           `yaml:"redrive_batch"`
}

// EventsConfig holds live notification settings
type EventsConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	APIBaseURL      string        `yaml:"api_base_url"`
	ReportRetries   int           `yaml:"report_retries"`
	ReportTimeout   time.Duration `yaml:"report_timeout"`
	FFmpegPath      string        `yaml:"ffmpeg_path"`
	ThumbnailOffset string        `yaml:"thumbnail_offset"`
	ThumbnailWidth  int           `yaml:"thumbnail_width"`
	TempDir         string        `yaml:"temp_dir"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DatabaseDriverPostgres
	}
	if c.Database.ConnectRetries <= 0 {
		c.Database.ConnectRetries = 5
	}
	if c.Database.ConnectBackoff <= 0 {
		c.Database.ConnectBackoff = time.Second
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueDriverRabbitMQ
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = StorageProviderS3
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.SQS.Region == "" {
		c.SQS.Region = c.Storage.Region
	}
	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Upload.KeyPrefix == "" {
		c.Upload.KeyPrefix = "videos/"
	}
	if c.Upload.URLExpiry <= 0 {
		c.Upload.URLExpiry = 15 * time.Minute
	}
	if c.Upload.ContentType == "" {
		c.Upload.ContentType = "application/octet-stream"
	}
	if c.Intake.PersistTimeout <= 0 {
		c.Intake.PersistTimeout = 5 * time.Second
	}
	if c.Intake.PublishTimeout <= 0 {
		c.Intake.PublishTimeout = 5 * time.Second
	}
	if c.Events.HeartbeatInterval <= 0 {
		c.Events.HeartbeatInterval = 25 * time.Second
	}
	if c.Events.SubscriberBuffer <= 0 {
		c.Events.SubscriberBuffer = 16
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "video-progress"
	}
}

// ApplyEnv overrides file values with the deployment environment.
// lookup is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("DATABASE_URL", &c.Database.URL)
	set("S3_BUCKET", &c.Storage.Bucket)
	set("AWS_REGION", &c.Storage.Region)
	set("AWS_REGION", &c.SQS.Region)
	set("AWS_ENDPOINT_URL", &c.Storage.Endpoint)
	set("AWS_ENDPOINT_URL", &c.SQS.Endpoint)
	set("SQS_QUEUE_URL", &c.SQS.QueueURL)
	set("INTERNAL_API_KEY", &c.Security.InternalAPIKey)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("API_BASE_URL", &c.Worker.APIBaseURL)

	if v, ok := lookup("CLIENT_URL"); ok && strings.TrimSpace(v) != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Security.AllowedOrigins = origins
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Security.InternalAPIKey == "" {
		return fmt.Errorf("internal api key is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.APIBaseURL == "" {
		return fmt.Errorf("worker api_base_url is required")
	}

	if c.Security.InternalAPIKey == "" {
		return fmt.Errorf("internal api key is required")
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	return c.validateStorage()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DatabaseDriverMemory:
		return nil
	case DatabaseDriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.URL != "" {
		return nil
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Driver {
	case QueueDriverRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	case QueueDriverSQS:
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("sqs queue url is required")
		}
	default:
		return fmt.Errorf("unsupported queue driver: %q", c.Queue.Driver)
	}
	return nil
}

// validateStorage reports a missing bucket as a configuration error at boot
func (c *Config) validateStorage() error {
	switch c.Storage.Provider {
	case StorageProviderS3:
	case StorageProviderMinIO:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage endpoint is required for minio")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %q", c.Storage.Provider)
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	return nil
}
