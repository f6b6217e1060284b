package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "videos_db", cfg.Database.Database)
			assert.Equal(t, QueueDriverRabbitMQ, cfg.Queue.Driver)
			assert.Equal(t, "videos_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "videos_queue", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "video-uploads", cfg.Storage.Bucket)
			assert.Equal(t, "eu-west-1", cfg.Storage.Region)
			assert.Equal(t, 3*time.Second, cfg.Intake.PublishTimeout)
			assert.Equal(t, "video-api-service", cfg.App.Name)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/missing_bucket.yaml")
	require.NoError(t, err)

	assert.Equal(t, StorageProviderS3, cfg.Storage.Provider)
	assert.Equal(t, 5, cfg.Database.ConnectRetries)
	assert.Equal(t, time.Second, cfg.Database.ConnectBackoff)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.Equal(t, "us-east-1", cfg.SQS.Region)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "videos/", cfg.Upload.KeyPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Upload.URLExpiry)
	assert.Equal(t, "application/octet-stream", cfg.Upload.ContentType)
	assert.Equal(t, 5*time.Second, cfg.Intake.PublishTimeout)
	assert.Equal(t, "video-progress", cfg.Redis.Channel)
}

func TestConfig_ApplyEnv(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	env := map[string]string{
		"DATABASE_URL":     "postgres://u:p@db:5432/videos?sslmode=disable",
		"S3_BUCKET":        "prod-videos",
		"AWS_REGION":       "ap-southeast-1",
		"AWS_ENDPOINT_URL": "http://localstack:4566",
		"SQS_QUEUE_URL":    "http://localstack:4566/000000000000/videos",
		"CLIENT_URL":       "https://app.example.com, https://admin.example.com",
		"INTERNAL_API_KEY": "  rotated  ",
		"REDIS_ADDR":       "",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, env["DATABASE_URL"], cfg.Database.URL)
	assert.Equal(t, "prod-videos", cfg.Storage.Bucket)
	assert.Equal(t, "ap-southeast-1", cfg.Storage.Region)
	assert.Equal(t, "ap-southeast-1", cfg.SQS.Region)
	assert.Equal(t, "http://localstack:4566", cfg.Storage.Endpoint)
	assert.Equal(t, "http://localstack:4566", cfg.SQS.Endpoint)
	assert.Equal(t, env["SQS_QUEUE_URL"], cfg.SQS.QueueURL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "rotated", cfg.Security.InternalAPIKey)
	assert.Empty(t, cfg.Redis.Addr, "blank values do not override")
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DatabaseDriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "videos_db",
		},
		Queue: QueueConfig{Driver: QueueDriverRabbitMQ},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "videos_exchange"},
			Queue:    AMQPQueueConfig{Name: "videos_queue"},
		},
		Storage:  StorageConfig{Provider: StorageProviderS3, Bucket: "video-uploads"},
		Security: SecurityConfig{InternalAPIKey: "secret"},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name: "database url replaces discrete fields",
			mutate: func(c *Config) {
				c.Database.Host = ""
				c.Database.URL = "postgres://localhost/videos"
			},
		},
		{
			name: "memory driver needs no connection settings",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DatabaseDriverMemory}
			},
		},
		{
			name:      "unknown database driver",
			mutate:    func(c *Config) { c.Database.Driver = "sqlite" },
			errString: "unsupported database driver",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "sqs without queue url",
			mutate:    func(c *Config) { c.Queue.Driver = QueueDriverSQS },
			errString: "sqs queue url is required",
		},
		{
			name:      "unknown queue driver",
			mutate:    func(c *Config) { c.Queue.Driver = "kafka" },
			errString: "unsupported queue driver",
		},
		{
			name:      "missing bucket",
			mutate:    func(c *Config) { c.Storage.Bucket = "" },
			errString: "storage bucket is required",
		},
		{
			name:      "minio without endpoint",
			mutate:    func(c *Config) { c.Storage.Provider = StorageProviderMinIO },
			errString: "storage endpoint is required for minio",
		},
		{
			name:      "missing internal api key",
			mutate:    func(c *Config) { c.Security.InternalAPIKey = "" },
			errString: "internal api key is required",
		},
		{
			name:      "redis enabled without addr",
			mutate:    func(c *Config) { c.Redis.Enabled = true },
			errString: "redis addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	valid := func() *Config {
		c := validAPIConfig()
		c.Worker = WorkerConfig{
			Concurrency:     2,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 30 * time.Second,
			APIBaseURL:      "http://localhost:8080",
		}
		return c
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name:      "missing api base url",
			mutate:    func(c *Config) { c.Worker.APIBaseURL = "" },
			errString: "worker api_base_url is required",
		},
		{
			name: "worker does not need a database",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{}
			},
		},
		{
			name:      "missing bucket",
			mutate:    func(c *Config) { c.Storage.Bucket = "" },
			errString: "storage bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing bucket", func(t *testing.T) {
		cfg, err := Load("testdata/missing_bucket.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage bucket is required")
	})
}
