package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/cuongbtq/video-pipeline/shared/backoff"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	pingTimeout   = 5 * time.Second
	healthTimeout = 2 * time.Second
)

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string // postgres:// URL; overrides the discrete fields
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectRetries and ConnectBackoff bound the wait for a database that
	// is still starting; zero retries means a single attempt
	ConnectRetries int
	ConnectBackoff time.Duration
}

// Client owns the job store's connection pool
type Client struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

// NewClient opens the pool and waits until the server answers a ping
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to PostgreSQL", slog.String("target", config.Target()))

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL pool: %w", err)
	}

	client := newClient(db, config, logger)
	if err := client.waitReady(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Int("max_idle_conns", config.MaxIdleConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)
	return client, nil
}

func newClient(db *sqlx.DB, config *Config, logger *slog.Logger) *Client {
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return &Client{db: db, config: config, logger: logger}
}

// waitReady pings until the server answers or the retries run out
func (c *Client) waitReady(ctx context.Context) error {
	policy := backoff.Policy{
		BaseDelay:  c.config.ConnectBackoff,
		Multiplier: 2,
		Cap:        30 * time.Second,
	}.WithDefaults()
	retries := max(c.config.ConnectRetries, 0)

	var err error
	for attempt := 0; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = c.db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= retries || ctx.Err() != nil {
			break
		}

		delay := policy.Delay(attempt)
		c.logger.Warn("PostgreSQL not ready, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if backoff.Sleep(ctx, delay) != nil {
			break
		}
	}

	c.logger.Error("Failed to connect to PostgreSQL", slog.String("error", err.Error()))
	return fmt.Errorf("failed to connect to PostgreSQL at %s: %w", c.config.Target(), err)
}

// DSN returns the connection string passed to lib/pq
func (c *Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode,
	)
}

// Target describes the server for logs without credentials
func (c *Config) Target() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return "<unparseable url>"
		}
		return u.Redacted()
	}
	return c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.Database
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close PostgreSQL pool", slog.String("error", err.Error()))
		return err
	}
	c.logger.Info("PostgreSQL pool closed")
	return nil
}

// PoolStats is the pool's counters as a log attribute
func (c *Client) PoolStats() slog.Attr {
	stats := c.db.Stats()
	return slog.Group("pool",
		slog.Int("max_open", stats.MaxOpenConnections),
		slog.Int("open", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
		slog.Int("idle", stats.Idle),
		slog.Int64("wait_count", stats.WaitCount),
		slog.Duration("wait_duration", stats.WaitDuration),
	)
}

// HealthCheck runs a trivial query; GET /health reports the result
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
