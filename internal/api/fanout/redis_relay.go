package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/shared/backoff"
	goredis "github.com/redis/go-redis/v9"
)

// RedisRelay spreads events across API instances. Broadcast publishes to a
// Redis channel and Run feeds every message received on it into the local hub,
// so an update accepted by one instance reaches observers on all of them.
// Until Run holds a subscription, Broadcast also delivers to the local hub.
type RedisRelay struct {
	rdb        goredis.UniversalClient
	channel    string
	hub        *Hub
	logger     *slog.Logger
	retry      backoff.Policy
	subscribed atomic.Bool
}

// NewRedisRelay creates a relay; call Run to start receiving
func NewRedisRelay(rdb goredis.UniversalClient, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger,
		retry: backoff.Policy{
			BaseDelay:  250 * time.Millisecond,
			Multiplier: 2,
			Cap:        30 * time.Second,
			Jitter:     true,
		},
	}
}

// Subscribed reports whether Run currently holds the channel subscription
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Broadcast publishes ev on the shared channel. If Redis is unreachable, or
// this instance is not subscribed yet, the event is delivered locally too.
func (r *RedisRelay) Broadcast(ctx context.Context, ev domain.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		_ = r.hub.Broadcast(ctx, ev)
		return fmt.Errorf("failed to publish progress event to redis: %w", err)
	}

	if !r.subscribed.Load() {
		return r.hub.Broadcast(ctx, ev)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled, retrying the
// subscription with backoff while Redis is unavailable
func (r *RedisRelay) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		pubsub, err := r.subscribe(ctx)
		if err == nil {
			r.consume(ctx, pubsub)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := r.retry.Delay(min(attempt, 10))
		r.logger.Warn("Relay subscribe failed, retrying",
			slog.String("channel", r.channel),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if backoff.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	return pubsub, nil
}

func (r *RedisRelay) consume(ctx context.Context, pubsub *goredis.PubSub) {
	defer pubsub.Close()

	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("Relay subscribed", slog.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var ev domain.ProgressEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn("Dropping malformed relay message", slog.String("error", err.Error()))
		return
	}
	_ = r.hub.Broadcast(ctx, ev)
}
