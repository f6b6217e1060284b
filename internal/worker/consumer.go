package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/cuongbtq/video-pipeline/shared/backoff"
	"github.com/cuongbtq/video-pipeline/shared/sqs"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Source feeds processing requests into the pool until ctx is cancelled
type Source interface {
	Run(ctx context.Context, jobs chan<- *domain.JobMessage) error
}

// AMQPClient is the part of the RabbitMQ client the consumer needs
type AMQPClient interface {
	Qos(prefetch int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// RabbitSource consumes with manual acks and a bounded prefetch
type RabbitSource struct {
	client      AMQPClient
	consumerTag string
	prefetch    int
	logger      *slog.Logger
}

func NewRabbitSource(client AMQPClient, consumerTag string, prefetch int, logger *slog.Logger) *RabbitSource {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitSource{
		client:      client,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		logger:      logger,
	}
}

// Run sets QoS, starts consuming and dispatches deliveries
func (s *RabbitSource) Run(ctx context.Context, jobs chan<- *domain.JobMessage) error {
	// prefetch_count bounds unacknowledged deliveries for this consumer
	if err := s.client.Qos(s.prefetch); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	s.logger.Info("RabbitMQ QoS configured", slog.Int("prefetch_count", s.prefetch))

	deliveries, err := s.client.Consume(s.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Info("Message dispatcher started", slog.String("consumer_tag", s.consumerTag))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}

			tag := delivery.DeliveryTag
			msg, err := domain.ParseJobMessage(delivery.Body)
			if err != nil {
				s.logger.Error("Dropping malformed message",
					slog.String("error", err.Error()),
					slog.String("body", truncate(delivery.Body)),
				)
				// acked, a malformed message never becomes valid on redelivery
				if ackErr := s.client.Ack(tag); ackErr != nil {
					s.logger.Error("Failed to ACK malformed message", slog.String("error", ackErr.Error()))
				}
				continue
			}

			msg.Ack = func(context.Context) error { return s.client.Ack(tag) }
			msg.Nack = func(_ context.Context, requeue bool) error { return s.client.Nack(tag, requeue) }

			select {
			case jobs <- msg:
				s.logger.Debug("Job dispatched to worker pool",
					slog.Int64("job_id", msg.JobID),
					slog.Uint64("delivery_tag", tag),
					slog.Bool("redelivered", delivery.Redelivered),
				)
			case <-ctx.Done():
				s.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := s.client.Nack(tag, true); nackErr != nil {
					s.logger.Error("Failed to NACK message on shutdown", slog.String("error", nackErr.Error()))
				}
				return nil
			}
		}
	}
}

// SQSClient is the part of the SQS client the consumer needs
type SQSClient interface {
	Receive(ctx context.Context) ([]sqs.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
	Release(ctx context.Context, receiptHandle string) error
}

// SQSSource long-polls the queue. Ack deletes the message; a requeueing Nack
// makes it visible again at once.
type SQSSource struct {
	client  SQSClient
	logger  *slog.Logger
	backoff backoff.Policy
}

func NewSQSSource(client SQSClient, logger *slog.Logger) *SQSSource {
	return &SQSSource{
		client:  client,
		logger:  logger,
		backoff: backoff.Policy{BaseDelay: time.Second, Cap: 30 * time.Second}.WithDefaults(),
	}
}

func (s *SQSSource) Run(ctx context.Context, jobs chan<- *domain.JobMessage) error {
	s.logger.Info("Message dispatcher started", slog.String("queue", "sqs"))

	failures := 0
	for ctx.Err() == nil {
		messages, err := s.client.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := s.backoff.Delay(min(failures, 10))
			failures++
			s.logger.Warn("SQS receive failed, retrying...",
				slog.String("error", err.Error()),
				slog.Duration("retry_after", delay),
			)
			_ = backoff.Sleep(ctx, delay)
			continue
		}
		failures = 0

		for i, m := range messages {
			handle := m.ReceiptHandle
			msg, err := domain.ParseJobMessage(m.Body)
			if err != nil {
				s.logger.Error("Dropping malformed message",
					slog.String("error", err.Error()),
					slog.String("body", truncate(m.Body)),
				)
				if delErr := s.client.Delete(ctx, handle); delErr != nil {
					s.logger.Error("Failed to delete malformed message", slog.String("error", delErr.Error()))
				}
				continue
			}

			msg.Ack = func(ctx context.Context) error { return s.client.Delete(ctx, handle) }
			msg.Nack = func(ctx context.Context, requeue bool) error {
				if requeue {
					return s.client.Release(ctx, handle)
				}
				return s.client.Delete(ctx, handle)
			}

			select {
			case jobs <- msg:
				s.logger.Debug("Job dispatched to worker pool",
					slog.Int64("job_id", msg.JobID),
					slog.String("receive_count", m.ReceiveCount),
				)
			case <-ctx.Done():
				s.logger.Info("Message dispatcher stopped while dispatching job")
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				for _, rest := range messages[i:] {
					_ = s.client.Release(releaseCtx, rest.ReceiptHandle)
				}
				cancel()
				return nil
			}
		}
	}

	s.logger.Info("Message dispatcher stopped - context canceled")
	return nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
