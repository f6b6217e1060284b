package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cuongbtq/video-pipeline/shared/awsutil"
	"github.com/cuongbtq/video-pipeline/shared/backoff"
)

// API is the subset of the SQS client used here
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Config holds SQS queue configuration
type Config struct {
	QueueURL           string
	Region             string
	Endpoint           string
	AccessKeyID        string
	SecretAccessKey    string
	WaitTime           time.Duration
	VisibilityTimeout  time.Duration
	MaxMessages        int32
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Message is a received SQS message
type Message struct {
	Body          []byte
	ReceiptHandle string
	ReceiveCount  string
}

// Client publishes and receives processing requests on one SQS queue
type Client struct {
	api    API
	config *Config
	logger *slog.Logger
}

// NewClient creates a new SQS client from the default AWS credential chain
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsutil.Load(ctx, awsutil.Options{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	api := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})

	logger.Info("SQS client initialized",
		slog.String("queue_url", config.QueueURL),
		slog.String("region", awsCfg.Region),
	)

	return NewClientWithAPI(api, config, logger), nil
}

// NewClientWithAPI wraps an existing SQS API implementation
func NewClientWithAPI(api API, config *Config, logger *slog.Logger) *Client {
	return &Client{api: api, config: config, logger: logger}
}

// PublishWithRetry sends body to the queue, retrying with exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	policy := backoff.Policy{
		Retries:    c.config.PublishRetries,
		BaseDelay:  c.config.PublishRetryDelay,
		Multiplier: c.config.PublishBackoffMult,
	}.WithDefaults()

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.config.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"ContentType": {DataType: aws.String("String"), StringValue: aws.String(contentType)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		out, err := c.api.SendMessage(ctx, input)
		if err == nil {
			c.logger.Debug("Message published to SQS",
				slog.String("message_id", aws.ToString(out.MessageId)),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}
		lastErr = err

		if attempt < policy.Retries {
			delay := policy.Delay(attempt)
			c.logger.Warn("Failed to publish message to SQS, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			if err := backoff.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("publish canceled after %d attempts: %w", attempt+1, err)
			}
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", policy.Retries+1, lastErr)
}

// Receive long-polls for up to MaxMessages messages
func (c *Client) Receive(ctx context.Context) ([]Message, error) {
	maxMessages := c.config.MaxMessages
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}
	wait := c.config.WaitTime
	if wait <= 0 || wait > 20*time.Second {
		wait = 20 * time.Second
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(c.config.QueueURL),
		MaxNumberOfMessages:         maxMessages,
		WaitTimeSeconds:             int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if c.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(c.config.VisibilityTimeout / time.Second)
	}

	out, err := c.api.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceiveCount:  m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)],
		})
	}
	return messages, nil
}

// Delete removes a handled message from the queue
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

// Release makes a message visible again immediately so another consumer
// can retry it
func (c *Client) Release(ctx context.Context, receiptHandle string) error {
	_, err := c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("sqs change visibility: %w", err)
	}
	return nil
}
