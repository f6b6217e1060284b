package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/cuongbtq/video-pipeline/shared/sqs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAMQP struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	prefetch   int
	acked      []uint64
	nacked     map[uint64]bool
}

func newFakeAMQP() *fakeAMQP {
	return &fakeAMQP{deliveries: make(chan amqp.Delivery, 8), nacked: make(map[uint64]bool)}
}

func (f *fakeAMQP) Qos(prefetch int) error {
	f.prefetch = prefetch
	return nil
}

func (f *fakeAMQP) Consume(string) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeAMQP) Ack(tag uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAMQP) Nack(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked[tag] = requeue
	return nil
}

func (f *fakeAMQP) ackedTags() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.acked...)
}

func TestRabbitSource(t *testing.T) {
	client := newFakeAMQP()
	source := NewRabbitSource(client, "worker-test", 4, logger.NewDiscard())
	jobs := make(chan *domain.JobMessage)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(ctx, jobs) }()

	client.deliveries <- amqp.Delivery{DeliveryTag: 1, Body: []byte(`{broken`)}
	client.deliveries <- amqp.Delivery{DeliveryTag: 2, Body: []byte(`{"jobId":5,"objectKey":"videos/x_a.mp4"}`)}

	var msg *domain.JobMessage
	select {
	case msg = <-jobs:
	case <-time.After(time.Second):
		t.Fatal("no job dispatched")
	}

	assert.Equal(t, int64(5), msg.JobID)
	assert.Equal(t, "videos/x_a.mp4", msg.ObjectKey)
	assert.Equal(t, 4, client.prefetch)
	assert.Equal(t, []uint64{1}, client.ackedTags(), "malformed message is acked and dropped")

	require.NoError(t, msg.Nack(context.Background(), true))
	require.NoError(t, msg.Ack(context.Background()))
	assert.Equal(t, map[uint64]bool{2: true}, client.nacked)
	assert.Equal(t, []uint64{1, 2}, client.ackedTags())

	// a delivery that cannot be handed over before shutdown is requeued
	client.deliveries <- amqp.Delivery{DeliveryTag: 3, Body: []byte(`{"jobId":6,"objectKey":"videos/y_b.mp4"}`)}
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.nacked[3])
}

func TestRabbitSource_ClosedChannel(t *testing.T) {
	client := newFakeAMQP()
	close(client.deliveries)

	err := NewRabbitSource(client, "worker-test", 1, logger.NewDiscard()).Run(context.Background(), make(chan *domain.JobMessage))
	require.Error(t, err)
}

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]sqs.Message
	failOnce bool
	deleted  []string
	released []string
}

func (f *fakeSQS) Receive(ctx context.Context) ([]sqs.Message, error) {
	f.mu.Lock()
	if f.failOnce {
		f.failOnce = false
		f.mu.Unlock()
		return nil, errors.New("throttled")
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) Delete(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeSQS) Release(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, handle)
	return nil
}

func TestSQSSource(t *testing.T) {
	client := &fakeSQS{
		failOnce: true,
		batches: [][]sqs.Message{{
			{Body: []byte(`not json`), ReceiptHandle: "h-bad"},
			{Body: []byte(`{"jobId":1,"objectKey":"videos/a_1.mp4"}`), ReceiptHandle: "h-1", ReceiveCount: "1"},
			{Body: []byte(`{"jobId":2,"objectKey":"videos/b_2.mp4"}`), ReceiptHandle: "h-2", ReceiveCount: "3"},
		}},
	}
	source := NewSQSSource(client, logger.NewDiscard())
	source.backoff.BaseDelay = time.Millisecond
	jobs := make(chan *domain.JobMessage)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(ctx, jobs) }()

	first := <-jobs
	second := <-jobs
	assert.Equal(t, int64(1), first.JobID)
	assert.Equal(t, int64(2), second.JobID)

	require.NoError(t, first.Ack(context.Background()))
	require.NoError(t, second.Nack(context.Background(), true))

	cancel()
	require.NoError(t, <-errCh)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"h-bad", "h-1"}, client.deleted)
	assert.Equal(t, []string{"h-2"}, client.released)
}

func TestSQSSource_ReleasesUndispatchedOnShutdown(t *testing.T) {
	client := &fakeSQS{batches: [][]sqs.Message{{
		{Body: []byte(`{"jobId":1,"objectKey":"videos/a_1.mp4"}`), ReceiptHandle: "h-1"},
		{Body: []byte(`{"jobId":2,"objectKey":"videos/b_2.mp4"}`), ReceiptHandle: "h-2"},
	}}}
	source := NewSQSSource(client, logger.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(ctx, make(chan *domain.JobMessage)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"h-1", "h-2"}, client.released)
}
