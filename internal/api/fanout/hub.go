// Package fanout delivers progress events to every connected live observer.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
)

const defaultBuffer = 16

// Hub is an in-process registry of subscribers. Broadcast never blocks on a
// slow subscriber: if its buffer is full the event is dropped for it alone.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	next   uint64
	closed bool
	done   chan struct{}

	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Subscription is one observer's event stream. C is never closed; watch Done
// to learn that the subscription or the hub went away.
type Subscription struct {
	C <-chan domain.ProgressEvent

	id   uint64
	ch   chan domain.ProgressEvent
	done chan struct{}
	once sync.Once
	hub  *Hub
}

// NewHub creates a hub whose subscribers each buffer up to buffer events
func NewHub(buffer int, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		done:    make(chan struct{}),
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

// Subscribe registers a new observer. Callers must Close the subscription.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan domain.ProgressEvent, h.buffer)
	sub := &Subscription{
		C:    ch,
		ch:   ch,
		done: make(chan struct{}),
		hub:  h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	h.next++
	sub.id = h.next
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Debug("Subscriber added", slog.Uint64("subscriber_id", sub.id), slog.Int("subscribers", n))
	return sub
}

// Done is closed when the subscription is closed or the hub shuts down
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
	})
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	if _, ok := h.subs[id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Debug("Subscriber removed", slog.Uint64("subscriber_id", id), slog.Int("subscribers", n))
}

// Broadcast sends ev to every current subscriber
func (h *Hub) Broadcast(_ context.Context, ev domain.ProgressEvent) error {
	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range snapshot {
		select {
		case <-s.done:
		case s.ch <- ev:
		default:
			dropped++
			h.metrics.EventDropped()
		}
	}

	if dropped > 0 {
		h.logger.Warn("Slow subscribers dropped event",
			slog.Int64("job_id", ev.JobID),
			slog.Int("dropped", dropped),
			slog.Int("subscribers", len(snapshot)),
		)
	}
	return nil
}

// Count returns the number of registered subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later Subscribe calls return already-done
// subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
	h.metrics.SetSubscribers(0)
}

// Done is closed once the hub has been closed
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
