package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskloop/taskloop/internal/models"
)

// MemoryBus is an in-process EventBus for tests and standalone deployments.
// Publish dispatches synchronously to every handler subscribed to the topic
// and records the envelope for inspection.
type MemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	published map[string][]*models.CloudEvent
	failNext  bool
}

// NewMemoryBus creates an empty in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers:  make(map[string][]Handler),
		published: make(map[string][]*models.CloudEvent),
	}
}

// SubscribeFunc registers a synchronous handler for a topic
func (b *MemoryBus) SubscribeFunc(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish records the envelope and invokes subscribed handlers in order.
// Handler errors are ignored, matching the fire-and-forget publish contract.
func (b *MemoryBus) Publish(ctx context.Context, topic string, ev *models.CloudEvent) error {
	b.mu.Lock()
	if b.failNext {
		b.failNext = false
		b.mu.Unlock()
		return fmt.Errorf("simulated publish failure on %q", topic)
	}
	b.published[topic] = append(b.published[topic], ev)
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		_ = h(ctx, ev)
	}
	return nil
}

// Consume is not supported on the in-process bus; subscribers attach with
// SubscribeFunc instead.
func (b *MemoryBus) Consume(ctx context.Context, topic, group string, prefetch int) (<-chan *Delivery, <-chan error, error) {
	return nil, nil, fmt.Errorf("memory bus does not support consume; use SubscribeFunc")
}

// Published returns the envelopes published to a topic, in order
func (b *MemoryBus) Published(topic string) []*models.CloudEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*models.CloudEvent(nil), b.published[topic]...)
}

// FailNextPublish makes the next Publish call return an error. Used by
// tests to exercise best-effort publish handling.
func (b *MemoryBus) FailNextPublish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = true
}

// Close is a no-op for the in-process bus
func (b *MemoryBus) Close() error {
	return nil
}

// HealthCheck always succeeds for the in-process bus
func (b *MemoryBus) HealthCheck(ctx context.Context) error {
	return nil
}
