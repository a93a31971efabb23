// Package bus provides publish/consume access to the event bus. Topics are
// named channels with at-least-once delivery to each subscriber group;
// ordering across partitions is not guaranteed.
package bus

import (
	"context"

	"github.com/taskloop/taskloop/internal/models"
	"go.uber.org/zap"
)

// Publisher publishes CloudEvents envelopes to a named topic
type Publisher interface {
	Publish(ctx context.Context, topic string, ev *models.CloudEvent) error
}

// Handler processes one delivered event. Returning an error signals the bus
// to redeliver, so handlers must tolerate re-invocation with the same event.
type Handler func(ctx context.Context, ev *models.CloudEvent) error

// Acker acknowledges or rejects a delivery
type Acker interface {
	Ack() error
	Nack(requeue bool) error
}

// Delivery is one consumed event awaiting acknowledgement
type Delivery struct {
	Event *models.CloudEvent
	Acker
}

// Consumer delivers events from a topic to a named subscriber group.
// Each group receives every event at least once.
type Consumer interface {
	Consume(ctx context.Context, topic, group string, prefetch int) (<-chan *Delivery, <-chan error, error)
}

// EventBus combines publishing and consuming plus connection lifecycle
type EventBus interface {
	Publisher
	Consumer
	Close() error
	HealthCheck(ctx context.Context) error
}

// Run consumes a topic and feeds each delivery to the handler until the
// context is cancelled. A handler error nacks with requeue (the "retry me"
// signal); success acks. Blocks until the delivery channel closes.
func Run(ctx context.Context, c Consumer, topic, group string, prefetch int, h Handler, logger *zap.Logger) error {
	deliveries, errs, err := c.Consume(ctx, topic, group, prefetch)
	if err != nil {
		return err
	}

	go func() {
		for busErr := range errs {
			logger.Error("bus_consumer_error",
				zap.String("topic", topic),
				zap.String("group", group),
				zap.Error(busErr),
			)
		}
	}()

	for d := range deliveries {
		if err := h(ctx, d.Event); err != nil {
			logger.Error("event_handler_failed",
				zap.String("topic", topic),
				zap.String("group", group),
				zap.String("event_id", d.Event.ID.String()),
				zap.String("event_type", string(d.Event.Type)),
				zap.Error(err),
			)
			if nackErr := d.Nack(true); nackErr != nil {
				logger.Warn("failed_to_nack_delivery", zap.Error(nackErr))
			}
			continue
		}
		if ackErr := d.Ack(); ackErr != nil {
			logger.Warn("failed_to_ack_delivery", zap.Error(ackErr))
		}
	}
	return nil
}
