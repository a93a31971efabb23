package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/taskloop/taskloop/internal/models"
)

// RabbitMQBus implements EventBus on RabbitMQ. Each topic is a durable
// fanout exchange; each subscriber group binds its own durable queue
// ({topic}.{group}), which gives every group at-least-once delivery of
// every event on the topic.
type RabbitMQBus struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQBus connects to RabbitMQ and opens a publishing channel
func NewRabbitMQBus(amqpURL string) (*RabbitMQBus, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQBus{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

// ensureTopic declares the fanout exchange backing a topic. Declarations
// are idempotent on the broker; the map only saves round trips.
func (b *RabbitMQBus) ensureTopic(ch *amqp.Channel, topic string) error {
	b.mu.Lock()
	already := b.declared[topic]
	b.mu.Unlock()
	if already {
		return nil
	}

	err := ch.ExchangeDeclare(
		topic,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", topic, err)
	}

	b.mu.Lock()
	b.declared[topic] = true
	b.mu.Unlock()
	return nil
}

// Publish sends one envelope to a topic. Delivery to subscribers is
// at-least-once; a returned error means the broker did not take the message.
func (b *RabbitMQBus) Publish(ctx context.Context, topic string, ev *models.CloudEvent) error {
	if err := b.ensureTopic(b.channel, topic); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = b.channel.PublishWithContext(
		ctx,
		topic,
		"", // routing key ignored by fanout
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/cloudevents+json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID.String(),
			Timestamp:    ev.Time,
			Type:         string(ev.Type),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %q: %w", topic, err)
	}
	return nil
}

type amqpAcker struct {
	delivery amqp.Delivery
}

func (a amqpAcker) Ack() error {
	return a.delivery.Ack(false)
}

func (a amqpAcker) Nack(requeue bool) error {
	return a.delivery.Nack(false, requeue)
}

// Consume binds a durable group queue to the topic exchange and delivers
// events as they arrive. The caller must ack or nack each delivery. The
// returned channels close when the context is cancelled or the connection
// drops.
func (b *RabbitMQBus) Consume(ctx context.Context, topic, group string, prefetch int) (<-chan *Delivery, <-chan error, error) {
	// Dedicated channel per consumer, separate from the publishing channel.
	consumeCh, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := b.ensureTopic(consumeCh, topic); err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, err
	}

	queueName := fmt.Sprintf("%s.%s", topic, group)
	if _, err := consumeCh.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to declare queue %q: %w", queueName, err)
	}

	if err := consumeCh.QueueBind(queueName, "", topic, false, nil); err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to bind queue %q: %w", queueName, err)
	}

	// Prefetch controls how many unacknowledged deliveries this consumer
	// holds; 1 gives fair dispatch across worker instances.
	if err := consumeCh.Qos(prefetch, 0, false); err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		queueName,
		"",    // consumer tag (auto-generate)
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		if closeErr := consumeCh.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, nil, fmt.Errorf("failed to start consuming %q: %w", queueName, err)
	}

	msgChan := make(chan *Delivery, prefetch)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			if err := consumeCh.Close(); err != nil {
				_ = err
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed for %q", queueName)
					return
				}

				var ev models.CloudEvent
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					// Poison message; drop rather than redeliver forever.
					_ = delivery.Nack(false, false)
					errChan <- fmt.Errorf("failed to unmarshal event: %w", err)
					continue
				}

				msg := &Delivery{Event: &ev, Acker: amqpAcker{delivery: delivery}}

				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// Close closes the publishing channel and the connection
func (b *RabbitMQBus) Close() error {
	var err error
	if b.channel != nil {
		err = b.channel.Close()
	}
	if b.conn != nil {
		if closeErr := b.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// HealthCheck verifies the connection is still open
func (b *RabbitMQBus) HealthCheck(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}
