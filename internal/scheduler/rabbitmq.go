package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

const (
	delayedExchangeName = "reminder-jobs-delayed"
	jobQueueName        = "reminder-jobs"
	jobRoutingKey       = "fire"
	markerPrefix        = "reminderjob:"

	// Markers outlive their fire time by a day so a slow broker cannot
	// deliver a job after its marker expired.
	markerSlack = 24 * time.Hour
)

// delayedJob is the message body carried through the delayed exchange
type delayedJob struct {
	JobID   uuid.UUID                `json:"job_id"`
	UserID  string                   `json:"user_id"`
	TaskID  uuid.UUID                `json:"task_id"`
	FireAt  time.Time                `json:"fire_at"`
	Payload models.ReminderEventData `json:"payload"`
}

// DelayedScheduler implements Scheduler on RabbitMQ's delayed message
// exchange (requires the rabbitmq_delayed_message_exchange plugin).
// Delayed messages cannot be revoked once published, so each job carries a
// unique id that is checked against a Redis live-job marker at fire time;
// Cancel and replacement just invalidate the marker and the stale message
// is dropped when it arrives.
type DelayedScheduler struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	markers *redis.Client
	logger  *zap.Logger
}

// NewDelayedScheduler connects to RabbitMQ, declares the delayed exchange
// and job queue, and wires the Redis client used for live-job markers.
func NewDelayedScheduler(amqpURL string, markers *redis.Client, logger *zap.Logger) (*DelayedScheduler, error) {
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

	s := &DelayedScheduler{
		conn:    conn,
		channel: ch,
		markers: markers,
		logger:  logger,
	}
	if err := s.setup(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to setup reminder queue: %w", err)
	}
	return s, nil
}

// setup declares the delayed exchange and the durable job queue
func (s *DelayedScheduler) setup() error {
	delayedArgs := amqp.Table{
		"x-delayed-type": "direct",
	}
	err := s.channel.ExchangeDeclare(
		delayedExchangeName,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		delayedArgs,
	)
	if err != nil {
		return fmt.Errorf("failed to declare delayed exchange (is the delayed message plugin enabled?): %w", err)
	}

	if _, err := s.channel.QueueDeclare(
		jobQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", jobQueueName, err)
	}

	if err := s.channel.QueueBind(jobQueueName, jobRoutingKey, delayedExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", jobQueueName, err)
	}
	return nil
}

func markerKey(key JobKey) string {
	return markerPrefix + key.String()
}

// Schedule publishes a delayed job and records its id as the live marker
// for the key. A previously scheduled job for the same key is superseded:
// its marker no longer matches, so it is dropped at fire time.
func (s *DelayedScheduler) Schedule(ctx context.Context, key JobKey, fireAt time.Time, payload models.ReminderEventData) error {
	job := delayedJob{
		JobID:   uuid.New(),
		UserID:  key.UserID,
		TaskID:  key.TaskID,
		FireAt:  fireAt,
		Payload: payload,
	}

	ttl := time.Until(fireAt) + markerSlack
	if err := s.markers.Set(ctx, markerKey(key), job.JobID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to record job marker for %q: %w", key, err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.JobID.String(),
		Timestamp:    time.Now().UTC(),
	}
	// A message without x-delay routes immediately, which is what we want
	// for fire times already in the past.
	if delay := time.Until(fireAt); delay > 0 {
		publishing.Headers = amqp.Table{
			"x-delay": int(delay.Milliseconds()),
		}
	}

	if err := s.channel.PublishWithContext(
		ctx,
		delayedExchangeName,
		jobRoutingKey,
		false,
		false,
		publishing,
	); err != nil {
		return fmt.Errorf("failed to publish delayed job: %w", err)
	}

	s.logger.Info("reminder_job_scheduled",
		zap.String("job_key", key.String()),
		zap.String("job_id", job.JobID.String()),
		zap.Time("fire_at", fireAt),
	)
	return nil
}

// Cancel invalidates the live marker for the key. The in-flight broker
// message, if any, is dropped when it arrives. Cancelling a key with no
// live job is a no-op.
func (s *DelayedScheduler) Cancel(ctx context.Context, key JobKey) error {
	if err := s.markers.Del(ctx, markerKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to cancel job %q: %w", key, err)
	}
	return nil
}

// Run consumes fired jobs until the context is cancelled. Each delivery is
// checked against its live marker: stale jobs (cancelled or superseded) are
// acked and dropped. Fire errors are logged and the job is still acked;
// there is no retry at this layer.
func (s *DelayedScheduler) Run(ctx context.Context, prefetch int, fire FireFunc) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create consumer channel: %w", err)
	}
	defer func() {
		if closeErr := ch.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		jobQueueName,
		"",    // consumer tag (auto-generate)
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %q: %w", jobQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %q", jobQueueName)
			}
			s.handleDelivery(ctx, delivery, fire)
		}
	}
}

func (s *DelayedScheduler) handleDelivery(ctx context.Context, delivery amqp.Delivery, fire FireFunc) {
	var job delayedJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		s.logger.Error("reminder_job_unmarshal_failed", zap.Error(err))
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			_ = nackErr
		}
		return
	}

	key := JobKey{UserID: job.UserID, TaskID: job.TaskID}
	live, err := s.markers.Get(ctx, markerKey(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Cancelled before firing.
		s.logger.Info("reminder_job_dropped_cancelled",
			zap.String("job_key", key.String()),
			zap.String("job_id", job.JobID.String()),
		)
		s.ack(delivery)
		return
	case err != nil:
		// Marker store unavailable; requeue and retry later.
		s.logger.Error("reminder_job_marker_check_failed",
			zap.String("job_key", key.String()),
			zap.Error(err),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			s.logger.Warn("failed_to_nack_delivery", zap.Error(nackErr))
		}
		return
	case live != job.JobID.String():
		// Superseded by a rescheduled job.
		s.logger.Info("reminder_job_dropped_superseded",
			zap.String("job_key", key.String()),
			zap.String("job_id", job.JobID.String()),
		)
		s.ack(delivery)
		return
	}

	if err := s.markers.Del(ctx, markerKey(key)).Err(); err != nil {
		s.logger.Warn("failed_to_clear_job_marker",
			zap.String("job_key", key.String()),
			zap.Error(err),
		)
	}

	if err := fire(ctx, job.Payload); err != nil {
		s.logger.Error("reminder_fire_failed",
			zap.String("job_key", key.String()),
			zap.String("job_id", job.JobID.String()),
			zap.Error(err),
		)
	}
	s.ack(delivery)
}

func (s *DelayedScheduler) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		s.logger.Warn("failed_to_ack_delivery", zap.Error(err))
	}
}

// Close closes the publishing channel and the connection
func (s *DelayedScheduler) Close() error {
	var err error
	if s.channel != nil {
		err = s.channel.Close()
	}
	if s.conn != nil {
		if closeErr := s.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// HealthCheck verifies the connection is still open
func (s *DelayedScheduler) HealthCheck(ctx context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}
