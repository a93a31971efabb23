package bus

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	connectMaxRetries  = 10
	connectInitialWait = 2 * time.Second
	connectMaxWait     = 30 * time.Second
)

// Connect creates the configured bus backend. RabbitMQ connections are
// retried with exponential backoff to ride out broker startup delays.
func Connect(backend, amqpURL string, logger *zap.Logger) (EventBus, error) {
	switch backend {
	case "memory":
		return NewMemoryBus(), nil
	case "rabbitmq":
	default:
		return nil, fmt.Errorf("unknown bus backend %q", backend)
	}

	var lastErr error
	for attempt := 0; attempt < connectMaxRetries; attempt++ {
		b, err := NewRabbitMQBus(amqpURL)
		if err == nil {
			return b, nil
		}
		lastErr = err

		wait := connectInitialWait * time.Duration(1<<uint(attempt))
		if wait > connectMaxWait {
			wait = connectMaxWait
		}
		logger.Warn("rabbitmq_connect_failed_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", connectMaxRetries),
			zap.Duration("retry_delay", wait),
			zap.Error(err),
		)
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", connectMaxRetries, lastErr)
}
