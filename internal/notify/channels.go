package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

// Channel names accepted in reminder payloads
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// logChannel is the delivery stub backing the built-in channels: it logs
// the notification instead of calling a provider. Real transports slot in
// behind the same Channel interface.
type logChannel struct {
	name   string
	logger *zap.Logger
}

func (c *logChannel) Name() string {
	return c.name
}

func (c *logChannel) Deliver(ctx context.Context, reminder *models.ReminderEventData) error {
	c.logger.Info("notification_delivered",
		zap.String("channel", c.name),
		zap.String("user_id", reminder.UserID),
		zap.String("task_id", reminder.TaskID.String()),
		zap.String("title", reminder.Title),
		zap.Time("remind_at", reminder.RemindAt),
	)
	return nil
}

// NewInAppChannel returns the in-app notification stub
func NewInAppChannel(logger *zap.Logger) Channel {
	return &logChannel{name: ChannelInApp, logger: logger}
}

// NewEmailChannel returns the email notification stub
func NewEmailChannel(logger *zap.Logger) Channel {
	return &logChannel{name: ChannelEmail, logger: logger}
}

// NewPushChannel returns the push notification stub
func NewPushChannel(logger *zap.Logger) Channel {
	return &logChannel{name: ChannelPush, logger: logger}
}
