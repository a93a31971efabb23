// Package notify routes reminder.due events to notification channels.
// Delivery is fire-and-forget per channel; one channel failing never blocks
// the others.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/models"
)

// Channel delivers a reminder over one transport
type Channel interface {
	Name() string
	Deliver(ctx context.Context, reminder *models.ReminderEventData) error
}

// Dispatcher fans a reminder out to the channels its payload names
type Dispatcher struct {
	channels map[string]Channel
	logger   *zap.Logger
}

// NewDispatcher wires the dispatcher. With no channels given it registers
// the built-in in_app, email, and push stubs.
func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	if len(channels) == 0 {
		channels = []Channel{
			NewInAppChannel(logger),
			NewEmailChannel(logger),
			NewPushChannel(logger),
		}
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{channels: byName, logger: logger}
}

// HandleReminderEvent delivers one reminder to every channel listed in its
// payload. Unknown channels and per-channel failures are logged and
// skipped.
func (d *Dispatcher) HandleReminderEvent(ctx context.Context, ev *models.CloudEvent) error {
	reminder, err := models.DecodeReminderEvent(ev)
	if err != nil {
		d.logger.Warn("reminder_event_decode_failed",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	for _, name := range reminder.NotificationChannels {
		ch, ok := d.channels[name]
		if !ok {
			d.logger.Warn("unknown_notification_channel",
				zap.String("channel", name),
				zap.String("task_id", reminder.TaskID.String()),
			)
			continue
		}
		if err := ch.Deliver(ctx, reminder); err != nil {
			d.logger.Error("notification_delivery_failed",
				zap.String("channel", name),
				zap.String("task_id", reminder.TaskID.String()),
				zap.String("user_id", reminder.UserID),
				zap.Error(err),
			)
		}
	}
	return nil
}
