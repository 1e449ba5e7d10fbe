package consumer

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// UpdateSource is the long polling side of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type UpdateConsumer struct {
	source  UpdateSource
	handler UpdateHandler
	timeout int
}

func NewUpdateConsumer(source UpdateSource, handler UpdateHandler) *UpdateConsumer {
	return &UpdateConsumer{source: source, handler: handler, timeout: 60}
}

// Start polls for updates until ctx is cancelled or the source closes its
// channel. Handler errors are logged and polling continues.
func (c *UpdateConsumer) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.timeout
	updates := c.source.GetUpdatesChan(u)
	log.WithField("timeout", c.timeout).Info("Polling for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			log.Info("Update consumer stopping due to context cancellation")
			c.source.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn("Update channel closed")
				return nil
			}
			if err := c.handler.HandleUpdate(ctx, update); err != nil {
				log.WithError(err).WithField("update_id", update.UpdateID).Error("Failed to handle update")
			}
		}
	}
}
