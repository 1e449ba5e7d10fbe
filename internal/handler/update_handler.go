package handler

import (
	"context"
	"strings"
	"time"

	"sms-number-bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// handleTimeout bounds one event, including queued time spent after shutdown
// has begun.
const handleTimeout = 30 * time.Second

// EventService defines the interface for the conversation engine
type EventService interface {
	Handle(ctx context.Context, ev service.Event) error
}

// Dispatcher runs jobs one at a time per key.
type Dispatcher interface {
	Submit(key int64, job func()) error
}

type updateHandler struct {
	service    EventService
	dispatcher Dispatcher
}

func NewUpdateHandler(svc EventService, d Dispatcher) *updateHandler {
	return &updateHandler{service: svc, dispatcher: d}
}

// HandleUpdate queues the update behind earlier updates from the same user.
// Updates that carry nothing the bot reacts to are dropped.
func (h *updateHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ev, ok := EventFromUpdate(update)
	if !ok {
		return nil
	}
	base := context.WithoutCancel(ctx)
	return h.dispatcher.Submit(ev.UserID, func() {
		ctx, cancel := context.WithTimeout(base, handleTimeout)
		defer cancel()
		if err := h.service.Handle(ctx, ev); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"update_id": ev.UpdateID,
				"user_id":   ev.UserID,
			}).Error("Failed to handle update")
		}
	})
}

// EventFromUpdate converts private chat messages and button presses.
func EventFromUpdate(update tgbotapi.Update) (service.Event, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		q := update.CallbackQuery
		ev := service.Event{
			UpdateID:     update.UpdateID,
			UserID:       q.From.ID,
			ChatID:       q.From.ID,
			FullName:     fullName(q.From),
			Locale:       q.From.LanguageCode,
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if q.Message != nil {
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
			ev.MessageID = q.Message.MessageID
		}
		return ev, true

	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if msg.Chat == nil || !msg.Chat.IsPrivate() || msg.Text == "" {
			return service.Event{}, false
		}
		return service.Event{
			UpdateID:  update.UpdateID,
			UserID:    msg.From.ID,
			ChatID:    msg.Chat.ID,
			FullName:  fullName(msg.From),
			Locale:    msg.From.LanguageCode,
			Text:      msg.Text,
			Command:   msg.Command(),
			MessageID: msg.MessageID,
		}, true
	}
	return service.Event{}, false
}

func fullName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}
