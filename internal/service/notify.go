package service

import (
	"context"
	"time"

	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/metrics"
	"sms-number-bot/internal/sender"

	log "github.com/sirupsen/logrus"
)

// notify posts to a notification channel. Failures are logged and dropped;
// they never fail the operation the notification accompanies.
func (s *Service) notify(ctx context.Context, name string, chatID int64, text string) {
	if _, err := s.messenger.SendMessage(ctx, chatID, text, nil); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"channel": name,
			"chat_id": chatID,
		}).Warn("Failed to deliver notification")
		metrics.NotificationFailuresTotal.WithLabelValues(name).Inc()
	}
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"type":    event.Type,
			"user_id": event.UserID,
		}).Warn("Failed to publish event")
		metrics.NotificationFailuresTotal.WithLabelValues("events").Inc()
	}
}

// sendWelcomeEmail mails the user in the background so a slow SMTP server
// never holds up the user's queue.
func (s *Service) sendWelcomeEmail(to string) {
	msg, err := sender.WelcomeMessage(sender.Welcome{
		Brand:       brand,
		Email:       to,
		StartLabel:  labelRequestNumber,
		SupportUser: s.cfg.AdminUsername,
	})
	if err != nil {
		log.WithError(err).WithField("email", to).Error("Failed to build welcome email")
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Retry sending email up to 3 times with exponential backoff
		maxAttempts := 3
		delay := s.mailRetryDelay
		var err error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			err = s.mailer.SendEmail(ctx, msg)
			if err == nil {
				if attempt > 1 {
					log.WithFields(log.Fields{
						"attempt":      attempt,
						"max_attempts": maxAttempts,
						"email":        to,
					}).Info("Email sent successfully after retry")
				}
				return
			}
			if attempt < maxAttempts {
				log.WithFields(log.Fields{
					"attempt":      attempt,
					"max_attempts": maxAttempts,
					"error":        err,
					"email":        to,
				}).Warn("Failed to send email, retrying...")

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					err = ctx.Err()
					attempt = maxAttempts
				}
				delay *= 2
			}
		}
		log.WithError(err).WithField("email", to).Error("Failed to send welcome email")
		metrics.NotificationFailuresTotal.WithLabelValues("email").Inc()
	}()
}
