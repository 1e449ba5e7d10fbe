package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/metrics"
	"sms-number-bot/internal/repository"
	"sms-number-bot/internal/validator"

	log "github.com/sirupsen/logrus"
)

// start resets the conversation, runs the gate and greets the user.
func (s *Service) start(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}
	if !s.gate.EnsureAccess(ctx, ev.UserID) {
		return s.denyAccess(ctx, ev)
	}
	created, err := s.repo.UpsertUser(ctx, domain.UserUpsert{ID: ev.UserID, Locale: ev.Locale})
	if err != nil {
		return err
	}
	if created {
		log.WithField("user_id", ev.UserID).Info("New user passed the access gate")
	}
	return s.reply(ctx, ev, s.welcomeText(ev.Locale), mainMenu())
}

// ensureUser creates the user row on the first event that passes the gate.
func (s *Service) ensureUser(ctx context.Context, ev Event) error {
	_, err := s.repo.GetUser(ctx, ev.UserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	_, err = s.repo.UpsertUser(ctx, domain.UserUpsert{ID: ev.UserID, Locale: ev.Locale})
	return err
}

func (s *Service) home(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}
	return s.reply(ctx, ev, "🏠 Back on the home page.", mainMenu())
}

func (s *Service) goHome(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}
	if err := s.edit(ctx, ev, "🏠 Back on the home page.", nil); err != nil {
		log.WithError(err).WithField("user_id", ev.UserID).Debug("Failed to edit message")
	}
	return s.reply(ctx, ev, "Choose an option below.", mainMenu())
}

func (s *Service) account(ctx context.Context, ev Event) error {
	u, err := s.repo.GetUser(ctx, ev.UserID)
	if err != nil {
		return err
	}
	loggedIn, err := s.repo.IsLoggedIn(ctx, ev.UserID)
	if err != nil {
		return err
	}

	email := "not set"
	if u.Email != "" {
		email = html.EscapeString(u.Email)
	}
	status := "❌ not logged in"
	if loggedIn {
		status = "✅ logged in"
	}
	text := fmt.Sprintf("👤 <b>Your account</b>\n• Email: <code>%s</code>\n• Status: %s\n• Balance: %.3f %s",
		email, status, u.Balance, s.cfg.Currency)
	return s.reply(ctx, ev, text, accountMenu())
}

func (s *Service) askEmail(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if err := s.setState(ctx, conv, domain.StateAwaitingEmail, domain.ConversationData{}); err != nil {
		return err
	}
	return s.reply(ctx, ev, "📧 Send your email address (no password needed).", backHomeMenu())
}

// captureEmail persists a valid email and finishes the flow. Invalid input
// re-prompts without writing anything.
func (s *Service) captureEmail(ctx context.Context, ev Event, conv *domain.Conversation) error {
	email, err := validator.NormalizeEmail(ev.Text)
	if err != nil {
		return s.reply(ctx, ev, "❌ Invalid email. Please try again.", nil)
	}

	created, err := s.repo.UpsertUser(ctx, domain.UserUpsert{ID: ev.UserID, Email: email})
	if err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}

	log.WithFields(log.Fields{"user_id": ev.UserID, "created": created}).Info("Email captured")
	s.notify(ctx, "login", s.cfg.Channels.Login, fmt.Sprintf(
		"🔔 <b>New sign-up / login</b>\n• User: %s\n• ID: <code>%d</code>\n• Email: <code>%s</code>",
		userLink(ev.UserID, ev.FullName), ev.UserID, html.EscapeString(email)))
	s.publish(ctx, domain.Event{Type: domain.EventUserRegistered, UserID: ev.UserID, Email: email})
	s.sendWelcomeEmail(email)

	return s.reply(ctx, ev, "✅ Your account was created and you are logged in.", mainMenu())
}

func (s *Service) login(ctx context.Context, ev Event) error {
	u, err := s.repo.GetUser(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if u.Email == "" {
		return s.reply(ctx, ev, "ℹ️ You need a registered email first. Use «Create account».", accountMenu())
	}
	if _, err := s.repo.UpsertUser(ctx, domain.UserUpsert{ID: ev.UserID, Locale: ev.Locale}); err != nil {
		return err
	}

	email := html.EscapeString(u.Email)
	s.notify(ctx, "login", s.cfg.Channels.Login, fmt.Sprintf(
		"🔓 <b>Login</b> | %d | Email: <code>%s</code>", ev.UserID, email))
	return s.reply(ctx, ev, fmt.Sprintf("✅ You are logged in.\nYour email: <code>%s</code>", email), mainMenu())
}

// recentOrders bounds the order list on the statistics screen.
const recentOrders = 5

func (s *Service) userStats(ctx context.Context, ev Event) error {
	n, err := s.repo.CountOrdersByUser(ctx, ev.UserID)
	if err != nil {
		return err
	}
	recent, err := s.repo.ListOrdersByUser(ctx, ev.UserID, recentOrders)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Your statistics</b>\n• Orders: %d", n)
	if len(recent) > 0 {
		b.WriteString("\n\n<b>Recent numbers</b>")
		for _, o := range recent {
			fmt.Fprintf(&b, "\n• %s <code>%s</code> %s: <code>%s</code> (%s %s)",
				o.CreatedAt.Format("2006-01-02"), o.Country, o.Service, o.Phone,
				formatPrice(o.Price), html.EscapeString(s.cfg.Currency))
		}
	}
	return s.reply(ctx, ev, b.String(), backHomeMenu())
}

// forwardToSupport relays free text nobody else handled to the support
// channel. The conversation state is not touched.
func (s *Service) forwardToSupport(ctx context.Context, ev Event) error {
	text := fmt.Sprintf("📩 <b>Customer message</b>\n• From: %s (<code>%d</code>)\n• Text:\n%s",
		userLink(ev.UserID, ev.FullName), ev.UserID, html.EscapeString(ev.Text))
	if _, err := s.messenger.SendMessage(ctx, s.cfg.Channels.SupportIn, text, nil); err != nil {
		log.WithError(err).WithField("user_id", ev.UserID).Warn("Failed to forward support message")
		metrics.NotificationFailuresTotal.WithLabelValues("support").Inc()
		return s.reply(ctx, ev, "⚠️ Your message could not be forwarded right now. Please try again later.", nil)
	}
	return s.reply(ctx, ev, "✅ Your message was forwarded to support. We will get back to you soon.", mainMenu())
}
