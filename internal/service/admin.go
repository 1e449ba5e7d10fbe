package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/validator"

	log "github.com/sirupsen/logrus"
)

// handleAdmin serves the control panel. Callers have already checked that the
// sender is an administrator.
func (s *Service) handleAdmin(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if ev.Command == "admin" {
		return s.adminPanel(ctx, ev)
	}
	if !ev.IsCallback() {
		return s.capturePrice(ctx, ev, conv)
	}

	data := ev.CallbackData
	var err error
	switch {
	case data == cbAdminPrices:
		err = s.adminPrices(ctx, ev, conv)
	case strings.HasPrefix(data, cbAdminPricePrefix) && conv.State == domain.StateAdminChoosingCountry:
		err = s.adminPickCountry(ctx, ev, conv, strings.TrimPrefix(data, cbAdminPricePrefix))
	case data == cbAdminProviders:
		err = s.adminProviders(ctx, ev)
	case data == cbToggle5Sim:
		err = s.adminToggle(ctx, ev, domain.Setting5SimEnabled)
	case data == cbToggleSMS:
		err = s.adminToggle(ctx, ev, domain.SettingSMSEnabled)
	case data == cbAdminChannels:
		err = s.adminChannels(ctx, ev)
	case data == cbAdminStats:
		err = s.adminStats(ctx, ev)
	case data == cbAdminBack:
		err = s.adminBack(ctx, ev, conv)
	default:
		s.answer(ctx, ev, "⌛ This button has expired.", false)
		return nil
	}
	if err == nil {
		s.answer(ctx, ev, "", false)
	}
	return err
}

func (s *Service) adminPanel(ctx context.Context, ev Event) error {
	return s.reply(ctx, ev, fmt.Sprintf("🛠 <b>%s control panel</b>", brand), adminPanelKeyboard())
}

func (s *Service) adminPrices(ctx context.Context, ev Event, conv *domain.Conversation) error {
	prices, err := s.pricesFor(ctx)
	if err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateAdminChoosingCountry, domain.ConversationData{}); err != nil {
		return err
	}
	return s.edit(ctx, ev, "💰 Pick a country to change its price:", s.countryKeyboard(prices, cbAdminPricePrefix, true))
}

func (s *Service) adminPickCountry(ctx context.Context, ev Event, conv *domain.Conversation, country string) error {
	c, ok := domain.LookupCountry(country)
	if !ok {
		s.answer(ctx, ev, "Unknown country.", false)
		return nil
	}
	current, err := s.repo.GetPrice(ctx, country, domain.DefaultPrice)
	if err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateAdminEnteringPrice, domain.ConversationData{AdminCountry: country}); err != nil {
		return err
	}
	return s.edit(ctx, ev, fmt.Sprintf("✏️ Send the new price for %s (current: %s %s).",
		c.Name, formatPrice(current), s.cfg.Currency), adminBackKeyboard())
}

// capturePrice applies a price typed while in the price entry state. A
// non-numeric or non-positive value keeps the state and asks again.
func (s *Service) capturePrice(ctx context.Context, ev Event, conv *domain.Conversation) error {
	country := conv.Data.AdminCountry
	if country == "" {
		return s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{})
	}
	price, err := validator.ParsePrice(ev.Text)
	if err != nil {
		return s.reply(ctx, ev, "❌ Please send a positive number, e.g. 19.5", nil)
	}
	if err := s.repo.SetPrice(ctx, country, price); err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}

	log.WithFields(log.Fields{"admin_id": ev.UserID, "country": country}).Info("Admin changed price")

	if err := s.reply(ctx, ev, fmt.Sprintf("✅ Price for <code>%s</code> set to %s %s.",
		country, formatPrice(price), s.cfg.Currency), nil); err != nil {
		return err
	}
	return s.adminPanel(ctx, ev)
}

func (s *Service) adminProviders(ctx context.Context, ev Event) error {
	fiveSim, err := s.repo.GetSetting(ctx, domain.Setting5SimEnabled, "1")
	if err != nil {
		return err
	}
	sms, err := s.repo.GetSetting(ctx, domain.SettingSMSEnabled, "1")
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🔌 <b>Providers</b>\n"+
		"• 5sim: %s (API key %s)\n"+
		"• SMS-Activate: %s (API key %s)\n\n"+
		"5sim is used whenever it is enabled.",
		enabledLabel(fiveSim), keyLabel(s.cfg.FiveSimAPIKey),
		enabledLabel(sms), keyLabel(s.cfg.SMSActivateAPIKey))
	kb := inlineKeyboard(
		[]domain.Button{btn("Toggle 5sim", cbToggle5Sim), btn("Toggle SMS-Activate", cbToggleSMS)},
		[]domain.Button{btn("↩️ Back", cbAdminBack)},
	)
	return s.edit(ctx, ev, text, kb)
}

func (s *Service) adminToggle(ctx context.Context, ev Event, key string) error {
	value, err := s.repo.ToggleSetting(ctx, key)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"admin_id": ev.UserID,
		"setting":  key,
		"value":    value,
	}).Info("Provider setting toggled")
	return s.adminProviders(ctx, ev)
}

func (s *Service) adminChannels(ctx context.Context, ev Event) error {
	ch := s.cfg.Channels
	text := fmt.Sprintf("📢 <b>Channels</b>\n"+
		"• Required: %s\n"+
		"• Purchase attempts: <code>%d</code>\n"+
		"• Sign-ups / logins: <code>%d</code>\n"+
		"• Support inbox: <code>%d</code>\n"+
		"• Public activations: %s\n"+
		"• Official: %s",
		html.EscapeString(strings.Join(s.cfg.ForceChannels, ", ")),
		ch.Attempts, ch.Login, ch.SupportIn,
		html.EscapeString(ch.PublicActivations), html.EscapeString(ch.PublicOfficial))
	return s.edit(ctx, ev, text, adminBackKeyboard())
}

func (s *Service) adminStats(ctx context.Context, ev Event) error {
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	orders, err := s.repo.CountOrders(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📈 <b>Statistics</b>\n• Users: %d\n• Orders: %d", users, orders)
	return s.edit(ctx, ev, text, adminBackKeyboard())
}

func (s *Service) adminBack(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}
	if err := s.messenger.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
		log.WithError(err).WithField("user_id", ev.UserID).Debug("Failed to delete admin message")
	}
	if err := s.reply(ctx, ev, "⬅️ Back to the control panel.", nil); err != nil {
		return err
	}
	return s.adminPanel(ctx, ev)
}
