package service

import (
	"context"
	"fmt"
	"html"

	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/metrics"
	"sms-number-bot/internal/provider"
	"sms-number-bot/internal/validator"

	log "github.com/sirupsen/logrus"
)

// ActiveProvider picks 5sim whenever it is enabled, otherwise the alternate,
// regardless of the alternate's own flag.
func (s *Service) ActiveProvider(ctx context.Context) (string, error) {
	enabled, err := s.repo.GetSetting(ctx, domain.Setting5SimEnabled, "1")
	if err != nil {
		return "", err
	}
	if enabled == "1" {
		return domain.Provider5Sim, nil
	}
	return domain.ProviderSMSActivate, nil
}

// pricesFor returns the price of every listed country, falling back to the
// default for countries without a stored price.
func (s *Service) pricesFor(ctx context.Context) (map[string]float64, error) {
	prices, err := s.repo.ListPrices(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range domain.Countries {
		if _, ok := prices[c.Code]; !ok {
			prices[c.Code] = domain.DefaultPrice
		}
	}
	return prices, nil
}

// listCountries starts the order flow. From an inline button the current
// message is replaced, otherwise a new one is sent.
func (s *Service) listCountries(ctx context.Context, ev Event, conv *domain.Conversation, edit bool) error {
	prices, err := s.pricesFor(ctx)
	if err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateChoosingCountry, domain.ConversationData{}); err != nil {
		return err
	}
	text := fmt.Sprintf("🌍 Choose a country.\n<b>%s</b>", brand)
	kb := s.countryKeyboard(prices, cbCountryPrefix, false)
	if edit {
		return s.edit(ctx, ev, text, kb)
	}
	return s.reply(ctx, ev, text, kb)
}

func (s *Service) pickCountry(ctx context.Context, ev Event, conv *domain.Conversation, country string) error {
	if err := validator.ValidateCountry(country); err != nil {
		s.answer(ctx, ev, "Unknown country.", false)
		return nil
	}
	if err := s.setState(ctx, conv, domain.StateChoosingService, domain.ConversationData{Country: country}); err != nil {
		return err
	}
	return s.edit(ctx, ev, "Choose a service:", serviceKeyboard())
}

func (s *Service) pickService(ctx context.Context, ev Event, conv *domain.Conversation, service string) error {
	if err := validator.ValidateService(service); err != nil {
		s.answer(ctx, ev, "Unknown service.", false)
		return nil
	}
	country := conv.Data.Country
	if country == "" {
		s.answer(ctx, ev, "⌛ This button has expired.", false)
		return nil
	}

	order, err := s.newOrder(ctx, ev.UserID, country, service)
	if err != nil {
		return err
	}
	next := &domain.Conversation{
		UserID: conv.UserID,
		State:  domain.StateWaitingCode,
		Data:   domain.ConversationData{Country: country, Service: service, Phone: order.Phone},
	}
	if err := s.repo.CreateOrderAndAdvance(ctx, order, next); err != nil {
		return err
	}
	*conv = *next

	s.orderPlaced(ctx, order, ev.FullName)
	return s.edit(ctx, ev, s.orderText(order), waitingCodeKeyboard())
}

// CreateOrder issues a number and persists the order at the country's current
// price. The purchase-attempt notification and event are best effort.
func (s *Service) CreateOrder(ctx context.Context, userID int64, fullName, country, service string) (*domain.Order, error) {
	order, err := s.newOrder(ctx, userID, country, service)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.orderPlaced(ctx, order, fullName)
	return order, nil
}

func (s *Service) newOrder(ctx context.Context, userID int64, country, service string) (*domain.Order, error) {
	prov, err := s.ActiveProvider(ctx)
	if err != nil {
		return nil, err
	}
	price, err := s.repo.GetPrice(ctx, country, domain.DefaultPrice)
	if err != nil {
		return nil, err
	}
	phone, err := s.numbers.IssueNumber(ctx, prov, country, service)
	if err != nil {
		return nil, fmt.Errorf("failed to issue number: %w", err)
	}
	return &domain.Order{
		UserID:    userID,
		Provider:  prov,
		Country:   country,
		Service:   service,
		Phone:     phone,
		Price:     price,
		Status:    domain.StatusWaitCode,
		CreatedAt: s.now().UTC(),
	}, nil
}

// orderPlaced runs after the order is committed.
func (s *Service) orderPlaced(ctx context.Context, o *domain.Order, fullName string) {
	metrics.OrdersTotal.WithLabelValues(o.Provider, o.Country).Inc()

	s.notify(ctx, "attempts", s.cfg.Channels.Attempts, fmt.Sprintf(
		"🟠 <b>Purchase attempt</b>\n"+
			"• User: %s\n"+
			"• Country: <code>%s</code>\n"+
			"• Service: <code>%s</code>\n"+
			"• Price: %s %s\n"+
			"• Number: <code>%s</code>",
		userLink(o.UserID, fullName), o.Country, o.Service, formatPrice(o.Price), html.EscapeString(s.cfg.Currency), o.Phone))
	s.publish(ctx, domain.Event{
		Type:     domain.EventOrderCreated,
		UserID:   o.UserID,
		Country:  o.Country,
		Service:  o.Service,
		Provider: o.Provider,
		Phone:    o.Phone,
		Price:    o.Price,
	})
}

// ChangeNumber shows a different number for the same country and service.
// The stored order is not modified.
func (s *Service) ChangeNumber(ctx context.Context, ev Event, conv *domain.Conversation) error {
	data := conv.Data
	prov, err := s.ActiveProvider(ctx)
	if err != nil {
		return err
	}
	price, err := s.repo.GetPrice(ctx, data.Country, domain.DefaultPrice)
	if err != nil {
		return err
	}

	var phone string
	if r, ok := s.numbers.(provider.NumberReplacer); ok {
		phone, err = r.ReplaceNumber(ctx, prov, data.Country, data.Service, data.Phone)
	} else {
		phone, err = s.numbers.IssueNumber(ctx, prov, data.Country, data.Service)
	}
	if err != nil {
		return fmt.Errorf("failed to change number: %w", err)
	}

	data.Phone = phone
	if err := s.setState(ctx, conv, domain.StateWaitingCode, data); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": ev.UserID, "country": data.Country}).Info("Number changed")

	text := fmt.Sprintf("🔁 Number changed (same country).\n"+
		"• Country: <code>%s</code>\n"+
		"• New number: <code>%s</code>\n"+
		"• Price: %s %s\n\n"+
		"Waiting for the activation code…",
		data.Country, phone, formatPrice(price), s.cfg.Currency)
	return s.edit(ctx, ev, text, waitingCodeKeyboard())
}

// CancelOrder ends the order flow and offers to buy again. The stored order
// keeps its status.
func (s *Service) CancelOrder(ctx context.Context, ev Event, conv *domain.Conversation) error {
	price, err := s.repo.GetPrice(ctx, conv.Data.Country, domain.DefaultPrice)
	if err != nil {
		return err
	}
	if err := s.setState(ctx, conv, domain.StateIdle, domain.ConversationData{}); err != nil {
		return err
	}

	kb := inlineKeyboard(
		[]domain.Button{btn(fmt.Sprintf("🛒 Buy again (%s %s)", formatPrice(price), s.cfg.Currency), cbRelistCountries)},
		[]domain.Button{btn("🌍 Back to countries", cbRelistCountries)},
		[]domain.Button{btn("🏠 Home", cbGoHome)},
	)
	return s.edit(ctx, ev, "✅ Number cancelled.", kb)
}
