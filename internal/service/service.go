package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"sms-number-bot/internal/config"
	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/metrics"
	"sms-number-bot/internal/provider"
	"sms-number-bot/internal/sender"

	log "github.com/sirupsen/logrus"
)

// Repository defines the persistence the engine needs.
type Repository interface {
	GetSetting(ctx context.Context, key, def string) (string, error)
	ToggleSetting(ctx context.Context, key string) (string, error)
	GetPrice(ctx context.Context, country string, def float64) (float64, error)
	SetPrice(ctx context.Context, country string, price float64) error
	ListPrices(ctx context.Context) (map[string]float64, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpsertUser(ctx context.Context, in domain.UserUpsert) (bool, error)
	IsLoggedIn(ctx context.Context, id int64) (bool, error)
	CreateOrder(ctx context.Context, o *domain.Order) error
	CreateOrderAndAdvance(ctx context.Context, o *domain.Order, conv *domain.Conversation) error
	ListOrdersByUser(ctx context.Context, userID int64, limit int) ([]*domain.Order, error)
	CountUsers(ctx context.Context) (int, error)
	CountOrders(ctx context.Context) (int, error)
	CountOrdersByUser(ctx context.Context, userID int64) (int, error)
	GetConversation(ctx context.Context, userID int64) (*domain.Conversation, error)
	SaveConversation(ctx context.Context, conv *domain.Conversation) error
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *domain.Keyboard) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *domain.Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// MembershipChecker reports a user's status in a channel ("member", "left", ...).
type MembershipChecker interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Event is one inbound chat event: a text message, a command or an inline
// button press.
type Event struct {
	UpdateID     int
	UserID       int64
	ChatID       int64
	FullName     string
	Locale       string
	Text         string
	Command      string
	CallbackID   string
	CallbackData string
	MessageID    int
}

func (e Event) IsCallback() bool { return e.CallbackID != "" }

func (e Event) kind() string {
	switch {
	case e.IsCallback():
		return "callback"
	case e.Command != "":
		return "command"
	default:
		return "text"
	}
}

type Deps struct {
	Repository Repository
	Messenger  Messenger
	Members    MembershipChecker
	Numbers    provider.NumberIssuer
	Publisher  EventPublisher
	Mailer     sender.EmailSender
}

// Service is the conversation engine. Handle must not be called concurrently
// for the same user; the dispatcher serializes events per user.
type Service struct {
	cfg       *config.Config
	repo      Repository
	messenger Messenger
	gate      *Gate
	numbers   provider.NumberIssuer
	publisher EventPublisher
	mailer    sender.EmailSender

	now            func() time.Time
	mailRetryDelay time.Duration
	background     sync.WaitGroup
}

func NewService(cfg *config.Config, deps Deps) *Service {
	return &Service{
		cfg:            cfg,
		repo:           deps.Repository,
		messenger:      deps.Messenger,
		gate:           NewGate(cfg.ForceChannels, deps.Members),
		numbers:        deps.Numbers,
		publisher:      deps.Publisher,
		mailer:         deps.Mailer,
		now:            time.Now,
		mailRetryDelay: time.Second,
	}
}

// Wait blocks until background work such as welcome emails has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Handle processes one event. A returned error means a critical step failed;
// the user's conversation state is left as it was before the event.
func (s *Service) Handle(ctx context.Context, ev Event) (err error) {
	start := s.now()
	defer func() {
		metrics.HandleLatency.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.UpdatesTotal.WithLabelValues(ev.kind(), outcome).Inc()
	}()

	conv, err := s.repo.GetConversation(ctx, ev.UserID)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"update_id": ev.UpdateID,
		"user_id":   ev.UserID,
		"state":     conv.State,
		"kind":      ev.kind(),
	}).Debug("Handling chat event")

	if isAdminEvent(ev, conv) {
		if !s.cfg.IsAdmin(ev.UserID) {
			log.WithField("user_id", ev.UserID).Debug("Ignoring admin event from non-admin")
			return nil
		}
		return s.handleAdmin(ctx, ev, conv)
	}

	switch {
	case ev.Command == "start":
		return s.start(ctx, ev, conv)
	case ev.CallbackData == cbRecheck:
		return s.recheck(ctx, ev)
	}

	if !s.gate.EnsureAccess(ctx, ev.UserID) {
		return s.denyAccess(ctx, ev)
	}
	if err := s.ensureUser(ctx, ev); err != nil {
		return err
	}

	if ev.IsCallback() {
		return s.handleCallback(ctx, ev, conv)
	}
	return s.handleText(ctx, ev, conv)
}

func isAdminEvent(ev Event, conv *domain.Conversation) bool {
	if ev.IsCallback() {
		return strings.HasPrefix(ev.CallbackData, "ad_") ||
			strings.HasPrefix(ev.CallbackData, cbAdminPricePrefix) ||
			strings.HasPrefix(ev.CallbackData, "tog_")
	}
	if ev.Command == "admin" {
		return true
	}
	return ev.Command == "" && conv.State == domain.StateAdminEnteringPrice && !isMenuLabel(ev.Text)
}

func (s *Service) handleCallback(ctx context.Context, ev Event, conv *domain.Conversation) error {
	data := ev.CallbackData
	var err error
	switch {
	case strings.HasPrefix(data, cbCountryPrefix) && conv.State == domain.StateChoosingCountry:
		err = s.pickCountry(ctx, ev, conv, strings.TrimPrefix(data, cbCountryPrefix))
	case strings.HasPrefix(data, cbServicePrefix) && conv.State == domain.StateChoosingService:
		err = s.pickService(ctx, ev, conv, strings.TrimPrefix(data, cbServicePrefix))
	case data == cbChangeNumber && conv.State == domain.StateWaitingCode:
		err = s.ChangeNumber(ctx, ev, conv)
	case data == cbCancelNumber && conv.State == domain.StateWaitingCode:
		err = s.CancelOrder(ctx, ev, conv)
	case data == cbRelistCountries:
		err = s.listCountries(ctx, ev, conv, true)
	case data == cbGoHome:
		err = s.goHome(ctx, ev, conv)
	default:
		s.answer(ctx, ev, "⌛ This button has expired.", false)
		return nil
	}
	if err == nil {
		s.answer(ctx, ev, "", false)
	}
	return err
}

func (s *Service) handleText(ctx context.Context, ev Event, conv *domain.Conversation) error {
	if conv.State == domain.StateAwaitingEmail && ev.Command == "" && !isMenuLabel(ev.Text) {
		return s.captureEmail(ctx, ev, conv)
	}

	switch ev.Text {
	case labelRequestNumber:
		return s.listCountries(ctx, ev, conv, false)
	case labelAccount:
		return s.account(ctx, ev)
	case labelTerms:
		return s.reply(ctx, ev, termsText, backHomeMenu())
	case labelSupport:
		return s.reply(ctx, ev, s.supportText(), backHomeMenu())
	case labelHome, labelBack:
		return s.home(ctx, ev, conv)
	case labelCreateAccount:
		return s.askEmail(ctx, ev, conv)
	case labelLogin:
		return s.login(ctx, ev)
	case labelStats:
		return s.userStats(ctx, ev)
	}
	return s.forwardToSupport(ctx, ev)
}

func (s *Service) reply(ctx context.Context, ev Event, text string, kb *domain.Keyboard) error {
	_, err := s.messenger.SendMessage(ctx, ev.ChatID, text, kb)
	return err
}

// edit replaces the message an inline button belongs to.
func (s *Service) edit(ctx context.Context, ev Event, text string, kb *domain.Keyboard) error {
	return s.messenger.EditMessage(ctx, ev.ChatID, ev.MessageID, text, kb)
}

// answer acknowledges a button press. It is best effort.
func (s *Service) answer(ctx context.Context, ev Event, text string, alert bool) {
	if !ev.IsCallback() {
		return
	}
	if err := s.messenger.AnswerCallback(ctx, ev.CallbackID, text, alert); err != nil {
		log.WithError(err).WithField("user_id", ev.UserID).Debug("Failed to answer callback")
	}
}

func (s *Service) setState(ctx context.Context, conv *domain.Conversation, state domain.State, data domain.ConversationData) error {
	next := &domain.Conversation{UserID: conv.UserID, State: state, Data: data}
	if err := s.repo.SaveConversation(ctx, next); err != nil {
		return err
	}
	*conv = *next
	return nil
}
