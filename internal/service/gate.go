package service

import (
	"context"

	"sms-number-bot/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// Gate checks that a user belongs to every required channel. It fails
// closed: a failed membership query denies access.
type Gate struct {
	channels []string
	members  MembershipChecker
}

func NewGate(channels []string, members MembershipChecker) *Gate {
	return &Gate{channels: channels, members: members}
}

func (g *Gate) EnsureAccess(ctx context.Context, userID int64) bool {
	for _, ch := range g.channels {
		status, err := g.members.MemberStatus(ctx, ch, userID)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"user_id": userID,
				"channel": ch,
			}).Warn("Membership check failed, denying access")
			metrics.GateDenialsTotal.Inc()
			return false
		}
		if !isActiveMember(status) {
			metrics.GateDenialsTotal.Inc()
			return false
		}
	}
	return true
}

func isActiveMember(status string) bool {
	switch status {
	case "creator", "administrator", "member", "restricted":
		return true
	}
	return false
}

func (s *Service) denyAccess(ctx context.Context, ev Event) error {
	s.answer(ctx, ev, "", false)
	return s.reply(ctx, ev, s.subscribeText(), subscribeKeyboard())
}

// recheck reruns the gate for the "I joined" button.
func (s *Service) recheck(ctx context.Context, ev Event) error {
	if !s.gate.EnsureAccess(ctx, ev.UserID) {
		s.answer(ctx, ev, "Your subscription is still incomplete.", true)
		return nil
	}
	if err := s.ensureUser(ctx, ev); err != nil {
		return err
	}
	if err := s.messenger.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
		log.WithError(err).WithField("user_id", ev.UserID).Debug("Failed to delete subscription prompt")
	}
	s.answer(ctx, ev, "", false)
	return s.reply(ctx, ev, "✅ Subscription verified. Welcome!", mainMenu())
}
