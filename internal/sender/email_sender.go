package sender

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

var (
	ErrNoRecipient = errors.New("email has no recipient")
	ErrEmptyBody   = errors.New("email has no body")
)

// Message is one outgoing email. When HTML is set the mail is sent as
// multipart/alternative with Text as the plain part.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if m.To == "" {
		return ErrNoRecipient
	}
	if m.Text == "" && m.HTML == "" {
		return ErrEmptyBody
	}
	return nil
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// SMTPEmailSender delivers mail through one SMTP relay with PLAIN auth.
type SMTPEmailSender struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPEmailSender(host, port, user, pass, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		auth: smtp.PlainAuth("", user, pass, host),
		from: from,
	}
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.compose(msg).Send(s.addr, s.auth); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPEmailSender) compose(msg Message) *email.Email {
	e := email.NewEmail()
	e.From = s.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	return e
}

// NopEmailSender is used when SMTP is not configured.
type NopEmailSender struct{}

func (NopEmailSender) SendEmail(ctx context.Context, msg Message) error { return nil }
