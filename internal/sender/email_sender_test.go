package sender

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	s := NewSMTPEmailSender("smtp.example.com", "587", "bot", "secret", "bot@example.com")

	e := s.compose(Message{To: "user@example.com", Subject: "Welcome", Text: "hello"})
	raw, err := e.Bytes()
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "bot@example.com")
	assert.Contains(t, msg, "user@example.com")
	assert.Contains(t, msg, "Subject: Welcome")
	assert.Contains(t, msg, "hello")
	assert.NotContains(t, msg, "text/html")
}

func TestCompose_HTMLAlternative(t *testing.T) {
	s := NewSMTPEmailSender("smtp.example.com", "587", "bot", "secret", "bot@example.com")

	e := s.compose(Message{To: "user@example.com", Subject: "Welcome", Text: "hello", HTML: "<p>hi</p>"})
	raw, err := e.Bytes()
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "text/html")
	assert.Contains(t, msg, "<p>hi</p>")
}

func TestSendEmail_CancelledContext(t *testing.T) {
	s := NewSMTPEmailSender("127.0.0.1", "1", "u", "p", "bot@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendEmail(ctx, Message{To: "user@example.com", Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendEmail_RejectsIncompleteMessage(t *testing.T) {
	s := NewSMTPEmailSender("127.0.0.1", "1", "u", "p", "bot@example.com")

	err := s.SendEmail(context.Background(), Message{Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, ErrNoRecipient)

	err = s.SendEmail(context.Background(), Message{To: "user@example.com", Subject: "x"})
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestWelcomeMessage(t *testing.T) {
	msg, err := WelcomeMessage(Welcome{
		Brand:       "Numbers",
		Email:       "a<b>@example.com",
		StartLabel:  "Request number",
		SupportUser: "operator",
	})
	require.NoError(t, err)

	assert.Equal(t, "a<b>@example.com", msg.To)
	assert.Equal(t, "Welcome to Numbers", msg.Subject)
	assert.Contains(t, msg.Text, "«Request number»")
	assert.Contains(t, msg.Text, "https://t.me/operator")
	assert.Contains(t, msg.HTML, "<h2>Welcome to Numbers</h2>")
	assert.Contains(t, msg.HTML, "a&lt;b&gt;@example.com")
	assert.NotContains(t, msg.HTML, "<b>a<b>")
	assert.Contains(t, msg.HTML, `href="https://t.me/operator"`)
}
