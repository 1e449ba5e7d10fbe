package sender

import (
	"bytes"
	"fmt"
	"html/template"
)

// Welcome holds what the sign-up mail mentions.
type Welcome struct {
	Brand       string
	Email       string
	StartLabel  string
	SupportUser string
}

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.5">
<h2>Welcome to {{.Brand}}</h2>
<p>Your account was created with the address <b>{{.Email}}</b>.</p>
<p>Open the bot and press <b>{{.StartLabel}}</b> to get your first number.</p>
<p>Support: <a href="https://t.me/{{.SupportUser}}">@{{.SupportUser}}</a></p>
</body>
</html>
`))

// WelcomeMessage renders the sign-up mail with a plain text fallback.
func WelcomeMessage(w Welcome) (Message, error) {
	var buf bytes.Buffer
	if err := welcomeHTML.Execute(&buf, w); err != nil {
		return Message{}, fmt.Errorf("failed to render welcome email: %w", err)
	}
	text := fmt.Sprintf(
		"Hello!\n\nYour account was created with the address %s.\nOpen the bot and press «%s» to get your first number.\n\nSupport: https://t.me/%s",
		w.Email, w.StartLabel, w.SupportUser,
	)
	return Message{
		To:      w.Email,
		Subject: "Welcome to " + w.Brand,
		Text:    text,
		HTML:    buf.String(),
	}, nil
}
