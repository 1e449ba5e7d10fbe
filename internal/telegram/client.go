package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sms-number-bot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Client sends HTML formatted messages and answers membership queries.
type Client struct {
	bot botAPI
}

func NewClient(bot *tgbotapi.BotAPI) *Client {
	return &Client{bot: bot}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, kb *domain.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = replyMarkup(kb)
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text and inline keyboard of a message. Telegram
// cannot attach a reply keyboard to an edit, so one is ignored here.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *domain.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if kb != nil && kb.Inline {
		markup := inlineMarkup(kb)
		edit.ReplyMarkup = &markup
	}
	if _, err := c.bot.Request(edit); err != nil {
		if isNotModified(err) {
			log.WithField("chat_id", chatID).Debug("Message already up to date")
			return nil
		}
		return fmt.Errorf("failed to edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := c.bot.Request(cb); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// MemberStatus returns the user's status in a channel given as "@handle" or a
// numeric chat id. A restricted user who has left the chat reports "left".
func (c *Client) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if strings.HasPrefix(channel, "@") {
		chat.SuperGroupUsername = channel
	} else {
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid channel %q: %w", channel, err)
		}
		chat.ChatID = id
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		return "", fmt.Errorf("failed to get membership in %s: %w", channel, err)
	}
	if member.Status == "restricted" && !member.IsMember {
		return "left", nil
	}
	return member.Status, nil
}

func replyMarkup(kb *domain.Keyboard) interface{} {
	if kb.Inline {
		return inlineMarkup(kb)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func inlineMarkup(kb *domain.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
