package alert

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramTransport sends alerts to one chat as HTML messages.
type TelegramTransport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramTransport(token string, chatID int64) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	log.Info().Str("username", bot.Self.UserName).Msg("🤖 Telegram bot connected")
	return &TelegramTransport{bot: bot, chatID: chatID}, nil
}

func (t *TelegramTransport) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

// LogTransport is the fallback when no chat credentials are configured:
// alerts go to the log instead of being dropped.
type LogTransport struct{}

func (LogTransport) Send(text string) error {
	log.Info().Msg("🔔 ALERT\n" + text)
	return nil
}
