package notify

import (
	"fmt"
	"log"

	"github.com/pkg/errors"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers watcher trigger messages to a chat. Notify returns
// the delivery error so callers can decide what state to persist.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// Telegram sends to a chat through the bot API. It doubles as the
// operational-alert sink for elevated-severity log events when
// constructed with the ops chat id.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot init")
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Notify(chatID int64, text string) error {
	if t == nil || t.bot == nil {
		return errors.New("telegram is not configured")
	}
	if chatID == 0 {
		chatID = t.chatID
	}
	_, err := t.bot.Send(tgbot.NewMessage(chatID, text))
	return err
}

// SendAlert implements logger.AlertSink. Failures are swallowed:
// the message is already in the log.
func (t *Telegram) SendAlert(text string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, "🚨 "+text))
}

// Stdout is a fallback for running without a telegram token.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Notify(chatID int64, text string) error {
	log.Println(fmt.Sprintf("[notify chat=%d] %s", chatID, text))
	return nil
}

func (s *Stdout) SendAlert(text string) {
	log.Printf("[alert] %s", text)
}
