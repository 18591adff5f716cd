package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yishin/mimbonode/utils"
)

// Telegram pushes operational alerts to a fixed chat. Notifications are
// fire-and-forget: a delivery failure is logged and never surfaced to the
// settlement path.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
}

func NewTelegram(token string, chatID int64, logger *utils.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Infof("✅ Telegram notifier authorized as %s", bot.Self.UserName)
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

func (t *Telegram) Notify(message string) {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Errorf("failed to send telegram notification: %v", err)
	}
}
