package notify

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func init() {
	Register("telegram", newTelegramChannel)
}

type telegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chatId"`
}

// TelegramChannel sends alerts to a single chat through a bot.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func newTelegramChannel(cfg json.RawMessage) (Channel, error) {
	var c telegramConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.Token == "" || c.ChatID == 0 {
		return nil, fmt.Errorf("telegram: token and chatId are required")
	}
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramChannel{bot: bot, chatID: c.ChatID}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(title, message string) error {
	m := tgbotapi.NewMessage(c.chatID, title+"\n"+message)
	if _, err := c.bot.Send(m); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}
