package notify

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func init() {
	Register("discord", newDiscordChannel)
}

type discordConfig struct {
	BotToken  string `json:"botToken"`
	ChannelID string `json:"channelId"`
}

// DiscordChannel sends alerts to one Discord channel. The session is used
// purely for REST sends; no gateway connection is opened.
type DiscordChannel struct {
	session   *discordgo.Session
	channelID string
}

func newDiscordChannel(cfg json.RawMessage) (Channel, error) {
	var c discordConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.BotToken == "" || c.ChannelID == "" {
		return nil, fmt.Errorf("discord: botToken and channelId are required")
	}
	s, err := discordgo.New("Bot " + c.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	return &DiscordChannel{session: s, channelID: c.ChannelID}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Send(title, message string) error {
	if _, err := c.session.ChannelMessageSend(c.channelID, "**"+title+"**\n"+message); err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}
