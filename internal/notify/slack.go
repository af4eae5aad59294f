package notify

import (
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"
)

func init() {
	Register("slack", newSlackChannel)
}

type slackConfig struct {
	BotToken string `json:"botToken"`
	Channel  string `json:"channel"`
}

// SlackChannel posts alerts to one Slack channel.
type SlackChannel struct {
	client  *slack.Client
	channel string
}

func newSlackChannel(cfg json.RawMessage) (Channel, error) {
	var c slackConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.BotToken == "" || c.Channel == "" {
		return nil, fmt.Errorf("slack: botToken and channel are required")
	}
	return &SlackChannel{client: slack.New(c.BotToken), channel: c.Channel}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(title, message string) error {
	_, _, err := c.client.PostMessage(c.channel,
		slack.MsgOptionText(fmt.Sprintf("*%s*\n%s", title, message), false))
	if err != nil {
		return fmt.Errorf("slack: send: %w", err)
	}
	return nil
}
