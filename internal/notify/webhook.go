package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

func init() {
	Register("webhook", newWebhookChannel)
}

type webhookConfig struct {
	URL         string `json:"url"`
	User        string `json:"user"`
	Pass        string `json:"pass"`
	TargetEmail string `json:"targetEmail"`
	TitlePrefix string `json:"titlePrefix"`
}

// WebhookChannel posts alerts to an operator-run pusher endpoint as a form,
// the shape the original personal-site pusher expects.
type WebhookChannel struct {
	hc     *http.Client
	cfg    webhookConfig
	prefix string
}

func newWebhookChannel(cfg json.RawMessage) (Channel, error) {
	var c webhookConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	prefix := c.TitlePrefix
	if prefix == "" {
		prefix = "VISA - "
	}
	return &WebhookChannel{
		hc:     &http.Client{Timeout: 10 * time.Second},
		cfg:    c,
		prefix: prefix,
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(title, message string) error {
	form := url.Values{
		"title": {c.prefix + title},
		"user":  {c.cfg.User},
		"pass":  {c.cfg.Pass},
		"email": {c.cfg.TargetEmail},
		"msg":   {message},
	}
	resp, err := c.hc.Post(c.cfg.URL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: http %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
