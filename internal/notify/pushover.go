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
	Register("pushover", newPushoverChannel)
}

const pushoverAPI = "https://api.pushover.net/1/messages.json"

type pushoverConfig struct {
	Token string `json:"token"`
	User  string `json:"user"`
	// APIURL overrides the live endpoint, for tests.
	APIURL string `json:"apiUrl"`
}

// PushoverChannel posts alerts to the Pushover message API.
type PushoverChannel struct {
	hc    *http.Client
	api   string
	token string
	user  string
}

func newPushoverChannel(cfg json.RawMessage) (Channel, error) {
	var c pushoverConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.Token == "" || c.User == "" {
		return nil, fmt.Errorf("pushover: token and user are required")
	}
	api := pushoverAPI
	if c.APIURL != "" {
		api = c.APIURL
	}
	return &PushoverChannel{
		hc:    &http.Client{Timeout: 10 * time.Second},
		api:   api,
		token: c.Token,
		user:  c.User,
	}, nil
}

func (c *PushoverChannel) Name() string { return "pushover" }

func (c *PushoverChannel) Send(title, message string) error {
	form := url.Values{
		"token":   {c.token},
		"user":    {c.user},
		"title":   {title},
		"message": {message},
	}
	resp, err := c.hc.Post(c.api, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover: http %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
