package notify

import (
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
)

func init() {
	Register("email", newEmailChannel)
}

type emailConfig struct {
	SMTPServer string `json:"smtpServer"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// EmailChannel sends alerts over SMTP.
type EmailChannel struct {
	cfg emailConfig
}

func newEmailChannel(cfg json.RawMessage) (Channel, error) {
	var c emailConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return nil, err
	}
	if c.SMTPServer == "" || c.To == "" {
		return nil, fmt.Errorf("email: smtpServer and to are required")
	}
	if c.From == "" {
		c.From = c.Username
	}
	return &EmailChannel{cfg: c}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(title, message string) error {
	host := strings.Split(c.cfg.SMTPServer, ":")[0]
	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, host)
	}
	body := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", c.cfg.To, title, message)
	if err := smtp.SendMail(c.cfg.SMTPServer, auth, c.cfg.From, []string{c.cfg.To}, []byte(body)); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
