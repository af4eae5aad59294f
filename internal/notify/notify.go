// Package notify fans operator alerts out to the configured channels.
// Channels self-register through a factory map; a failure in one channel is
// logged and never blocks the others or the caller.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// Channel delivers one human-readable alert.
type Channel interface {
	Name() string
	Send(title, message string) error
}

// Factory creates a Channel from its JSON config block.
type Factory func(cfg json.RawMessage) (Channel, error)

var registry = map[string]Factory{}

// Register adds a channel factory under a config key.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// RegisteredNames lists the known channel kinds, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Notifier struct {
	channels []Channel
	log      *slog.Logger
}

// New builds a Notifier from the config's channel blocks. Unknown keys are a
// configuration error; zero configured channels is fine (alerts go to the
// log only).
func New(cfgs map[string]json.RawMessage, log *slog.Logger) (*Notifier, error) {
	n := &Notifier{log: log}
	// Deterministic construction order regardless of map iteration.
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("notify: unknown channel %q, known: %v", name, RegisteredNames())
		}
		ch, err := factory(cfgs[name])
		if err != nil {
			return nil, fmt.Errorf("notify: channel %q: %w", name, err)
		}
		n.channels = append(n.channels, ch)
	}
	return n, nil
}

// WithChannels builds a Notifier from ready-made channels, for tests and
// programmatic wiring.
func WithChannels(log *slog.Logger, chs ...Channel) *Notifier {
	return &Notifier{channels: chs, log: log}
}

func (n *Notifier) logger() *slog.Logger {
	if n.log != nil {
		return n.log
	}
	return slog.Default()
}

// Notify delivers to every channel. Per-channel errors are swallowed after
// logging: alerting must never take the polling loop down.
func (n *Notifier) Notify(title, message string) {
	n.logger().Info("sending notification", "title", title, "channels", len(n.channels))
	for _, ch := range n.channels {
		if err := ch.Send(title, message); err != nil {
			n.logger().Error("notification channel failed", "channel", ch.Name(), "err", err)
		}
	}
}
