// Package notify publishes operator-visible events to named channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Well-known channels.
const (
	ChannelErrors      = "errors"
	ChannelBadContract = "bad_contract"
	ChannelMaintain    = "maintain"
)

// Notifier publishes a payload to a named channel.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Event is the JSON payload sent for collector and ingest events.
type Event struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Ticker  string    `json:"ticker,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	File    string    `json:"file,omitempty"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// Send encodes ev and publishes it. Failures are logged and returned; callers
// on error paths usually ignore the result.
func Send(ctx context.Context, n Notifier, channel string, ev Event) error {
	if n == nil {
		return nil
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := n.Publish(ctx, channel, payload); err != nil {
		slog.Warn("notification failed", "channel", channel, "err", err)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// LogNotifier
// ---------------------------------------------------------------------------

// LogNotifier writes notifications to a logger. It is the default when no
// broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier backed by log.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Publish(_ context.Context, channel string, payload []byte) error {
	n.log.Info("notification", "channel", channel, "payload", string(payload))
	return nil
}

func (n *LogNotifier) Close() error { return nil }
