package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"signage/internal/config"
)

const userAgent = "Signage-Go/0.1.0"

// Event identifies a notification-worthy daemon event.
type Event string

const (
	EventStateChanged   Event = "state_changed"
	EventSyncFailed     Event = "sync_failed"
	EventContentApplied Event = "content_applied"
	EventPairingLost    Event = "pairing_lost"
	EventTest           Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes daemon events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		stateChanges: cfg.Notifications.StateChanges,
		syncErrors:   cfg.Notifications.SyncErrors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	stateChanges bool
	syncErrors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	device := payload.text("device", "device")
	switch event {
	case EventStateChanged:
		if !n.stateChanges {
			return message{}, false
		}
		from := payload.text("from", "unknown")
		to := payload.text("to", "unknown")
		msg := message{
			title: "Signage - State Changed",
			body:  fmt.Sprintf("📺 %s: %s → %s", device, from, to),
			tags:  []string{"signage", "state", to},
		}
		if playable, ok := payload["playable"].(bool); ok && !playable {
			msg.priority = "high"
		}
		return msg, true
	case EventSyncFailed:
		if !n.syncErrors {
			return message{}, false
		}
		return message{
			title:    "Signage - Sync Failed",
			body:     fmt.Sprintf("❌ Sync failed on %s: %s", device, payload.text("error", "unknown")),
			tags:     []string{"signage", "sync", "error"},
			priority: "high",
		}, true
	case EventPairingLost:
		if !n.stateChanges {
			return message{}, false
		}
		return message{
			title:    "Signage - Unpaired",
			body:     fmt.Sprintf("🔌 %s is no longer paired; local content was removed", device),
			tags:     []string{"signage", "pairing", "lost"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Signage - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"signage", "test"},
			priority: "low",
		}, true
	default:
		// Routine events such as EventContentApplied stay in the logs.
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key, fallback string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
