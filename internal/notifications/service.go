package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"faceplate/internal/config"
)

const userAgent = "Faceplate/0.1.0"

// Event identifies a notification category.
type Event string

const (
	EventTrackChanged Event = "track_changed"
	EventIdleStarted  Event = "idle_started"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event specific values keyed by name.
type Payload map[string]any

// Service publishes player events to the configured transport.
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTrackChanged: cfg.Notifications.TrackChange,
			EventIdleStarted:  cfg.Notifications.Idle,
			EventError:        cfg.Notifications.Errors,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := buildMessage(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func buildMessage(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTrackChanged:
		track := payload.text("track")
		if track == "" {
			return message{}, false
		}
		body := "Now playing: " + track
		if quality := payload.text("quality"); quality != "" {
			body += "\n" + quality
		}
		return message{
			title: "Faceplate - Now Playing",
			body:  body,
			tags:  []string{"faceplate", "track", "playing"},
		}, true
	case EventIdleStarted:
		body := "Player idle"
		if timeout := payload.text("timeout"); timeout != "" {
			body = fmt.Sprintf("Player idle after %s without activity", timeout)
		}
		return message{
			title:    "Faceplate - Idle",
			body:     body,
			tags:     []string{"faceplate", "idle"},
			priority: "low",
		}, true
	case EventError:
		where := payload.text("context")
		if where == "" {
			where = "faceplate"
		}
		var builder strings.Builder
		fmt.Fprintf(&builder, "Error with %s", where)
		if detail := payload.text("error"); detail != "" {
			builder.WriteString(": ")
			builder.WriteString(detail)
		}
		return message{
			title:    "Faceplate - Error",
			body:     builder.String(),
			tags:     []string{"faceplate", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Faceplate - Test",
			body:     "Notification system test",
			tags:     []string{"faceplate", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case time.Duration:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
