package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"montage/internal/config"
)

const userAgent = "Montage-Go/0.1.0"

// Event names a run milestone.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventRunDegraded  Event = "run_degraded"
	EventTest         Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if !strings.Contains(topic, "://") {
		topic = "https://ntfy.sh/" + strings.TrimLeft(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRunCompleted: cfg.Notifications.Completed,
			EventRunFailed:    cfg.Notifications.Failed,
			EventRunDegraded:  cfg.Notifications.Degraded,
			EventTest:         true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	title := text(data, "title")
	if title == "" {
		title = text(data, "run_id")
	}
	switch event {
	case EventRunCompleted:
		message := fmt.Sprintf("✅ Video ready: %s", title)
		if url := text(data, "url"); url != "" {
			message += "\n" + url
		}
		return payload{
			title:    "Montage - Complete",
			message:  message,
			tags:     []string{"montage", "run", "completed"},
			priority: "high",
		}, true
	case EventRunDegraded:
		message := fmt.Sprintf("⚠️ Rendered with fallbacks: %s", title)
		if detail := text(data, "detail"); detail != "" {
			message += "\n" + detail
		}
		return payload{
			title:   "Montage - Degraded Output",
			message: message,
			tags:    []string{"montage", "run", "degraded"},
		}, true
	case EventRunFailed:
		var b strings.Builder
		b.WriteString("❌ Run failed")
		if title != "" {
			b.WriteString(": ")
			b.WriteString(title)
		}
		if stage := text(data, "stage"); stage != "" {
			b.WriteString(" (")
			b.WriteString(stage)
			b.WriteString(")")
		}
		if errText := text(data, "error"); errText != "" {
			b.WriteString("\n")
			b.WriteString(errText)
		}
		return payload{
			title:    "Montage - Failed",
			message:  b.String(),
			tags:     []string{"montage", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Montage - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"montage", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func text(data Payload, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case error:
		return strings.TrimSpace(value.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
