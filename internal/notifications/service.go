package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tapearc/internal/config"
)

const userAgent = "tapearc/0.1.0"

// Event identifies a notifiable milestone in the archive workflow.
type Event string

const (
	EventSessionStarted   Event = "session_started"
	EventSessionCompleted Event = "session_completed"
	EventSessionAborted   Event = "session_aborted"
	EventExportCompleted  Event = "export_completed"
	EventExportAborted    Event = "export_aborted"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event-specific fields into the rendered message.
type Payload map[string]string

// Service delivers workflow events to the operator.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.NtfyRequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
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
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventSessionStarted:
		return message{
			title: "Tapearc - Recording Started",
			body:  fmt.Sprintf("Recording started: spool %s", get("spool")),
			tags:  []string{"tapearc", "recording", "started"},
		}, true
	case EventSessionCompleted:
		body := fmt.Sprintf("Recording complete: spool %s", get("spool"))
		if items := get("items"); items != "" {
			body = fmt.Sprintf("%s (%s items)", body, items)
		}
		return message{
			title: "Tapearc - Recording Complete",
			body:  body,
			tags:  []string{"tapearc", "recording", "completed"},
		}, true
	case EventSessionAborted:
		body := fmt.Sprintf("Recording aborted: spool %s", get("spool"))
		if reason := get("reason"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		return message{
			title:    "Tapearc - Recording Aborted",
			body:     body,
			tags:     []string{"tapearc", "recording", "aborted"},
			priority: "high",
		}, true
	case EventExportCompleted:
		return message{
			title:    "Tapearc - Tape Written",
			body:     fmt.Sprintf("Tape %s written: %s files", get("barcode"), get("files")),
			tags:     []string{"tapearc", "export", "completed"},
			priority: "high",
		}, true
	case EventExportAborted:
		body := fmt.Sprintf("Export to tape %s aborted", get("barcode"))
		if reason := get("reason"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		return message{
			title:    "Tapearc - Export Aborted",
			body:     body,
			tags:     []string{"tapearc", "export", "aborted"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := get("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := get("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Tapearc - Error",
			body:     builder.String(),
			tags:     []string{"tapearc", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Tapearc - Test",
			body:     "Notification system test",
			tags:     []string{"tapearc", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
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
