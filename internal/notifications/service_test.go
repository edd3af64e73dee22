package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tapearc/internal/config"
	"tapearc/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSessionCompleted, notifications.Payload{"spool": "VT123456"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "session started",
			event: notifications.EventSessionStarted,
			payload: notifications.Payload{
				"spool": "VT123456",
			},
			expectTitle:   "Tapearc - Recording Started",
			expectMessage: "Recording started: spool VT123456",
			expectTags:    "tapearc,recording,started",
		},
		{
			name:  "session completed",
			event: notifications.EventSessionCompleted,
			payload: notifications.Payload{
				"spool": "VT123456",
				"items": "3",
			},
			expectTitle:   "Tapearc - Recording Complete",
			expectMessage: "Recording complete: spool VT123456 (3 items)",
			expectTags:    "tapearc,recording,completed",
		},
		{
			name:  "session aborted",
			event: notifications.EventSessionAborted,
			payload: notifications.Payload{
				"spool":  "VT123456",
				"reason": "signal lost",
			},
			expectTitle:    "Tapearc - Recording Aborted",
			expectMessage:  "Recording aborted: spool VT123456: signal lost",
			expectTags:     "tapearc,recording,aborted",
			expectPriority: "high",
		},
		{
			name:  "export completed",
			event: notifications.EventExportCompleted,
			payload: notifications.Payload{
				"barcode": "LTO0042",
				"files":   "12",
			},
			expectTitle:    "Tapearc - Tape Written",
			expectMessage:  "Tape LTO0042 written: 12 files",
			expectTags:     "tapearc,export,completed",
			expectPriority: "high",
		},
		{
			name:  "export aborted",
			event: notifications.EventExportAborted,
			payload: notifications.Payload{
				"barcode": "LTO0042",
				"reason":  "wrong tape loaded",
			},
			expectTitle:    "Tapearc - Export Aborted",
			expectMessage:  "Export to tape LTO0042 aborted: wrong tape loaded",
			expectTags:     "tapearc,export,aborted",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "recording",
				"error":   "capture card removed",
			},
			expectTitle:    "Tapearc - Error",
			expectMessage:  "Error with recording: capture card removed",
			expectTags:     "tapearc,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notify.NtfyTopic = server.URL
			cfg.Notify.NtfyRequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresUnknownEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for unknown event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notify.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.Event("someday"), notifications.Payload{"value": "ignored"}); err != nil {
		t.Fatalf("expected no error for unknown event, got %v", err)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notify.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
