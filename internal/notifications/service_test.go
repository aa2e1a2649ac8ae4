package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signage/internal/config"
	"signage/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSyncFailed, notifications.Payload{"error": "boom"}); err != nil {
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
			name:  "state changed to ready",
			event: notifications.EventStateChanged,
			payload: notifications.Payload{
				"device":   "lobby-1",
				"from":     "paired_preparing",
				"to":       "paired_ready",
				"playable": true,
			},
			expectTitle:   "Signage - State Changed",
			expectMessage: "📺 lobby-1: paired_preparing → paired_ready",
			expectTags:    "signage,state,paired_ready",
		},
		{
			name:  "state changed to unplayable",
			event: notifications.EventStateChanged,
			payload: notifications.Payload{
				"device":   "lobby-1",
				"from":     "paired_ready",
				"to":       "paired_offline_no_cache",
				"playable": false,
			},
			expectTitle:    "Signage - State Changed",
			expectMessage:  "📺 lobby-1: paired_ready → paired_offline_no_cache",
			expectTags:     "signage,state,paired_offline_no_cache",
			expectPriority: "high",
		},
		{
			name:  "sync failed",
			event: notifications.EventSyncFailed,
			payload: notifications.Payload{
				"device": "lobby-1",
				"error":  errors.New("network: dial tcp: refused"),
			},
			expectTitle:    "Signage - Sync Failed",
			expectMessage:  "❌ Sync failed on lobby-1: network: dial tcp: refused",
			expectTags:     "signage,sync,error",
			expectPriority: "high",
		},
		{
			name:           "pairing lost",
			event:          notifications.EventPairingLost,
			payload:        notifications.Payload{"device": "lobby-1"},
			expectTitle:    "Signage - Unpaired",
			expectMessage:  "🔌 lobby-1 is no longer paired; local content was removed",
			expectTags:     "signage,pairing,lost",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Signage - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "signage,test",
			expectPriority: "low",
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
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.StateChanges = true
			cfg.Notifications.SyncErrors = true

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

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.StateChanges = false
	cfg.Notifications.SyncErrors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventStateChanged,
		notifications.EventSyncFailed,
		notifications.EventPairingLost,
		notifications.EventContentApplied,
		notifications.Event("unknown"),
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
