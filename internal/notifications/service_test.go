package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tenderq/internal/config"
	"tenderq/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	agent    string
	body     string
}

func captureServer(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		captured.agent = r.Header.Get("User-Agent")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		captured.body = string(body)
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic rejected\n"))
		}
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.NtfyTopic = "  "
	svc := notifications.NewService(&cfg)
	if _, ok := svc.(notifications.Nop); !ok {
		t.Fatalf("expected Nop service, got %T", svc)
	}
	if err := svc.NotifyItemExhausted(context.Background(), "GEM/2025/B/1", "fetch failed", 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if _, ok := notifications.NewService(nil).(notifications.Nop); !ok {
		t.Fatal("expected Nop service for nil config")
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "item exhausted",
			send: func(svc notifications.Service) error {
				return svc.NotifyItemExhausted(context.Background(), "GEM/2025/B/42", "fetch: status 404", 3)
			},
			expectTitle:    "tenderq - Retries Exhausted",
			expectMessage:  "Bid GEM/2025/B/42 failed 3 time(s): fetch: status 404\nRun `tenderq retry GEM/2025/B/42` once the cause is fixed",
			expectTags:     "tenderq,exhausted,review",
			expectPriority: "high",
		},
		{
			name: "error with context",
			send: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("store unreachable"), "tenderqd")
			},
			expectTitle:    "tenderq - Error",
			expectMessage:  "Error in tenderqd: store unreachable",
			expectTags:     "tenderq,error,alert",
			expectPriority: "high",
		},
		{
			name: "error without cause",
			send: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), nil, "")
			},
			expectTitle:    "tenderq - Error",
			expectMessage:  "Error: unknown",
			expectTags:     "tenderq,error,alert",
			expectPriority: "high",
		},
		{
			name: "test notification",
			send: func(svc notifications.Service) error {
				return svc.TestNotification(context.Background())
			},
			expectTitle:    "tenderq - Test",
			expectMessage:  "Notification system test",
			expectTags:     "tenderq,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, captured := captureServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notify.NtfyTopic = server.URL
			cfg.Notify.RequestTimeoutSeconds = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
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
			if !strings.HasPrefix(captured.agent, "tenderq/") {
				t.Fatalf("unexpected user agent %q", captured.agent)
			}
		})
	}
}

func TestNtfyServiceReportsRejectedTopic(t *testing.T) {
	server, _ := captureServer(t, http.StatusForbidden)

	cfg := config.Default()
	cfg.Notify.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for rejected topic")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic rejected") {
		t.Fatalf("unexpected error: %v", err)
	}
}
