package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swachh/portal-core/internal/observability/notify"
)

func failedNotice() notify.Notice {
	return notify.Notice{
		Title:       "Error",
		Description: "Failed to submit complaint. Please try again.",
		Variant:     notify.VariantDestructive,
		Outcome:     "failed",
		UserID:      "user-1",
		OccurredAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Metadata:    map[string]string{"operation": "submit_complaint", "error_class": "timeout"},
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:   "https://hooks.slack.com/services/test",
		Channel:      "#portal-ops",
		Username:     "bot",
		DashboardURL: "https://grafana.example.org/d/portal",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(failedNotice())
	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#portal-ops" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}
	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	for _, want := range []string{"Portal failed", "Failed to submit complaint", "user-1", "submit_complaint", "timeout", "grafana.example.org", "2024-05-01T10:00:00Z"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message text missing %q: %s", want, text)
		}
	}
}

func TestNotifyFiltersOutcomes(t *testing.T) {
	var posts atomic.Int32
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok := failedNotice()
	ok.Outcome = "created"
	if err := client.Notify(context.Background(), ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts.Load() != 0 {
		t.Fatalf("created notices must not be forwarded")
	}

	invalid := failedNotice()
	invalid.Metadata = map[string]string{"operation": "submit_complaint"}
	if err := client.Notify(context.Background(), invalid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts.Load() != 0 {
		t.Fatalf("validation failures must not be forwarded")
	}

	if err := client.Notify(context.Background(), failedNotice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts.Load() != 1 {
		t.Fatalf("expected one post, got %d", posts.Load())
	}
	if got["username"] != "portal-core" {
		t.Fatalf("expected default username, got %v", got["username"])
	}
}

func TestNotifyRetriesThenFails(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.Notify(context.Background(), failedNotice())
	if err == nil || !strings.Contains(err.Error(), "no_service") {
		t.Fatalf("expected webhook error, got %v", err)
	}
	if posts.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", posts.Load())
	}
}
