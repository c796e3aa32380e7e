// Package slack forwards operator-relevant portal notices to a Slack webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/swachh/portal-core/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Outcomes selects which notice outcomes are forwarded (default: failed).
	Outcomes []string
	// DashboardURL is linked from each alert when set.
	DashboardURL string
}

// Client delivers portal notices to a Slack webhook. Notices with other
// outcomes are ignored, so it can sit in a fan-out next to the user's inbox.
// Failed notices without an error_class came from local validation and are skipped.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	outcomes     []string
	dashboardURL string
	client       *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := max(cfg.RetryLimit, 0)
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	outcomes := cfg.Outcomes
	if len(outcomes) == 0 {
		outcomes = []string{"failed"}
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     fallbackString(strings.TrimSpace(cfg.Username), "portal-core"),
		retryLimit:   retries,
		outcomes:     outcomes,
		dashboardURL: strings.TrimSpace(cfg.DashboardURL),
		client:       hc,
	}, nil
}

// Notify posts the notice when its outcome is selected.
func (c *Client) Notify(ctx context.Context, notice notify.Notice) error {
	if !slices.Contains(c.outcomes, notice.Outcome) {
		return nil
	}
	if notice.Outcome == "failed" && notice.Metadata["error_class"] == "" {
		return nil
	}
	body, err := json.Marshal(c.formatMessage(notice))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (c *Client) formatMessage(n notify.Notice) map[string]any {
	timestamp := n.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	text.WriteString("*Portal ")
	text.WriteString(escapeSlackText(fallbackString(n.Outcome, "notice")))
	text.WriteString("*: ")
	text.WriteString(escapeSlackText(n.Title))
	text.WriteByte('\n')
	appendSlackField(&text, "Detail", escapeSlackText(n.Description))
	appendSlackField(&text, "User", escapeSlackText(n.UserID))
	appendSlackMetadata(&text, n.Metadata)
	if c.dashboardURL != "" {
		appendSlackField(&text, "Dashboard", "<"+c.dashboardURL+">")
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func escapeSlackText(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendSlackField(text, k, escapeSlackText(metadata[k]))
	}
}
