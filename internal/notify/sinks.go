package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/provider/resilience"
)

// LogSink writes notifications to the structured log. Used when no
// presentation endpoint is configured, and as a development fallback.
type LogSink struct {
	Logger zerolog.Logger
}

// Send logs the notification.
func (s *LogSink) Send(_ context.Context, n Notification) error {
	s.Logger.Info().
		Str("channel", n.Channel).
		Str("importance", string(n.Importance)).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("notification")
	return nil
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookSinkConfig holds configuration for the webhook sink.
type WebhookSinkConfig struct {
	// URL of the presentation endpoint accepting notification JSON.
	URL string

	// HTTPClient used for delivery. If nil, a resilient client with a 10s
	// timeout is created.
	HTTPClient HTTPDoer
}

// WebhookSink posts notifications as JSON to a local presentation endpoint,
// typically a companion process owning the platform notification APIs.
type WebhookSink struct {
	url        string
	httpClient HTTPDoer
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookSinkConfig) *WebhookSink {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:    "notify-webhook",
			Timeout: 10 * time.Second,
		})
	}
	return &WebhookSink{url: cfg.URL, httpClient: httpClient}
}

// Send posts the notification to the webhook endpoint.
func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d from notification endpoint", resp.StatusCode)
	}
	return nil
}
