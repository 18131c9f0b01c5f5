package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mensahub/mensa/internal/config"
)

// WebhookConfig holds generic webhook configuration
type WebhookConfig struct {
	URL     string
	Method  string            // HTTP method (POST, PUT, etc.)
	Headers map[string]string // Custom headers
	Enabled bool
}

// WebhookProvider sends notifications as JSON to a configured HTTP endpoint
type WebhookProvider struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookProvider creates a new webhook notification provider
func NewWebhookProvider(cfg WebhookConfig) *WebhookProvider {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return &WebhookProvider{
		config: cfg,
		client: &http.Client{
			Timeout: config.GetTimeouts().HTTPClient,
		},
	}
}

// Name returns the provider name
func (w *WebhookProvider) Name() string {
	return "webhook"
}

type webhookPayload struct {
	Type      string            `json:"type"`
	Tenant    string            `json:"tenant,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Send sends a notification via the webhook
func (w *WebhookProvider) Send(ctx context.Context, event Event) error {
	if !w.config.Enabled || w.config.URL == "" {
		return nil
	}

	payload := webhookPayload{
		Type:      string(event.Type),
		Tenant:    event.TenantID,
		Title:     event.Title,
		Message:   event.Message,
		Fields:    event.Fields,
		Timestamp: event.Timestamp.Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

// Test sends a test notification
func (w *WebhookProvider) Test(ctx context.Context) error {
	return w.Send(ctx, Event{
		Type:      EventSystemError,
		Title:     "Test notification",
		Message:   "Webhook configuration works",
		Timestamp: time.Now(),
	})
}
