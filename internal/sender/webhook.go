package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/httpclient"
)

// WebhookSender posts the notification as JSON to the URL configured on
// the channel. Slack and Teams senders reuse its HTTP plumbing with
// their own payload shapes.
type WebhookSender struct {
	client *httpclient.Client
}

func NewWebhookSender(client *httpclient.Client) *WebhookSender {
	return &WebhookSender{client: client}
}

func (s *WebhookSender) Name() domain.Channel { return domain.ChannelWebhook }

type webhookPayload struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s *WebhookSender) Send(ctx context.Context, cfg *domain.ChannelConfig, _ string, content Content) (Result, error) {
	return post(ctx, s.client, cfg, webhookPayload{
		Title:     content.Title,
		Message:   content.Message,
		Metadata:  content.Metadata,
		Timestamp: time.Now().UTC(),
	})
}

// post serializes the payload and interprets the provider's status code.
// 4xx responses are permanent: the endpoint rejected the payload and a
// retry with the same body cannot succeed. 5xx and transport errors are
// retriable.
func post(ctx context.Context, client *httpclient.Client, cfg *domain.ChannelConfig, payload any) (Result, error) {
	endpoint := endpointURL(cfg)
	if endpoint == "" {
		return Result{PermanentFailure: true}, fmt.Errorf("sender: channel %q has no url configured", cfg.Channel)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{PermanentFailure: true}, fmt.Errorf("sender: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{PermanentFailure: true}, fmt.Errorf("sender: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sender: post to %s: %w", cfg.Channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{ProviderMessage: resp.Status}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{PermanentFailure: true, ProviderMessage: resp.Status},
			fmt.Errorf("sender: %s endpoint rejected payload: %s", cfg.Channel, resp.Status)
	default:
		return Result{ProviderMessage: resp.Status},
			fmt.Errorf("sender: %s endpoint returned %s", cfg.Channel, resp.Status)
	}
}

func endpointURL(cfg *domain.ChannelConfig) string {
	if cfg == nil {
		return ""
	}
	if u, ok := cfg.Settings["url"].(string); ok {
		return u
	}
	return ""
}
