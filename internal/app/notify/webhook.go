package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// WebhookSettings configures the webhook backend. The settings map comes
// straight from the notifier section of the config file.
type WebhookSettings struct {
	URL           string `mapstructure:"url"`
	TimeoutMs     int    `mapstructure:"timeout_ms"`
	SupportDelete bool   `mapstructure:"support_delete"`
}

// WebhookNotifier posts notices as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	settings WebhookSettings
	client   *http.Client
}

// NewWebhookNotifier builds a webhook backend from raw settings.
func NewWebhookNotifier(settings map[string]any) (*WebhookNotifier, error) {
	var s WebhookSettings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "decode webhook settings")
	}
	if s.URL == "" {
		return nil, errors.New("webhook notifier requires url")
	}
	timeout := 5 * time.Second
	if s.TimeoutMs > 0 {
		timeout = time.Duration(s.TimeoutMs) * time.Millisecond
	}
	return &WebhookNotifier{
		settings: s,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type webhookPayload struct {
	Content string `json:"content"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

// Send posts the notice and returns the id the endpoint assigned, if any.
func (n *WebhookNotifier) Send(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(webhookPayload{Content: text})
	if err != nil {
		return "", errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.settings.URL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "post notice")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Newf("webhook returned status %d", resp.StatusCode)
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		// Endpoints that return an empty body are fine; the notice
		// just cannot be deleted later.
		return "", nil
	}
	return wr.ID, nil
}

// Delete removes a previously posted notice when the endpoint supports it.
func (n *WebhookNotifier) Delete(ctx context.Context, id string) error {
	if !n.settings.SupportDelete || id == "" {
		return nil
	}

	url := fmt.Sprintf("%s/%s", n.settings.URL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "delete notice")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
