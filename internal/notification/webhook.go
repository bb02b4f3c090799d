package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint, retrying
// transport errors and 5xx answers with exponential backoff.
type WebhookNotifier struct {
	url     string
	service string
	client  *http.Client

	retries int
	backoff time.Duration // first wait, doubled per attempt
}

// NewWebhookNotifier creates a webhook notifier. service is sent along with
// every alert so one endpoint can serve several daemons.
func NewWebhookNotifier(url, service string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		service: service,
		client:  &http.Client{Timeout: 10 * time.Second},
		retries: 3,
		backoff: time.Second,
	}
}

type webhookPayload struct {
	Service string     `json:"service"`
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TS      time.Time  `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Service: w.service,
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		TS:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		retry, err := w.post(ctx, body)
		if err == nil {
			log.Printf("[webhook] sent %s alert: %s", alert.Level, alert.Title)
			return nil
		}
		lastErr = err
		if !retry || attempt == w.retries {
			break
		}
		wait := w.backoff << attempt
		log.Printf("[webhook] attempt %d/%d failed: %v, retrying in %v", attempt+1, w.retries+1, err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// post sends one request. retry reports whether the failure is transient.
func (w *WebhookNotifier) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: server error %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return false, nil
}
