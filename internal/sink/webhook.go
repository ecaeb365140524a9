package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edvin/automation/internal/automation"
)

// maxDrainBytes caps how much of a webhook response is read before the
// body is closed.
const maxDrainBytes = 64 << 10

// WebhookClient performs webhook_call actions.
type WebhookClient struct {
	client *http.Client
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Call sends the request. Data goes in a JSON body for POST and in the
// query string for GET. Any status below 400 is a success.
func (c *WebhookClient) Call(ctx context.Context, cfg automation.WebhookConfig) error {
	var body io.Reader
	target := cfg.URL
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	switch method {
	case http.MethodGet:
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return fmt.Errorf("parse webhook url: %w", err)
		}
		q := u.Query()
		for k, v := range cfg.Data {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		target = u.String()
	default:
		data := cfg.Data
		if data == nil {
			data = map[string]any{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal webhook payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", method, cfg.URL, err)
	}
	defer func() {
		drainBody(resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// drainBody reads at most maxDrainBytes of r so small responses can keep
// their connection alive. It returns the number of bytes read.
func drainBody(r io.Reader) int64 {
	n, _ := io.Copy(io.Discard, io.LimitReader(r, maxDrainBytes))
	return n
}
