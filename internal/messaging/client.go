package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradiehub-backend/internal/retry"
)

// Client talks to the transactional email/SMS provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Policy
}

type Email struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	// Reference ties provider callbacks back to a quote.
	Reference string `json:"reference,omitempty"`
}

type SMS struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry.Policy{MaxRetries: 3, Backoffs: retry.DefaultBackoffs},
	}
}

// WithRetryPolicy overrides the retry policy, mainly for tests.
func (c *Client) WithRetryPolicy(policy retry.Policy) *Client {
	c.retry = policy
	return c
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

func (c *Client) SendEmail(ctx context.Context, email Email) (*SendResult, error) {
	return c.send(ctx, "/v1/email", email)
}

func (c *Client) SendSMS(ctx context.Context, sms SMS) (*SendResult, error) {
	return c.send(ctx, "/v1/sms", sms)
}

func (c *Client) send(ctx context.Context, path string, payload interface{}) (*SendResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("messaging provider is not configured")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result SendResult
	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(fmt.Errorf("failed to execute request: %w", err))
			}
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("message rejected: status %d, body: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("failed to send message: status %d, body: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w, body: %s", err, string(body)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
