package timetable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const generatePath = "/generate-timetable"

// Client posts finalized allocations to the timetable generator service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client. A nil httpClient gets one with the given timeout.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// StatusError is returned when the generator answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("timetable generator responded %d: %s", e.StatusCode, e.Body)
}

// Generate sends the request and returns the raw generator response.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	return c.Send(ctx, body)
}

// Send posts an already encoded request body.
func (c *Client) Send(ctx context.Context, body []byte) (json.RawMessage, error) {
	return c.post(ctx, "", body)
}

// Publish posts body and discards the generator response. messageID travels as X-Request-ID.
func (c *Client) Publish(ctx context.Context, messageID string, body []byte) error {
	_, err := c.post(ctx, messageID, body)
	return err
}

func (c *Client) post(ctx context.Context, messageID string, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if messageID != "" {
		httpReq.Header.Set("X-Request-ID", messageID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call timetable generator: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read generator response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(payload), nil
}
