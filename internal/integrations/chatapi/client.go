// Package chatapi talks to the reply endpoint served by handler.Handler.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chatapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type request struct {
	Message string `json:"message"`
}

// Client posts single messages to the reply endpoint. It applies no timeout
// of its own; callers bound a send through ctx.
type Client struct {
	url           string
	httpClient    *http.Client
	correlationID func() string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCorrelationID sets a generator for the X-Correlation-Id header.
func WithCorrelationID(fn func() string) Option {
	return func(c *Client) {
		c.correlationID = fn
	}
}

func NewClient(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("chatapi: url must not be empty")
	}
	c := &Client{url: url, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send posts {"message": text} and decodes the JSON string reply.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(request{Message: text})
	if err != nil {
		return "", fmt.Errorf("chatapi: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chatapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.correlationID != nil {
		req.Header.Set("X-Correlation-Id", c.correlationID())
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chatapi: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("chatapi: read response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &StatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var reply string
	if err := json.Unmarshal(buf, &reply); err != nil {
		return "", fmt.Errorf("chatapi: decode reply: %w", err)
	}
	return reply, nil
}
