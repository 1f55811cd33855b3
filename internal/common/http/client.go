// Package http wraps the outbound HTTP client used for partner webhooks.
package http

import (
	"context"
	"net/http"
	"time"
)

// Client carries a shared http.Client with an overall request timeout. The
// delivery layer layers its own per-attempt deadline on top via context.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do executes the request as built.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoWithContext executes the request under the caller's context, so a
// cancelled routing aborts the outbound call.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}
