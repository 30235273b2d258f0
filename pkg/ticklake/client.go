// Package ticklake is a client for a running tick collector's HTTP API.
package ticklake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QueueStatus lists a collector's tickers per queue document.
type QueueStatus struct {
	Worker string              `json:"worker"`
	Queues map[string][]string `json:"queues"`
}

// Client talks to one collector.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the collector listening at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthy reports whether the collector is serving. It is false while the
// collector pauses for an upstream restart.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		return false, fmt.Errorf("GET /healthz: unexpected status %s", resp.Status)
	}
}

// Queues returns every queue document as seen by the collector's worker.
func (c *Client) Queues(ctx context.Context) (QueueStatus, error) {
	return c.queueStatus(ctx, "/api/queue")
}

// Queue returns a single document.
func (c *Client) Queue(ctx context.Context, doc string) (QueueStatus, error) {
	return c.queueStatus(ctx, "/api/queue/"+url.PathEscape(doc))
}

func (c *Client) queueStatus(ctx context.Context, path string) (QueueStatus, error) {
	var out QueueStatus
	resp, err := c.get(ctx, path)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return out, fmt.Errorf("GET %s: %s: %s", path, resp.Status, apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding %s: %w", path, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}
