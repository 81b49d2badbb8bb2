package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/babelcloud/gbox/packages/replay/config"
	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
)

// Client talks to a running replay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Saves answer only once the file is written
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// NewFromConfig creates a client for the configured server URL.
func NewFromConfig() *Client {
	return New(config.GetServerURL())
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks whether the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil)
}

// Status fetches the server and buffer status.
func (c *Client) Status(ctx context.Context) (*handlers.StatusResponse, error) {
	var status handlers.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StartBuffering starts a new buffering session.
func (c *Client) StartBuffering(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/replay/start", nil)
}

// StopBuffering stops buffering once any running save finished.
func (c *Client) StopBuffering(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/replay/stop", nil)
}

// Save asks the server to save the last seconds. Zero saves the whole window.
// Failed and rejected saves are reported in the response, not as an error.
func (c *Client) Save(ctx context.Context, seconds float64) (*handlers.SaveResponse, error) {
	path := "/api/replay/save"
	if seconds > 0 {
		path += "?duration=" + url.QueryEscape(strconv.FormatFloat(seconds, 'f', -1, 64))
	}

	resp, err := c.send(ctx, http.MethodPost, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result handlers.SaveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.Status == "" {
		return nil, fmt.Errorf("unexpected save response (HTTP %d)", resp.StatusCode)
	}
	return &result, nil
}

func (c *Client) send(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replay server not reachable at %s: %w", c.baseURL, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	resp, err := c.send(ctx, method, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr handlers.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
