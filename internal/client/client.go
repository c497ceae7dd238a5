// Package client talks to a running planetd over its HTTP read surface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/planetpulse/internal/model"
)

// HTTPClient calls the planetd HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8080"). When token is non-empty, an Authorization header
// is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health returns the status reported by GET /v1/health.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "/v1/health", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Readiness is the body of GET /v1/ready.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready returns the readiness report. A 503 answer is returned as a
// Readiness with status "unavailable", not as an error.
func (c *HTTPClient) Ready(ctx context.Context) (*Readiness, error) {
	var r Readiness
	err := c.doJSON(ctx, "/v1/ready", &r)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && r.Status != "" {
		return &r, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// EventStats returns the per-day event counts from GET /v1/events/stats.
func (c *HTTPClient) EventStats(ctx context.Context) (model.DayCounts, error) {
	var resp struct {
		Status string          `json:"status"`
		Data   model.DayCounts `json:"data"`
	}
	if err := c.doJSON(ctx, "/v1/events/stats", &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("unexpected stats status %q", resp.Status)
	}
	if resp.Data == nil {
		resp.Data = model.DayCounts{}
	}
	return resp.Data, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs a GET and decodes the JSON response into result. On an
// error status the body is still decoded into result when it is JSON.
func (c *HTTPClient) doJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		_ = json.Unmarshal(respBody, result)
		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
