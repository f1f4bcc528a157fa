package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient makes REST calls to the bridge daemon.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetAttempts fetches /api/attempts, newest first.
func (c *HTTPClient) GetAttempts() ([]*Attempt, error) {
	var out []*Attempt
	if err := c.get("/api/attempts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHealth fetches /api/health. A failed daemon answers 503 with a
// report body, which is still decoded.
func (c *HTTPClient) GetHealth() (*HealthReport, error) {
	var h HealthReport
	err := c.get("/api/health", &h)
	if err != nil && h.Status == "" {
		return nil, err
	}
	return &h, nil
}

func (c *HTTPClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable && path == "/api/health" {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
		return fmt.Errorf("GET %s: %d", path, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
