package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sitwell-data/posture.report/internal/httputil"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/session"
)

// Client is a typed HTTP client for a running posture daemon, used by
// the status and end-session subcommands and by tooling that polls a
// daemon remotely.
type Client struct {
	HTTPClient httputil.HTTPClient
	BaseURL    string
}

// NewClient creates a client for the daemon at baseURL. Pass nil to use
// a default HTTP client with a 30 second timeout.
func NewClient(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second})
	}
	return &Client{
		HTTPClient: httpClient,
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// HealthStatus is the GET /api/health body.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Device  string `json:"device"`
}

// Health fetches the daemon's health and version.
func (c *Client) Health() (*HealthStatus, error) {
	var out HealthStatus
	if err := c.getJSON("/api/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verdict fetches the current posture verdict snapshot.
func (c *Client) Verdict() (*posture.Verdict, error) {
	var out posture.Verdict
	if err := c.getJSON("/api/verdict", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches frame throughput counters.
func (c *Client) Stats() (*StatsResponse, error) {
	var out StatsResponse
	if err := c.getJSON("/api/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions fetches the most recent stored sessions, newest first.
func (c *Client) Sessions(limit int) ([]session.Session, error) {
	path := "/api/sessions"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []session.Session
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EndSession asks the daemon to end the active session. It returns an
// error when no session is active.
func (c *Client) EndSession() error {
	resp, err := c.HTTPClient.Post(c.BaseURL+"/api/sessions/end", "application/json", nil)
	if err != nil {
		return fmt.Errorf("request /api/sessions/end: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
