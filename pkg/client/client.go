// Package client is a small HTTP client for the deskd control API, used by
// the CLI subcommands and usable by other tooling.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running deskd daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional logger for client operations
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:9090/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a deskd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:9090/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Status fetches the aggregate stack snapshot.
func (c *Client) Status(ctx context.Context) (StackStatus, error) {
	var st StackStatus
	err := c.getJSON(ctx, c.baseURL+"/status", &st)
	return st, err
}

// ProcessStatus fetches the snapshot for one process.
func (c *Client) ProcessStatus(ctx context.Context, name string) (ProcessInfo, error) {
	var p ProcessInfo
	err := c.getJSON(ctx, c.baseURL+"/status/"+url.PathEscape(name), &p)
	return p, err
}

// Start starts a stopped or failed process.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.post(ctx, c.baseURL+"/start?name="+url.QueryEscape(name))
}

// Stop stops one process. With cascade, its dependents are stopped first.
func (c *Client) Stop(ctx context.Context, name string, cascade bool) error {
	u := c.baseURL + "/stop?name=" + url.QueryEscape(name) + "&cascade=" + strconv.FormatBool(cascade)
	return c.post(ctx, u)
}

// Restart stops then starts a process with a fresh restart budget.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.post(ctx, c.baseURL+"/restart?name="+url.QueryEscape(name))
}

// Shutdown asks the daemon to wind down the whole stack.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.post(ctx, c.baseURL+"/shutdown")
}

// History fetches recent lifecycle transitions from the daemon's journal.
// name filters to one process when non-empty.
func (c *Client) History(ctx context.Context, name string, n int) ([]Transition, error) {
	u := c.baseURL + "/journal"
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if n > 0 {
		q.Set("n", strconv.Itoa(n))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rows []Transition
	err := c.getJSON(ctx, u, &rows)
	return rows, err
}

// Logs fetches up to n recent captured output lines for a process.
func (c *Client) Logs(ctx context.Context, name string, n int) ([]LogLine, error) {
	u := c.baseURL + "/logs?name=" + url.QueryEscape(name)
	if n > 0 {
		u += "&n=" + strconv.Itoa(n)
	}
	var lines []LogLine
	err := c.getJSON(ctx, u, &lines)
	return lines, err
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "url", u, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkResponse(resp)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, string(body))
}
