// Package api is the HTTP client for the TeamFlow backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tgienger/teamflow/internal/models"
)

const (
	// APITimeout bounds every single backend call.
	APITimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is read for its detail.
	maxErrorBody = 64 << 10
)

// Client talks to the TeamFlow REST API. It holds no session state: callers
// pass the bearer token per call, an empty token meaning anonymous.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a client for the backend at baseURL
func New(baseURL string) (*Client, error) {
	return NewWithHTTPClient(baseURL, &http.Client{})
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing)
func NewWithHTTPClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", baseURL)
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// BotInfo returns the bot the login widget should target
func (c *Client) BotInfo(ctx context.Context) (models.BotInfo, error) {
	var info models.BotInfo
	err := c.do(ctx, "bot info", http.MethodGet, "/api/bot-info", nil, "", nil, &info)
	return info, err
}

// Me verifies token and returns the identity behind it
func (c *Client) Me(ctx context.Context, token string) (models.User, error) {
	var user models.User
	err := c.do(ctx, "verify session", http.MethodGet, "/api/me", nil, token, nil, &user)
	return user, err
}

// ExchangeTelegram trades the widget's identity payload for a session token
func (c *Client) ExchangeTelegram(ctx context.Context, payload json.RawMessage) (models.AuthResult, error) {
	var res models.AuthResult
	if err := c.do(ctx, "telegram login", http.MethodPost, "/api/auth/telegram", nil, "", payload, &res); err != nil {
		return res, err
	}
	if res.AccessToken == "" {
		return res, &Error{Kind: ErrUnauthorized, Op: "telegram login", Detail: "no access token in response"}
	}
	return res, nil
}

// Tasks lists tasks, restricted to filter's status when one is set
func (c *Client) Tasks(ctx context.Context, token string, filter models.Filter) ([]models.Task, error) {
	var q url.Values
	if !filter.IsNone() {
		q = url.Values{"status": {string(filter.Status)}}
	}
	var tasks []models.Task
	if err := c.do(ctx, "fetch tasks", http.MethodGet, "/api/tasks", q, token, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// Stats returns the aggregate task counts
func (c *Client) Stats(ctx context.Context, token string) (models.Stats, error) {
	var stats models.Stats
	err := c.do(ctx, "fetch stats", http.MethodGet, "/api/stats", nil, token, nil, &stats)
	return stats, err
}

// Task returns one task with its blockers
func (c *Client) Task(ctx context.Context, token string, id int64) (models.TaskDetail, error) {
	var detail models.TaskDetail
	err := c.do(ctx, "fetch task", http.MethodGet, "/api/tasks/"+strconv.FormatInt(id, 10), nil, token, nil, &detail)
	return detail, err
}

// clientFor returns an HTTP client that sends token as a bearer credential
func (c *Client) clientFor(token string) *http.Client {
	if token == "" {
		return c.http
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.http.Transport,
		},
		Timeout: c.http.Timeout,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Kind: ErrBackend, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.clientFor(token).Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, readDetail(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: ErrBackend, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readDetail extracts the "detail" (or "error"/"message") field from an error body
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}
	return ""
}
