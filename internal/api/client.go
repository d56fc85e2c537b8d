package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mnemo/internal/events"
	"mnemo/pkg/logging"
)

// Client defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetries      = 2
	DefaultRetryBackoff = 250 * time.Millisecond
	maxRetryBackoff     = 4 * time.Second
	maxErrorBody        = 4096

	// RequestIDHeader correlates client and server logs.
	RequestIDHeader = "X-Request-ID"
)

// TokenSource is the part of the credential store the client needs.
type TokenSource interface {
	AccessToken() string
	ClearAccessToken() error
}

// Publisher raises bus signals.
type Publisher interface {
	Publish(topic events.Topic) int
}

// Client sends authenticated requests to the mnemo API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	bus        Publisher
	retries    int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithPublisher sets where unauthorized signals go.
func WithPublisher(p Publisher) Option {
	return func(cl *Client) {
		cl.bus = p
	}
}

// WithRetries sets how many times an idempotent request is retried after
// a network error or a 502, 503 or 504 response.
func WithRetries(n int) Option {
	return func(cl *Client) {
		if n >= 0 {
			cl.retries = n
		}
	}
}

// WithRetryBackoff sets the delay before the first retry. Later retries
// double it.
func WithRetryBackoff(d time.Duration) Option {
	return func(cl *Client) {
		if d >= 0 {
			cl.backoff = d
		}
	}
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     tokens,
		retries:    DefaultRetries,
		backoff:    DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do sends a request to path and decodes a JSON response into out, which may
// be nil. body, when non-nil, is sent as JSON.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	data, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// List fetches a page of resource.
func (c *Client) List(ctx context.Context, resource Resource, opts ListOptions) ([]Record, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.ProjectID != "" {
		query.Set("project_id", opts.ProjectID)
	}

	data, err := c.send(ctx, http.MethodGet, "/api/"+string(resource), query, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data)
}

// Get fetches one record by id.
func (c *Client) Get(ctx context.Context, resource Resource, id string) (Record, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	var rec Record
	path := "/api/" + string(resource) + "/" + url.PathEscape(id)
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Graph fetches the relationship graph, optionally scoped to a project.
func (c *Client) Graph(ctx context.Context, projectID string) (*Graph, error) {
	query := url.Values{}
	if projectID != "" {
		query.Set("project_id", projectID)
	}
	var g Graph
	if err := c.Do(ctx, http.MethodGet, "/api/graph", query, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Probe issues GET /api/{resource}?limit=1 with token, when non-empty, as
// the bearer credential. It returns the status code, or an error when no
// response was received. Probe never clears credentials or publishes.
func (c *Client) Probe(ctx context.Context, resource Resource, token string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/"+string(resource), url.Values{"limit": {"1"}}, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	logging.Debug("API", "Probe %s returned %d (token present: %v)", resource, resp.StatusCode, token != "")
	return resp.StatusCode, nil
}

// newRequest builds a request for path, which is already escaped.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u := *c.baseURL
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + path
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + unescaped
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	attempts := 1
	if method == http.MethodGet || method == http.MethodHead {
		attempts += c.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			logging.Debug("API", "Retrying %s %s (attempt %d/%d)", method, path, attempt+1, attempts)
		}

		data, retry, err := c.sendOnce(ctx, method, path, query, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) sendOnce(ctx context.Context, method, path string, query url.Values, body any) ([]byte, bool, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, false, err
	}

	token := c.tokens.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return nil, true, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, false, nil
	}

	statusErr := &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(method, path)
		return nil, false, statusErr
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, true, statusErr
	}
	return nil, false, statusErr
}

func (c *Client) handleUnauthorized(method, path string) {
	logging.Info("API", "%s %s rejected with 401, clearing stored token", method, path)
	if err := c.tokens.ClearAccessToken(); err != nil {
		logging.Warn("API", "Failed to clear rejected token: %v", err)
	}
	if c.bus != nil {
		c.bus.Publish(events.TopicUnauthorized)
	}
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	d := c.backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > maxRetryBackoff {
			d = maxRetryBackoff
			break
		}
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
