package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute

	// WellKnownMetadataPath is the RFC 8414 discovery path.
	WellKnownMetadataPath = "/.well-known/oauth-authorization-server"

	// maxErrorBodyBytes bounds how much of an error response is kept.
	maxErrorBodyBytes = 4096
)

// metadataCacheEntry holds cached OAuth metadata with its timestamp.
type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client handles OAuth 2.1 protocol operations: metadata discovery, dynamic
// client registration, authorization URL construction and code exchange.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	// Metadata cache with mutex for thread safety
	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// singleflight group to deduplicate concurrent metadata fetches
	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DiscoverMetadata fetches RFC 8414 metadata from baseURL's well-known
// endpoint. Successful results are cached with a TTL; failures are not.
func (c *Client) DiscoverMetadata(ctx context.Context, baseURL string) (*Metadata, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")

	if metadata, ok := c.cachedMetadata(baseURL); ok {
		return metadata, nil
	}

	result, err, _ := c.metadataGroup.Do(baseURL, func() (interface{}, error) {
		// Double-check cache after acquiring singleflight lock
		if metadata, ok := c.cachedMetadata(baseURL); ok {
			return metadata, nil
		}

		metadata, err := c.fetchMetadata(ctx, baseURL+WellKnownMetadataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", baseURL, err)
		}
		c.cacheMetadata(baseURL, metadata)
		return metadata, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Metadata), nil
}

func (c *Client) cachedMetadata(baseURL string) (*Metadata, bool) {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()

	entry, ok := c.metadataCache[baseURL]
	if !ok || time.Since(entry.fetchedAt) >= c.metadataTTL {
		return nil, false
	}
	return entry.metadata, true
}

// fetchMetadata fetches metadata from a specific URL.
func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &metadata, nil
}

// cacheMetadata stores metadata in the cache.
func (c *Client) cacheMetadata(baseURL string, metadata *Metadata) {
	c.metadataMu.Lock()
	c.metadataCache[baseURL] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: time.Now(),
	}
	c.metadataMu.Unlock()

	c.logger.Debug("Cached OAuth metadata",
		"base_url", baseURL,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint)
}

// ClearMetadataCache clears the metadata cache.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}

// RegisterClient performs RFC 7591 dynamic client registration.
// A non-2xx answer yields a *ClientRegistrationError.
func (c *Client) RegisterClient(ctx context.Context, registrationEndpoint string, reg RegistrationRequest) (*RegistrationResponse, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Debug("Client registration failed",
			"status", resp.StatusCode,
			"body", truncate(body))
		return nil, &ClientRegistrationError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var out RegistrationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	if out.ClientID == "" {
		return nil, fmt.Errorf("registration response has no client_id")
	}

	return &out, nil
}

// ExchangeCode exchanges an authorization code for tokens. The client secret
// is always sent (empty when the client has none) as client_secret_post.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint string, x ExchangeRequest) (*Token, error) {
	data := url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"code":          {x.Code},
		"redirect_uri":  {x.RedirectURI},
		"client_id":     {x.ClientID},
		"client_secret": {x.ClientSecret},
		"code_verifier": {x.CodeVerifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	return &token, nil
}

// BuildAuthorizationURL constructs the authorization redirect URL with the
// PKCE challenge attached.
func (c *Client) BuildAuthorizationURL(authEndpoint, clientID, redirectURI, state, scope string, pkce *PKCEChallenge) (string, error) {
	if _, err := url.Parse(authEndpoint); err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: authEndpoint},
	}
	if scope != "" {
		cfg.Scopes = strings.Fields(scope)
	}

	var opts []oauth2.AuthCodeOption
	if pkce != nil {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
		)
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return string(body)
}
