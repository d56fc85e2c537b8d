package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Test principal encoded into issued tokens.
const (
	TestUserID    = "user-1"
	TestUserEmail = "ada@example.com"
	TestUserName  = "Ada Lovelace"
)

var signingKey = []byte("mnemo-mock-backend")

// BackendConfig configures a Backend.
type BackendConfig struct {
	// RequireAuth makes /api reject requests without a valid token.
	RequireAuth bool

	// DisableDiscovery makes the metadata endpoint return 404.
	DisableDiscovery bool

	// Providers is advertised as the oauth_providers metadata extension.
	Providers []string

	// IssueSecret makes registration return a client_secret.
	IssueSecret bool

	// Records seeds the resource API, keyed by collection name.
	Records map[string][]map[string]any

	// Clock drives iat and expiry. Defaults to the system time.
	Clock Clock

	// TokenTTL is the lifetime of issued access tokens. Defaults to an hour.
	TokenTTL time.Duration
}

// Clock is the time source of a Backend.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when Advance is called, so tests reach token
// expiry without waiting.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pendingCode struct {
	clientID      string
	redirectURI   string
	codeChallenge string
	method        string
}

type client struct {
	secret      string
	redirectURI string
}

// Backend is a fake mnemo server.
type Backend struct {
	config BackendConfig
	server *httptest.Server

	mu               sync.Mutex
	clients          map[string]client
	codes            map[string]pendingCode
	tokens           map[string]time.Time
	requests         map[string]int
	probeStatus      int
	registerStatus   int
	tokenStatus      int
	tokenDelay       time.Duration
	lastTokenForm    url.Values
	lastRegistration map[string]any
}

// NewBackend starts a Backend. Call Close when done.
func NewBackend(config BackendConfig) *Backend {
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = time.Hour
	}
	b := &Backend{
		config:   config,
		clients:  make(map[string]client),
		codes:    make(map[string]pendingCode),
		tokens:   make(map[string]time.Time),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", b.handleMetadata)
	mux.HandleFunc("/register", b.handleRegister)
	mux.HandleFunc("/authorize", b.handleAuthorize)
	mux.HandleFunc("/token", b.handleToken)
	mux.HandleFunc("/api/", b.handleAPI)

	b.server = httptest.NewServer(b.count(mux))
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string {
	return b.server.URL
}

// Close shuts the backend down.
func (b *Backend) Close() {
	b.server.Close()
}

// Requests returns how many requests hit path.
func (b *Backend) Requests(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[path]
}

// SetProbeStatus forces every /api response to status. Zero restores
// normal behavior.
func (b *Backend) SetProbeStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeStatus = status
}

// SetRegistrationStatus forces /register to fail with status. Zero
// restores normal behavior.
func (b *Backend) SetRegistrationStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerStatus = status
}

// SetTokenStatus forces /token to fail with status. Zero restores normal
// behavior.
func (b *Backend) SetTokenStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenStatus = status
}

// SetTokenDelay delays every /token response.
func (b *Backend) SetTokenDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenDelay = d
}

// LastTokenForm returns the form of the most recent /token request.
func (b *Backend) LastTokenForm() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTokenForm
}

// LastRegistration returns the body of the most recent /register request.
func (b *Backend) LastRegistration() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRegistration
}

// IssueToken mints a valid access token without running the flow.
func (b *Backend) IssueToken() string {
	token, expiresAt := b.mintToken()
	b.mu.Lock()
	b.tokens[token] = expiresAt
	b.mu.Unlock()
	return token
}

// RevokeAll invalidates every issued token.
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]time.Time)
}

// Approve plays the user consenting on the authorization page. It validates
// authURL the way /authorize does and returns the redirect URL carrying
// code and state.
func (b *Backend) Approve(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	code, err := b.authorize(u.Query())
	if err != nil {
		return "", err
	}

	redirect, err := url.Parse(u.Query().Get("redirect_uri"))
	if err != nil {
		return "", err
	}
	q := redirect.Query()
	q.Set("code", code)
	q.Set("state", u.Query().Get("state"))
	redirect.RawQuery = q.Encode()
	return redirect.String(), nil
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/api/") {
			path = "/api"
		}
		b.mu.Lock()
		b.requests[path]++
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if b.config.DisableDiscovery {
		http.NotFound(w, r)
		return
	}
	issuer := b.server.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                           issuer,
		"authorization_endpoint":           issuer + "/authorize",
		"token_endpoint":                   issuer + "/token",
		"registration_endpoint":            issuer + "/register",
		"response_types_supported":         []string{"code"},
		"grant_types_supported":            []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported": []string{"S256"},
		"oauth_providers":                  b.config.Providers,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
		return
	}

	b.mu.Lock()
	b.lastRegistration = body
	status := b.registerStatus
	b.mu.Unlock()

	if status != 0 {
		oauthError(w, status, "server_error", "registration disabled")
		return
	}

	uris, _ := body["redirect_uris"].([]any)
	if len(uris) != 1 {
		oauthError(w, http.StatusBadRequest, "invalid_redirect_uri", "exactly one redirect_uri is required")
		return
	}
	redirectURI, _ := uris[0].(string)

	id := "client-" + randomHex(8)
	c := client{redirectURI: redirectURI}
	if b.config.IssueSecret {
		c.secret = randomHex(16)
	}

	b.mu.Lock()
	b.clients[id] = c
	b.mu.Unlock()

	resp := map[string]any{
		"client_id":     id,
		"redirect_uris": []string{redirectURI},
	}
	if c.secret != "" {
		resp["client_secret"] = c.secret
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (b *Backend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	code, err := b.authorize(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	redirect, _ := url.Parse(r.URL.Query().Get("redirect_uri"))
	q := redirect.Query()
	q.Set("code", code)
	q.Set("state", r.URL.Query().Get("state"))
	redirect.RawQuery = q.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (b *Backend) authorize(q url.Values) (string, error) {
	if q.Get("response_type") != "code" {
		return "", errors.New("unsupported_response_type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[q.Get("client_id")]
	if !ok {
		return "", errors.New("invalid_client")
	}
	if c.redirectURI != q.Get("redirect_uri") {
		return "", errors.New("redirect_uri does not match registration")
	}
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		return "", errors.New("S256 code_challenge required")
	}
	if q.Get("state") == "" {
		return "", errors.New("state required")
	}

	code := randomHex(16)
	b.codes[code] = pendingCode{
		clientID:      q.Get("client_id"),
		redirectURI:   q.Get("redirect_uri"),
		codeChallenge: q.Get("code_challenge"),
		method:        q.Get("code_challenge_method"),
	}
	return code, nil
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	b.mu.Lock()
	b.lastTokenForm = r.PostForm
	status := b.tokenStatus
	delay := b.tokenDelay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		oauthError(w, status, "server_error", "token endpoint failing")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", r.PostForm.Get("grant_type"))
		return
	}

	code := r.PostForm.Get("code")
	b.mu.Lock()
	entry, ok := b.codes[code]
	delete(b.codes, code)
	c := b.clients[entry.clientID]
	b.mu.Unlock()

	switch {
	case !ok:
		oauthError(w, http.StatusBadRequest, "invalid_grant", "authorization code not found or already used")
		return
	case entry.clientID != r.PostForm.Get("client_id"):
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code was issued to another client")
		return
	case c.secret != "" && c.secret != r.PostForm.Get("client_secret"):
		oauthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	case entry.redirectURI != r.PostForm.Get("redirect_uri"):
		oauthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	case !verifyPKCE(entry.codeChallenge, r.PostForm.Get("code_verifier")):
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier verification failed")
		return
	}

	access := b.IssueToken()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": randomHex(16),
		"token_type":    "Bearer",
		"expires_in":    int(b.config.TokenTTL.Seconds()),
		"scope":         "user",
	})
}

func (b *Backend) handleAPI(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	forced := b.probeStatus
	b.mu.Unlock()

	if forced != 0 {
		w.WriteHeader(forced)
		return
	}

	if b.config.RequireAuth && !b.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mnemo"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/"), "/")
	resource := parts[0]

	if resource == "graph" {
		writeJSON(w, http.StatusOK, map[string]any{
			"nodes": b.config.Records["entities"],
			"edges": []map[string]any{},
		})
		return
	}

	records := b.config.Records[resource]
	if len(parts) == 2 {
		for _, rec := range records {
			if fmt.Sprint(rec["id"]) == parts[1] {
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page := []map[string]any{}
	for i, rec := range records {
		if i < offset {
			continue
		}
		if limit > 0 && len(page) >= limit {
			break
		}
		page = append(page, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": page})
}

func (b *Backend) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	expiresAt, ok := b.tokens[token]
	return ok && b.config.Clock.Now().Before(expiresAt)
}

func (b *Backend) mintToken() (string, time.Time) {
	now := b.config.Clock.Now()
	expiresAt := now.Add(b.config.TokenTTL)
	claims := jwt.MapClaims{
		"sub":   TestUserID,
		"email": TestUserEmail,
		"name":  TestUserName,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   randomHex(8),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("mock: failed to sign token: %v", err))
	}
	return signed, expiresAt
}

func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]) == challenge
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
