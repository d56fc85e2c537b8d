package mock

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirect = "http://127.0.0.1:8765/"

func register(t *testing.T, b *Backend) string {
	t.Helper()
	body := `{"client_name":"test","redirect_uris":["` + testRedirect + `"]}`
	resp, err := http.Post(b.URL()+"/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out["client_id"].(string)
}

func authURL(b *Backend, clientID, verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {testRedirect},
		"state":                 {"st"},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"S256"},
	}
	return b.URL() + "/authorize?" + q.Encode()
}

func exchange(t *testing.T, b *Backend, clientID, code, verifier string) (int, map[string]any) {
	t.Helper()
	resp, err := http.PostForm(b.URL()+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {""},
		"code":          {code},
		"redirect_uri":  {testRedirect},
		"code_verifier": {verifier},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func codeFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "st", u.Query().Get("state"))
	return u.Query().Get("code")
}

func apiStatus(t *testing.T, b *Backend, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.URL()+"/api/memories", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestBackend_Metadata(t *testing.T) {
	b := NewBackend(BackendConfig{Providers: []string{"google"}})
	defer b.Close()

	resp, err := http.Get(b.URL() + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()

	var meta map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, b.URL(), meta["issuer"])
	assert.Equal(t, []any{"google"}, meta["oauth_providers"])

	off := NewBackend(BackendConfig{DisableDiscovery: true})
	defer off.Close()
	resp, err = http.Get(off.URL() + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBackend_CodeFlow(t *testing.T) {
	b := NewBackend(BackendConfig{RequireAuth: true})
	defer b.Close()
	clientID := register(t, b)

	redirect, err := b.Approve(authURL(b, clientID, "verifier-1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(redirect, testRedirect))
	code := codeFrom(t, redirect)

	status, body := exchange(t, b, clientID, code, "verifier-1")
	require.Equal(t, http.StatusOK, status)
	token := body["access_token"].(string)
	assert.NotEmpty(t, body["refresh_token"])
	assert.Equal(t, http.StatusOK, apiStatus(t, b, token))

	// Codes are single use.
	status, body = exchange(t, b, clientID, code, "verifier-1")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, 2, b.Requests("/token"))
}

func TestBackend_RejectsWrongVerifier(t *testing.T) {
	b := NewBackend(BackendConfig{})
	defer b.Close()
	clientID := register(t, b)

	redirect, err := b.Approve(authURL(b, clientID, "verifier-1"))
	require.NoError(t, err)

	status, body := exchange(t, b, clientID, codeFrom(t, redirect), "someone-else")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error_description"], "code_verifier")
}

func TestBackend_AuthorizeValidation(t *testing.T) {
	b := NewBackend(BackendConfig{})
	defer b.Close()
	clientID := register(t, b)

	_, err := b.Approve(authURL(b, "unknown", "v"))
	assert.Error(t, err)

	u, _ := url.Parse(authURL(b, clientID, "v"))
	q := u.Query()
	q.Set("redirect_uri", "http://127.0.0.1:9999/")
	u.RawQuery = q.Encode()
	_, err = b.Approve(u.String())
	assert.Error(t, err, "redirect must match the registration")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(authURL(b, clientID, "v"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), testRedirect))
}

func TestBackend_TokenExpiry(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	b := NewBackend(BackendConfig{RequireAuth: true, Clock: clock, TokenTTL: time.Minute})
	defer b.Close()

	token := b.IssueToken()
	assert.Equal(t, http.StatusOK, apiStatus(t, b, token))

	clock.Advance(59 * time.Second)
	assert.Equal(t, http.StatusOK, apiStatus(t, b, token))

	clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, b, token))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	assert.True(t, clock.Now().Equal(start))

	clock.Advance(90 * time.Minute)
	assert.True(t, clock.Now().Equal(start.Add(90*time.Minute)))
}

func TestBackend_API(t *testing.T) {
	b := NewBackend(BackendConfig{
		RequireAuth: true,
		Records: map[string][]map[string]any{
			"memories": {{"id": "a"}, {"id": "b"}, {"id": "c"}},
		},
	})
	defer b.Close()

	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, b, ""))
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, b, "forged"))

	token := b.IssueToken()
	get := func(path string) (int, map[string]any) {
		req, _ := http.NewRequest(http.MethodGet, b.URL()+path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, page := get("/api/memories?limit=1&offset=1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{map[string]any{"id": "b"}}, page["items"])

	status, rec := get("/api/memories/c")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "c", rec["id"])

	status, _ = get("/api/memories/zzz")
	assert.Equal(t, http.StatusNotFound, status)

	b.SetProbeStatus(http.StatusServiceUnavailable)
	status, _ = get("/api/memories")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	b.RevokeAll()
	b.SetProbeStatus(0)
	status, _ = get("/api/memories")
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Equal(t, 7, b.Requests("/api"))
}
