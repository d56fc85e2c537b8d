package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		c := NewClient()
		if c.httpClient == nil {
			t.Error("expected httpClient to be set")
		}
		if c.logger == nil {
			t.Error("expected logger to be set")
		}
		if c.metadataTTL != DefaultMetadataCacheTTL {
			t.Errorf("expected metadataTTL to be %v, got %v", DefaultMetadataCacheTTL, c.metadataTTL)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		customHTTP := &http.Client{Timeout: 10 * time.Second}
		c := NewClient(WithHTTPClient(customHTTP), WithMetadataCacheTTL(5*time.Minute))

		if c.httpClient != customHTTP {
			t.Error("expected custom httpClient to be set")
		}
		if c.metadataTTL != 5*time.Minute {
			t.Errorf("expected metadataTTL to be 5m, got %v", c.metadataTTL)
		}
	})
}

func TestDiscoverMetadata(t *testing.T) {
	t.Run("discovers via RFC 8414 endpoint", func(t *testing.T) {
		metadata := &Metadata{
			Issuer:                "https://issuer.example.com",
			AuthorizationEndpoint: "https://issuer.example.com/authorize",
			TokenEndpoint:         "https://issuer.example.com/token",
			OAuthProviders:        []string{"github"},
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == WellKnownMetadataPath {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(metadata)
				return
			}
			http.NotFound(w, r)
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		result, err := c.DiscoverMetadata(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Issuer != metadata.Issuer {
			t.Errorf("expected issuer %s, got %s", metadata.Issuer, result.Issuer)
		}
		if len(result.OAuthProviders) != 1 || result.OAuthProviders[0] != "github" {
			t.Errorf("expected providers [github], got %v", result.OAuthProviders)
		}
	})

	t.Run("returns error on 404", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		if _, err := c.DiscoverMetadata(context.Background(), server.URL); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("caches successful lookups", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			json.NewEncoder(w).Encode(&Metadata{Issuer: "x"})
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		for i := 0; i < 3; i++ {
			if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 request, got %d", calls.Load())
		}

		c.ClearMetadataCache()
		if _, err := c.DiscoverMetadata(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 requests after clearing cache, got %d", calls.Load())
		}
	})

	t.Run("deduplicates concurrent lookups", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			<-release
			json.NewEncoder(w).Encode(&Metadata{Issuer: "x"})
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.DiscoverMetadata(context.Background(), server.URL)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if calls.Load() != 1 {
			t.Errorf("expected 1 request, got %d", calls.Load())
		}
	})
}

func TestRegisterClient(t *testing.T) {
	t.Run("sends RFC 7591 body", func(t *testing.T) {
		var got RegistrationRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %s", ct)
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(RegistrationResponse{ClientID: "cid", ClientSecret: "sec"})
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		resp, err := c.RegisterClient(context.Background(), server.URL+"/register",
			NewRegistrationRequest("mnemo", "http://127.0.0.1:8765/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.ClientID != "cid" || resp.ClientSecret != "sec" {
			t.Errorf("unexpected response %+v", resp)
		}

		if got.ClientName != "mnemo" {
			t.Errorf("client_name = %q", got.ClientName)
		}
		if len(got.RedirectURIs) != 1 || got.RedirectURIs[0] != "http://127.0.0.1:8765/" {
			t.Errorf("redirect_uris = %v", got.RedirectURIs)
		}
		if len(got.GrantTypes) != 2 || got.GrantTypes[0] != "authorization_code" || got.GrantTypes[1] != "refresh_token" {
			t.Errorf("grant_types = %v", got.GrantTypes)
		}
		if len(got.ResponseTypes) != 1 || got.ResponseTypes[0] != "code" {
			t.Errorf("response_types = %v", got.ResponseTypes)
		}
		if got.TokenEndpointAuthMethod != "client_secret_post" {
			t.Errorf("token_endpoint_auth_method = %q", got.TokenEndpointAuthMethod)
		}
	})

	t.Run("non-success status is a ClientRegistrationError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_redirect_uri"}`, http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		_, err := c.RegisterClient(context.Background(), server.URL, NewRegistrationRequest("mnemo", "http://x/"))
		if !IsClientRegistrationError(err) {
			t.Fatalf("expected ClientRegistrationError, got %v", err)
		}
	})
}

func TestExchangeCode(t *testing.T) {
	t.Run("posts form with empty client secret", func(t *testing.T) {
		var form url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("unexpected content type %s", ct)
			}
			body, _ := io.ReadAll(r.Body)
			form, _ = url.ParseQuery(string(body))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok1"})
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		token, err := c.ExchangeCode(context.Background(), server.URL+"/token", ExchangeRequest{
			Code:         "abc123",
			RedirectURI:  "https://app.example/",
			ClientID:     "cid",
			CodeVerifier: "v1",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.AccessToken != "tok1" {
			t.Errorf("access token = %q", token.AccessToken)
		}
		if token.RefreshToken != "" {
			t.Errorf("expected no refresh token, got %q", token.RefreshToken)
		}

		want := map[string]string{
			"grant_type":    "authorization_code",
			"code":          "abc123",
			"redirect_uri":  "https://app.example/",
			"client_id":     "cid",
			"code_verifier": "v1",
		}
		for k, v := range want {
			if form.Get(k) != v {
				t.Errorf("%s = %q, want %q", k, form.Get(k), v)
			}
		}
		if _, ok := form["client_secret"]; !ok {
			t.Error("client_secret must be sent even when empty")
		}
	})

	t.Run("non-success status keeps the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		_, err := c.ExchangeCode(context.Background(), server.URL, ExchangeRequest{Code: "x"})
		var exErr *TokenExchangeError
		if !IsTokenExchangeError(err) {
			t.Fatalf("expected TokenExchangeError, got %v", err)
		}
		exErr = err.(*TokenExchangeError)
		if exErr.StatusCode != http.StatusBadRequest || exErr.Body != `{"error":"invalid_grant"}` {
			t.Errorf("unexpected error %+v", exErr)
		}
	})

	t.Run("response without access token is rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"token_type":"Bearer"}`))
		}))
		defer server.Close()

		c := NewClient(WithHTTPClient(server.Client()))
		if _, err := c.ExchangeCode(context.Background(), server.URL, ExchangeRequest{Code: "x"}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestBuildAuthorizationURL(t *testing.T) {
	c := NewClient()
	pkce := &PKCEChallenge{CodeVerifier: "v", CodeChallenge: "chal", CodeChallengeMethod: "S256"}

	raw, err := c.BuildAuthorizationURL("https://auth.example/authorize", "cid", "http://127.0.0.1:8765/", "st", "user", pkce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unparseable URL %q: %v", raw, err)
	}
	if u.Scheme != "https" || u.Host != "auth.example" || u.Path != "/authorize" {
		t.Errorf("unexpected base URL %s", raw)
	}

	q := u.Query()
	want := map[string]string{
		"client_id":             "cid",
		"response_type":         "code",
		"redirect_uri":          "http://127.0.0.1:8765/",
		"scope":                 "user",
		"state":                 "st",
		"code_challenge":        "chal",
		"code_challenge_method": "S256",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
	if q.Get("code_verifier") != "" {
		t.Error("verifier must never appear in the authorization URL")
	}
}
