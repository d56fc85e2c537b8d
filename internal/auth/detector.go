package auth

import (
	"context"
	"net/http"
	"slices"

	"mnemo/pkg/logging"
)

// DetectAuthMode probes the server with the stored token, when there is
// one, and classifies the result:
//
//	2xx              authenticated; disabled without a token, oauth with one
//	401              stored token cleared, signed out; oauth when discovery
//	                 answers, jwt otherwise
//	other status     fail-open: authenticated, disabled
//	                 fail-closed: signed out, unknown
//	network failure  mode unknown, IsAuthenticated unchanged
//
// Every outcome leaves IsLoading false. A 401 here does not raise the
// unauthorized signal.
func (m *Manager) DetectAuthMode(ctx context.Context) Session {
	token := m.store.AccessToken()

	status, err := m.prober.Probe(ctx, m.probeResource, token)
	if err != nil {
		logging.Warn("Detector", "Auth probe failed: %v", err)
		return m.update(func(s *Session) {
			s.IsLoading = false
			s.AuthMode = AuthModeUnknown
		})
	}

	switch {
	case status >= 200 && status < 300:
		return m.detectedOpen(token)

	case status == http.StatusUnauthorized:
		return m.detectedUnauthorized(ctx, token != "")

	default:
		if m.policy == PolicyFailClosed {
			logging.Warn("Detector", "Auth probe returned unexpected status %d, treating as signed out", status)
			return m.update(func(s *Session) {
				s.IsLoading = false
				s.IsAuthenticated = false
				s.User = nil
				s.Token = ""
				s.AuthMode = AuthModeUnknown
			})
		}
		logging.Warn("Detector", "Auth probe returned unexpected status %d, assuming auth is disabled", status)
		// The stored token is kept so the next detection can still use it.
		return m.update(func(s *Session) {
			s.IsLoading = false
			s.IsAuthenticated = true
			s.User = nil
			s.Token = ""
			s.AuthMode = AuthModeDisabled
		})
	}
}

func (m *Manager) detectedOpen(token string) Session {
	mode := AuthModeDisabled
	if token != "" {
		mode = AuthModeOAuth
	}
	logging.Debug("Detector", "Probe accepted (token present: %v), mode %s", token != "", mode)

	user := userFromToken(token)
	return m.update(func(s *Session) {
		s.IsLoading = false
		s.IsAuthenticated = true
		s.Token = token
		s.User = user
		s.AuthMode = mode
	})
}

func (m *Manager) detectedUnauthorized(ctx context.Context, hadToken bool) Session {
	if hadToken {
		logging.Info("Detector", "Stored token was rejected, clearing it")
	}
	if err := m.store.ClearAccessToken(); err != nil {
		logging.Warn("Detector", "Failed to clear rejected token: %v", err)
	}

	mode := AuthModeJWT
	providers := []string{}

	metadata, err := m.oauth.DiscoverMetadata(ctx, m.serverURL)
	if err != nil {
		logging.Debug("Detector", "OAuth discovery unavailable, assuming JWT auth: %v", err)
	} else {
		mode = AuthModeOAuth
		providers = slices.Clone(metadata.OAuthProviders)
		if len(providers) == 0 {
			providers = slices.Clone(m.defaultProviders)
		}
		if !metadata.SupportsPKCE() {
			logging.Warn("Detector", "Authorization server does not advertise S256 PKCE")
		}
	}

	logging.Info("Detector", "Server requires authentication, mode %s", mode)
	return m.update(func(s *Session) {
		s.IsLoading = false
		s.IsAuthenticated = false
		s.User = nil
		s.Token = ""
		s.AuthMode = mode
		s.OAuthProviders = providers
	})
}
