package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

// Callback query parameters.
const (
	ParamCode             = "code"
	ParamState            = "state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	ParamToken            = "token"
)

// CallbackShape is the kind of callback found on the location.
type CallbackShape int

const (
	// ShapeNone means no callback parameters were present.
	ShapeNone CallbackShape = iota
	// ShapeDirectToken is the legacy ?token= handoff.
	ShapeDirectToken
	// ShapeError is an authorization server error redirect.
	ShapeError
	// ShapeCode is an authorization code redirect.
	ShapeCode
)

func (s CallbackShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeDirectToken:
		return "direct_token"
	case ShapeError:
		return "oauth_error"
	case ShapeCode:
		return "oauth_callback"
	default:
		return "unknown"
	}
}

// StartResult reports which branch Start took. Err is nil when the branch
// completed normally, even if detection then found the user signed out.
type StartResult struct {
	Shape CallbackShape
	Err   error
}

// Start handles whatever callback the location carries, or runs detection
// when there is none. It always leaves IsLoading false.
func (m *Manager) Start(ctx context.Context) StartResult {
	query := m.location.Query()

	if query.Get(ParamToken) != "" {
		if m.allowLegacyToken {
			return StartResult{Shape: ShapeDirectToken, Err: m.handleDirectToken(ctx, query.Get(ParamToken))}
		}
		logging.Warn("Flow", "Ignoring token query parameter, legacy token handoff is disabled")
		query.Del(ParamToken)
	}

	switch {
	case query.Get(ParamError) != "":
		return StartResult{Shape: ShapeError, Err: m.handleProviderError(ctx, query)}

	case query.Get(ParamCode) != "" && query.Get(ParamState) != "":
		return StartResult{Shape: ShapeCode, Err: m.handleCallback(ctx, query.Get(ParamCode), query.Get(ParamState))}

	default:
		if hasCallbackParams(m.location.Query()) {
			m.location.StripQuery()
		}
		m.DetectAuthMode(ctx)
		return StartResult{Shape: ShapeNone}
	}
}

func hasCallbackParams(q url.Values) bool {
	for _, k := range []string{ParamCode, ParamState, ParamError, ParamErrorDescription, ParamToken} {
		if q.Has(k) {
			return true
		}
	}
	return false
}

func (m *Manager) handleDirectToken(ctx context.Context, token string) error {
	logging.Info("Flow", "Received token through legacy query parameter")

	err := m.store.SetAccessToken(token)
	if err != nil {
		logging.Error("Flow", err, "Failed to store handed-off token")
		err = fmt.Errorf("failed to store token: %w", err)
	}
	m.location.StripQuery()
	m.DetectAuthMode(ctx)
	return err
}

func (m *Manager) handleProviderError(ctx context.Context, query url.Values) error {
	code := query.Get(ParamError)
	description := query.Get(ParamErrorDescription)

	if err := m.store.ClearFlow(); err != nil {
		logging.Warn("Flow", "Failed to discard PKCE material: %v", err)
	}
	m.location.StripQuery()

	logging.Warn("Flow", "Authorization server returned error %q: %s", code, description)
	m.DetectAuthMode(ctx)

	if description != "" {
		return fmt.Errorf("%w: %s: %s", ErrAuthorizationDenied, code, description)
	}
	return fmt.Errorf("%w: %s", ErrAuthorizationDenied, code)
}

// handleCallback exchanges an authorization code. At most one exchange
// runs at a time; a concurrent call returns ErrCallbackInProgress without
// touching state or the location.
func (m *Manager) handleCallback(ctx context.Context, code, state string) error {
	if !m.callbackActive.CompareAndSwap(false, true) {
		logging.Debug("Flow", "Callback already being handled, ignoring duplicate")
		return ErrCallbackInProgress
	}
	defer m.callbackActive.Store(false)

	verifier, storedState := m.store.TakeFlow()
	client := m.store.ClientRegistration()

	if storedState == "" || state != storedState {
		logging.Warn("Flow", "Callback state does not match the pending login (pending: %v), aborting", storedState != "")
		logging.Audit(logging.AuditEvent{Action: "oauth_state_mismatch", Outcome: "rejected", Target: m.issuerURL})
		return m.abortCallback(ctx, ErrStateMismatch)
	}
	if verifier == "" || client == nil {
		logging.Warn("Flow", "Callback arrived without PKCE verifier (%v) or client registration (%v), aborting",
			verifier != "", client != nil)
		return m.abortCallback(ctx, ErrFlowMaterialMissing)
	}

	token, err := m.oauth.ExchangeCode(ctx, m.tokenEndpoint(), oauth.ExchangeRequest{
		Code:         code,
		RedirectURI:  m.registrar.RedirectURI(),
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		CodeVerifier: verifier,
	})
	if err != nil {
		var exchangeErr *oauth.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			logging.Error("Flow", err, "Token exchange rejected: %s", exchangeErr.Body)
		} else {
			logging.Error("Flow", err, "Token exchange failed")
		}
		return m.abortCallback(ctx, err)
	}

	if err := m.store.SetAccessToken(token.AccessToken); err != nil {
		logging.Error("Flow", err, "Failed to persist access token")
	}
	if token.RefreshToken != "" {
		if err := m.store.SetRefreshToken(token.RefreshToken); err != nil {
			logging.Warn("Flow", "Failed to persist refresh token: %v", err)
		}
	}
	m.location.StripQuery()

	if expiry := token.ToOAuth2Token().Expiry; !expiry.IsZero() {
		logging.Info("Flow", "Signed in with client %s, token expires at %s", client.ClientID, expiry.Format(time.RFC3339))
	} else {
		logging.Info("Flow", "Signed in with client %s", client.ClientID)
	}
	m.setAuthenticated(token.AccessToken, AuthModeOAuth)
	return nil
}

func (m *Manager) abortCallback(ctx context.Context, cause error) error {
	m.location.StripQuery()
	m.DetectAuthMode(ctx)
	return cause
}

// Login registers a client if needed, stores a fresh PKCE verifier and
// state, and navigates the location to the authorization endpoint. On
// error nothing is navigated.
func (m *Manager) Login(ctx context.Context) error {
	client, err := m.registrar.GetOrRegisterClient(ctx, false)
	if err != nil {
		logging.Error("Flow", err, "Login failed")
		return err
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		logging.Error("Flow", err, "Login failed")
		return fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}
	state, err := oauth.GenerateState()
	if err != nil {
		logging.Error("Flow", err, "Login failed")
		return fmt.Errorf("failed to generate state: %w", err)
	}

	if err := m.store.SaveFlow(pkce.CodeVerifier, state); err != nil {
		logging.Error("Flow", err, "Login failed")
		return fmt.Errorf("failed to store login state: %w", err)
	}

	authURL, err := m.oauth.BuildAuthorizationURL(
		m.authorizeEndpoint(), client.ClientID, m.registrar.RedirectURI(), state, m.scope, pkce)
	if err != nil {
		logging.Error("Flow", err, "Login failed")
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	logging.Info("Flow", "Redirecting to %s", m.authorizeEndpoint())
	if err := m.location.Navigate(ctx, authURL); err != nil {
		return fmt.Errorf("failed to open authorization page: %w", err)
	}
	return nil
}

// Logout forgets the local tokens. The server is not contacted.
func (m *Manager) Logout() error {
	err := errors.Join(m.store.ClearAccessToken(), m.store.ClearRefreshToken())
	if err != nil {
		logging.Warn("Flow", "Failed to clear stored tokens: %v", err)
	}
	m.setLoggedOut()
	logging.Info("Flow", "Signed out")
	return err
}

// SetToken stores token and marks the session authenticated in oauth mode.
func (m *Manager) SetToken(token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := m.store.SetAccessToken(token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	m.setAuthenticated(token, AuthModeOAuth)
	return nil
}
