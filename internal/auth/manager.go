package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mnemo/internal/api"
	"mnemo/internal/credentials"
	"mnemo/internal/events"
	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

// Default endpoint paths, relative to the issuer.
const (
	DefaultAuthorizePath    = "/authorize"
	DefaultTokenPath        = "/token"
	DefaultRegistrationPath = "/register"
	DefaultScope            = "user"

	resyncTimeout = 30 * time.Second
)

// DefaultProviders is used when discovery does not list upstream providers.
var DefaultProviders = []string{"github"}

// UnexpectedStatusPolicy decides the session when the probe returns a
// status other than 2xx or 401.
type UnexpectedStatusPolicy string

const (
	// PolicyFailOpen treats the server as running without auth.
	PolicyFailOpen UnexpectedStatusPolicy = "fail-open"
	// PolicyFailClosed logs the session out with an unknown mode.
	PolicyFailClosed UnexpectedStatusPolicy = "fail-closed"
)

// Prober issues the protected probe request.
type Prober interface {
	Probe(ctx context.Context, resource api.Resource, token string) (int, error)
}

// OAuthClient is the authorization server client.
type OAuthClient interface {
	RegistrationClient
	DiscoverMetadata(ctx context.Context, baseURL string) (*oauth.Metadata, error)
	ExchangeCode(ctx context.Context, tokenEndpoint string, x oauth.ExchangeRequest) (*oauth.Token, error)
	BuildAuthorizationURL(authEndpoint, clientID, redirectURI, state, scope string, pkce *oauth.PKCEChallenge) (string, error)
}

// Subscriber delivers bus signals.
type Subscriber interface {
	Subscribe(topic events.Topic, fn events.Handler) (cancel func())
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store    credentials.Repository
	OAuth    OAuthClient
	Prober   Prober
	Location Location
	// Bus is optional. When set the manager follows TopicUnauthorized and
	// TopicCredentialsChanged until Close.
	Bus Subscriber

	// ServerURL is the API server; discovery is served from it.
	ServerURL string
	// IssuerURL hosts the authorize, token and registration endpoints.
	// Defaults to ServerURL.
	IssuerURL        string
	AuthorizePath    string
	TokenPath        string
	RegistrationPath string

	ClientName       string
	Scope            string
	DefaultProviders []string
	ProbeResource    api.Resource

	UnexpectedStatusPolicy UnexpectedStatusPolicy
	// DisableLegacyTokenParam ignores a ?token= parameter on start.
	DisableLegacyTokenParam bool
}

// Manager owns the Session and runs every auth flow that changes it.
type Manager struct {
	store     credentials.Repository
	oauth     OAuthClient
	prober    Prober
	location  Location
	registrar *Registrar

	serverURL        string
	issuerURL        string
	authorizePath    string
	tokenPath        string
	clientName       string
	scope            string
	defaultProviders []string
	probeResource    api.Resource
	policy           UnexpectedStatusPolicy
	allowLegacyToken bool

	mu          sync.Mutex
	session     Session
	subscribers map[uint64]func(Session)
	nextSubID   uint64

	callbackActive atomic.Bool

	busCancels []func()
	closeOnce  sync.Once
}

// NewManager returns a Manager with the initial loading session.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil || cfg.OAuth == nil || cfg.Prober == nil || cfg.Location == nil {
		return nil, errors.New("auth manager requires a store, an OAuth client, a prober and a location")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}

	m := &Manager{
		store:            cfg.Store,
		oauth:            cfg.OAuth,
		prober:           cfg.Prober,
		location:         cfg.Location,
		serverURL:        strings.TrimRight(cfg.ServerURL, "/"),
		issuerURL:        strings.TrimRight(cfg.IssuerURL, "/"),
		authorizePath:    orDefault(cfg.AuthorizePath, DefaultAuthorizePath),
		tokenPath:        orDefault(cfg.TokenPath, DefaultTokenPath),
		clientName:       orDefault(cfg.ClientName, DefaultClientName),
		scope:            orDefault(cfg.Scope, DefaultScope),
		defaultProviders: slices.Clone(cfg.DefaultProviders),
		probeResource:    cfg.ProbeResource,
		policy:           cfg.UnexpectedStatusPolicy,
		allowLegacyToken: !cfg.DisableLegacyTokenParam,
		session:          initialSession(),
		subscribers:      make(map[uint64]func(Session)),
	}
	if m.issuerURL == "" {
		m.issuerURL = m.serverURL
	}
	if m.defaultProviders == nil {
		m.defaultProviders = slices.Clone(DefaultProviders)
	}
	if m.probeResource == "" {
		m.probeResource = api.ResourceMemories
	}
	if m.policy == "" {
		m.policy = PolicyFailOpen
	}

	registrar, err := NewRegistrar(RegistrarConfig{
		Client:     cfg.OAuth,
		Store:      cfg.Store,
		Location:   cfg.Location,
		Endpoint:   m.issuerURL + orDefault(cfg.RegistrationPath, DefaultRegistrationPath),
		ClientName: m.clientName,
	})
	if err != nil {
		return nil, err
	}
	m.registrar = registrar

	if cfg.Bus != nil {
		m.busCancels = append(m.busCancels,
			cfg.Bus.Subscribe(events.TopicUnauthorized, m.handleUnauthorized),
			cfg.Bus.Subscribe(events.TopicCredentialsChanged, m.handleCredentialsChanged),
		)
	}
	return m, nil
}

// Registrar returns the client registrar used by Login.
func (m *Manager) Registrar() *Registrar {
	return m.registrar
}

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone()
}

// Subscribe calls fn with a snapshot after every state transition until the
// returned cancel function is called.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Close stops following bus signals. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		for _, cancel := range m.busCancels {
			cancel()
		}
	})
}

// update applies mutate as one transition and notifies subscribers outside
// the lock. Transitions that change nothing are not delivered.
func (m *Manager) update(mutate func(s *Session)) Session {
	m.mu.Lock()
	before := m.session.clone()
	mutate(&m.session)
	after := m.session.clone()

	if before.equal(after) {
		m.mu.Unlock()
		return after
	}

	subs := make([]func(Session), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	logging.Debug("Auth", "Session: authenticated=%v loading=%v mode=%s token=%v",
		after.IsAuthenticated, after.IsLoading, after.AuthMode, after.HasToken())

	for _, fn := range subs {
		fn(after.clone())
	}
	return after
}

// setAuthenticated records a signed-in session without probing.
func (m *Manager) setAuthenticated(token string, mode AuthMode) Session {
	user := userFromToken(token)
	return m.update(func(s *Session) {
		s.IsLoading = false
		s.IsAuthenticated = true
		s.Token = token
		s.User = user
		s.AuthMode = mode
	})
}

// setLoggedOut drops the principal but keeps the detected mode.
func (m *Manager) setLoggedOut() Session {
	return m.update(func(s *Session) {
		s.IsLoading = false
		s.IsAuthenticated = false
		s.User = nil
		s.Token = ""
	})
}

// handleUnauthorized reacts to an API call rejected with 401. The API
// client has already cleared the stored token. Login is not restarted.
func (m *Manager) handleUnauthorized() {
	logging.Info("Auth", "Server rejected the session token, signing out")
	m.setLoggedOut()
}

func (m *Manager) handleCredentialsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	m.Resync(ctx)
}

// Resync aligns the session with the stored token after another process
// changed it. A removed token signs out, a new or replaced token is
// re-detected, and an unchanged token is a no-op.
func (m *Manager) Resync(ctx context.Context) Session {
	stored := m.store.AccessToken()
	current := m.Session()

	switch {
	case stored == current.Token:
		return current
	case stored == "":
		logging.Info("Auth", "Stored token was removed by another process")
		return m.setLoggedOut()
	default:
		logging.Info("Auth", "Stored token was replaced by another process, re-detecting")
		return m.DetectAuthMode(ctx)
	}
}

func (m *Manager) authorizeEndpoint() string {
	return m.issuerURL + m.authorizePath
}

func (m *Manager) tokenEndpoint() string {
	return m.issuerURL + m.tokenPath
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
