package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mnemo/internal/api"
	"mnemo/internal/credentials"
	"mnemo/internal/events"
	"mnemo/internal/testing/mock"
	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

const testOrigin = "http://127.0.0.1:8765"

type testEnv struct {
	backend  *mock.Backend
	store    *credentials.Store
	location *StaticLocation
	bus      *events.Bus
	api      *api.Client
	manager  *Manager
}

func newTestEnv(t *testing.T, cfg mock.BackendConfig, mutate ...func(*ManagerConfig)) *testEnv {
	t.Helper()
	logging.Discard()

	backend := mock.NewBackend(cfg)
	t.Cleanup(backend.Close)

	store := credentials.NewMemoryStore()
	bus := events.NewBus()
	location := NewStaticLocation(testOrigin, nil)

	apiClient, err := api.NewClient(backend.URL(), store, api.WithPublisher(bus), api.WithRetries(0))
	require.NoError(t, err)

	mc := ManagerConfig{
		Store:     store,
		OAuth:     oauth.NewClient(),
		Prober:    apiClient,
		Location:  location,
		Bus:       bus,
		ServerURL: backend.URL(),
	}
	for _, fn := range mutate {
		fn(&mc)
	}

	manager, err := NewManager(mc)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return &testEnv{
		backend:  backend,
		store:    store,
		location: location,
		bus:      bus,
		api:      apiClient,
		manager:  manager,
	}
}

// login runs Login and approves the resulting authorization request,
// leaving the callback on the location.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.manager.Login(context.Background()))

	navigated := e.location.Navigated()
	require.NotEmpty(t, navigated)

	redirect, err := e.backend.Approve(navigated[len(navigated)-1])
	require.NoError(t, err)

	callback, err := ParseCallbackURL(redirect)
	require.NoError(t, err)
	e.location.SetQuery(callback.Query())
}

// recorder collects session transitions.
type recorder struct {
	mu       sync.Mutex
	sessions []Session
}

func record(m *Manager) *recorder {
	r := &recorder{}
	m.Subscribe(func(s Session) {
		r.mu.Lock()
		r.sessions = append(r.sessions, s)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) all() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.sessions...)
}

func (r *recorder) loadingCleared() int {
	n := 0
	prev := true
	for _, s := range r.all() {
		if prev && !s.IsLoading {
			n++
		}
		prev = s.IsLoading
	}
	return n
}

// fakeProber returns a scripted probe outcome.
type fakeProber struct {
	mu     sync.Mutex
	status int
	err    error
	tokens []string
}

func (p *fakeProber) Probe(_ context.Context, _ api.Resource, token string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	return p.status, p.err
}

// fakeOAuth scripts discovery and counts calls.
type fakeOAuth struct {
	*oauth.Client

	mu          sync.Mutex
	metadata    *oauth.Metadata
	discoverErr error
	exchanges   int
}

func (f *fakeOAuth) DiscoverMetadata(context.Context, string) (*oauth.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata, f.discoverErr
}

func (f *fakeOAuth) ExchangeCode(context.Context, string, oauth.ExchangeRequest) (*oauth.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	return &oauth.Token{AccessToken: "exchanged"}, nil
}
