package auth

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/credentials"
	"mnemo/internal/testing/mock"
	"mnemo/pkg/oauth"
)

func newTestRegistrar(t *testing.T, backend *mock.Backend, store credentials.Repository, origin string) *Registrar {
	t.Helper()
	r, err := NewRegistrar(RegistrarConfig{
		Client:   oauth.NewClient(),
		Store:    store,
		Location: NewStaticLocation(origin, nil),
		Endpoint: backend.URL() + DefaultRegistrationPath,
	})
	require.NoError(t, err)
	return r
}

func TestNewRegistrar_Validation(t *testing.T) {
	_, err := NewRegistrar(RegistrarConfig{})
	assert.Error(t, err)

	_, err = NewRegistrar(RegistrarConfig{
		Client:   oauth.NewClient(),
		Store:    credentials.NewMemoryStore(),
		Location: NewStaticLocation(testOrigin, nil),
	})
	assert.Error(t, err, "endpoint is required")
}

func TestRegistrar_RegistersOnceAndCaches(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{IssueSecret: true})
	defer backend.Close()
	store := credentials.NewMemoryStore()
	r := newTestRegistrar(t, backend, store, testOrigin)

	first, err := r.GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ClientID)
	assert.NotEmpty(t, first.ClientSecret)
	assert.Equal(t, testOrigin+"/", first.RedirectURI)

	second, err := r.GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, first.ClientID, second.ClientID)
	assert.Equal(t, 1, backend.Requests("/register"))

	cached := store.ClientRegistration()
	require.NotNil(t, cached)
	assert.Equal(t, *first, *cached)
}

func TestRegistrar_RequestBody(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{})
	defer backend.Close()
	r := newTestRegistrar(t, backend, credentials.NewMemoryStore(), testOrigin)

	_, err := r.GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)

	body := backend.LastRegistration()
	assert.Equal(t, DefaultClientName, body["client_name"])
	assert.Equal(t, []any{testOrigin + "/"}, body["redirect_uris"])
	assert.Equal(t, []any{"authorization_code", "refresh_token"}, body["grant_types"])
	assert.Equal(t, []any{"code"}, body["response_types"])
	assert.Equal(t, "client_secret_post", body["token_endpoint_auth_method"])
}

func TestRegistrar_ReregistersWhenOriginChanges(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{})
	defer backend.Close()
	store := credentials.NewMemoryStore()

	before, err := newTestRegistrar(t, backend, store, "http://127.0.0.1:8765").GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)

	after, err := newTestRegistrar(t, backend, store, "http://127.0.0.1:9999").GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)

	assert.NotEqual(t, before.ClientID, after.ClientID)
	assert.Equal(t, "http://127.0.0.1:9999/", after.RedirectURI)
	assert.Equal(t, 2, backend.Requests("/register"))
	assert.Equal(t, "http://127.0.0.1:9999/", store.ClientRegistration().RedirectURI)
}

func TestRegistrar_ForceNew(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{})
	defer backend.Close()
	r := newTestRegistrar(t, backend, credentials.NewMemoryStore(), testOrigin)

	first, err := r.GetOrRegisterClient(context.Background(), false)
	require.NoError(t, err)
	second, err := r.GetOrRegisterClient(context.Background(), true)
	require.NoError(t, err)

	assert.NotEqual(t, first.ClientID, second.ClientID)
	assert.Equal(t, 2, backend.Requests("/register"))
}

func TestRegistrar_FailureClearsCache(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{})
	defer backend.Close()
	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetClientRegistration(&oauth.ClientRegistration{
		ClientID:    "stale",
		RedirectURI: "http://127.0.0.1:1111/",
	}))
	backend.SetRegistrationStatus(http.StatusInternalServerError)

	r := newTestRegistrar(t, backend, store, testOrigin)
	_, err := r.GetOrRegisterClient(context.Background(), false)
	require.Error(t, err)

	assert.True(t, oauth.IsClientRegistrationError(err))
	assert.Nil(t, store.ClientRegistration())
}

func TestRegistrar_ConcurrentCallsShareRegistration(t *testing.T) {
	backend := mock.NewBackend(mock.BackendConfig{})
	defer backend.Close()
	r := newTestRegistrar(t, backend, credentials.NewMemoryStore(), testOrigin)

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := r.GetOrRegisterClient(context.Background(), false)
			if assert.NoError(t, err) {
				ids[i] = reg.ClientID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	// Callers that arrive after the shared request finished hit the cache.
	assert.Equal(t, 1, backend.Requests("/register"))
}
