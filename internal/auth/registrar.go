package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"mnemo/internal/credentials"
	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

// DefaultClientName is sent as client_name during registration.
const DefaultClientName = "mnemo CLI"

// RegistrationClient performs RFC 7591 registration.
type RegistrationClient interface {
	RegisterClient(ctx context.Context, endpoint string, req oauth.RegistrationRequest) (*oauth.RegistrationResponse, error)
}

// RegistrarConfig configures a Registrar.
type RegistrarConfig struct {
	Client   RegistrationClient
	Store    credentials.Repository
	Location Location
	// Endpoint is the full registration endpoint URL.
	Endpoint   string
	ClientName string
}

// Registrar returns a registered client for the current origin, registering
// one on first use and whenever the origin changes.
type Registrar struct {
	client     RegistrationClient
	store      credentials.Repository
	location   Location
	endpoint   string
	clientName string

	group singleflight.Group
}

// NewRegistrar returns a Registrar.
func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	if cfg.Client == nil || cfg.Store == nil || cfg.Location == nil {
		return nil, errors.New("registrar requires a client, a store and a location")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("registration endpoint is required")
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	return &Registrar{
		client:     cfg.Client,
		store:      cfg.Store,
		location:   cfg.Location,
		endpoint:   cfg.Endpoint,
		clientName: cfg.ClientName,
	}, nil
}

// RedirectURI is the location origin followed by "/".
func (r *Registrar) RedirectURI() string {
	return r.location.Origin() + "/"
}

// GetOrRegisterClient returns the cached client when it was registered for
// the current redirect URI and forceNew is false. Otherwise it drops the
// cached record and registers a new client. Concurrent calls for the same
// redirect URI share one registration request.
func (r *Registrar) GetOrRegisterClient(ctx context.Context, forceNew bool) (*oauth.ClientRegistration, error) {
	redirectURI := r.RedirectURI()

	if !forceNew {
		if cached := r.store.ClientRegistration(); cached != nil {
			if cached.RedirectURI == redirectURI {
				logging.Debug("Registrar", "Using cached client registration")
				return cached, nil
			}
			logging.Info("Registrar", "Cached client was registered for %s, re-registering for %s",
				cached.RedirectURI, redirectURI)
		}
	}

	key := redirectURI
	if forceNew {
		key = "force:" + redirectURI
	}
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// A caller that missed the shared request finds its result here.
		if !forceNew {
			if cached := r.store.ClientRegistration(); cached != nil && cached.RedirectURI == redirectURI {
				return cached, nil
			}
		}
		return r.register(ctx, redirectURI)
	})
	if err != nil {
		return nil, err
	}
	reg := *v.(*oauth.ClientRegistration)
	return &reg, nil
}

func (r *Registrar) register(ctx context.Context, redirectURI string) (*oauth.ClientRegistration, error) {
	if err := r.store.ClearClientRegistration(); err != nil {
		logging.Warn("Registrar", "Failed to drop cached client registration: %v", err)
	}

	logging.Info("Registrar", "Registering OAuth client for %s", redirectURI)
	resp, err := r.client.RegisterClient(ctx, r.endpoint, oauth.NewRegistrationRequest(r.clientName, redirectURI))
	if err != nil {
		logging.Error("Registrar", err, "Client registration failed")
		return nil, fmt.Errorf("failed to register OAuth client: %w", err)
	}

	reg := &oauth.ClientRegistration{
		ClientID:     resp.ClientID,
		ClientSecret: resp.ClientSecret,
		RedirectURI:  redirectURI,
	}
	if err := r.store.SetClientRegistration(reg); err != nil {
		return nil, fmt.Errorf("failed to cache client registration: %w", err)
	}

	logging.Info("Registrar", "Registered OAuth client %s (secret issued: %v)", reg.ClientID, reg.ClientSecret != "")
	return reg, nil
}
