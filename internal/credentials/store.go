package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"mnemo/pkg/logging"
	"mnemo/pkg/oauth"
)

// Repository is the typed view of the credential store that the rest of
// the client depends on. Getters return the zero value when nothing is
// stored or the backend cannot be read.
type Repository interface {
	AccessToken() string
	SetAccessToken(token string) error
	ClearAccessToken() error

	RefreshToken() string
	SetRefreshToken(token string) error
	ClearRefreshToken() error

	ClientRegistration() *oauth.ClientRegistration
	SetClientRegistration(reg *oauth.ClientRegistration) error
	ClearClientRegistration() error

	// SaveFlow persists the PKCE verifier and anti-CSRF state of a new
	// authorization request, replacing any earlier pair.
	SaveFlow(verifier, state string) error
	// TakeFlow returns the stored verifier and state and deletes both.
	TakeFlow() (verifier, state string)
	// ClearFlow deletes the verifier and state without reading them.
	ClearFlow() error

	Workspace() string
	SetWorkspace(id string) error
	ClearWorkspace() error
}

// Store implements Repository over a Backend.
type Store struct {
	backend Backend
	target  string
}

var _ Repository = (*Store)(nil)

// NewStore wraps backend. target identifies the server in audit logs.
func NewStore(backend Backend, target string) *Store {
	return &Store{backend: backend, target: target}
}

// NewMemoryStore returns a Store over a fresh MemoryBackend.
func NewMemoryStore() *Store {
	return NewStore(NewMemoryBackend(), "memory")
}

func (s *Store) get(key string) string {
	v, err := s.backend.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Warn("Credentials", "Failed to read %s: %v", key, err)
		}
		return ""
	}
	return v
}

func (s *Store) set(key, value string) error {
	if err := s.backend.Set(key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// AccessToken returns the stored bearer token.
func (s *Store) AccessToken() string {
	return s.get(KeyAccessToken)
}

// SetAccessToken stores the bearer token.
func (s *Store) SetAccessToken(token string) error {
	if err := s.set(KeyAccessToken, token); err != nil {
		s.audit("token_store_failed", "failure", err.Error())
		return err
	}
	s.audit("token_stored", "success", "")
	return nil
}

// ClearAccessToken removes the bearer token.
func (s *Store) ClearAccessToken() error {
	if s.get(KeyAccessToken) == "" {
		return s.delete(KeyAccessToken)
	}
	if err := s.delete(KeyAccessToken); err != nil {
		s.audit("token_delete_failed", "failure", err.Error())
		return err
	}
	s.audit("token_deleted", "success", "")
	return nil
}

// RefreshToken returns the stored refresh token, if any.
func (s *Store) RefreshToken() string {
	return s.get(KeyRefreshToken)
}

// SetRefreshToken stores the refresh token.
func (s *Store) SetRefreshToken(token string) error {
	return s.set(KeyRefreshToken, token)
}

// ClearRefreshToken removes the refresh token.
func (s *Store) ClearRefreshToken() error {
	return s.delete(KeyRefreshToken)
}

// ClientRegistration returns the cached client, or nil when none is cached
// or the cached record is unreadable.
func (s *Store) ClientRegistration() *oauth.ClientRegistration {
	raw := s.get(KeyOAuthClient)
	if raw == "" {
		return nil
	}

	var reg oauth.ClientRegistration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		logging.Warn("Credentials", "Discarding unreadable client registration: %v", err)
		return nil
	}
	if reg.ClientID == "" {
		return nil
	}
	return &reg
}

// SetClientRegistration caches reg.
func (s *Store) SetClientRegistration(reg *oauth.ClientRegistration) error {
	if reg == nil {
		return s.ClearClientRegistration()
	}
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to encode client registration: %w", err)
	}
	if err := s.set(KeyOAuthClient, string(data)); err != nil {
		return err
	}
	s.audit("client_registration_stored", "success", reg.RedirectURI)
	return nil
}

// ClearClientRegistration drops the cached client.
func (s *Store) ClearClientRegistration() error {
	return s.delete(KeyOAuthClient)
}

// SaveFlow implements Repository.
func (s *Store) SaveFlow(verifier, state string) error {
	if err := s.set(KeyPKCEVerifier, verifier); err != nil {
		return err
	}
	if err := s.set(KeyOAuthState, state); err != nil {
		// Do not leave half a flow behind.
		_ = s.delete(KeyPKCEVerifier)
		return err
	}
	return nil
}

// TakeFlow implements Repository.
func (s *Store) TakeFlow() (verifier, state string) {
	verifier = s.get(KeyPKCEVerifier)
	state = s.get(KeyOAuthState)
	if err := s.ClearFlow(); err != nil {
		logging.Warn("Credentials", "Failed to discard consumed PKCE material: %v", err)
	}
	return verifier, state
}

// ClearFlow implements Repository.
func (s *Store) ClearFlow() error {
	return errors.Join(s.delete(KeyPKCEVerifier), s.delete(KeyOAuthState))
}

// Workspace returns the last selected workspace id.
func (s *Store) Workspace() string {
	return s.get(KeyWorkspaceID)
}

// SetWorkspace remembers the selected workspace id.
func (s *Store) SetWorkspace(id string) error {
	return s.set(KeyWorkspaceID, id)
}

// ClearWorkspace forgets the selected workspace.
func (s *Store) ClearWorkspace() error {
	return s.delete(KeyWorkspaceID)
}

func (s *Store) audit(action, outcome, detail string) {
	logging.Audit(logging.AuditEvent{
		Action:  action,
		Outcome: outcome,
		Target:  s.target,
		Detail:  detail,
	})
}
